// MODUL: routes
// ZWECK: gin-Router mit CORS, Request-IDs und allen Endpoints
// INPUT: Server
// OUTPUT: http.Handler
// NEBENEFFEKTE: setzt den globalen gin-Modus
// ABHAENGIGKEITEN: github.com/gin-gonic/gin, github.com/gin-contrib/cors,
//                  github.com/google/uuid
// HINWEISE: X-Request-ID wird uebernommen oder neu vergeben, Metriken
//           werden nach der Route-Vorlage gelabelt

package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ollama/cnclip/envconfig"
)

// RequestIDHeader traegt die Request-ID in Request und Response
const RequestIDHeader = "X-Request-ID"

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	mode := gin.ReleaseMode
	if envconfig.LogLevel() <= slog.LevelDebug {
		mode = gin.DebugMode
	}
	gin.SetMode(mode)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
		RequestIDHeader,
	}
	corsConfig.ExposeHeaders = []string{RequestIDHeader}
	corsConfig.AllowOrigins = s.origins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = envconfig.AllowedOrigins()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		gin.Recovery(),
		cors.New(corsConfig),
		s.observe(),
	)

	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "cnclip is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "cnclip is running") })
	r.GET("/api/health", s.HealthHandler)
	r.GET("/metrics", gin.WrapH(s.metrics.handler()))

	r.POST("/api/condition", s.ConditionHandler)
	r.POST("/api/embed/text", s.EmbedTextHandler)
	r.POST("/api/embed/image", s.EmbedImageHandler)
	r.POST("/api/similarity", s.SimilarityHandler)

	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, ErrNotFound)
	})
	r.NoMethod(func(c *gin.Context) {
		writeError(c, http.StatusMethodNotAllowed, ErrMethodNotAllowed)
	})

	return r
}

// observe vergibt Request-IDs, loggt jeden Request und zaehlt ihn
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()

		slog.Debug("request",
			"id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", duration)

		s.metrics.duration.WithLabelValues(c.Request.Method, path).Observe(duration.Seconds())
		s.metrics.requests.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
	}
}
