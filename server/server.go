// MODUL: server
// ZWECK: HTTP-Server fuer Conditioning- und CLIP-Embeddings
// INPUT: Conditioner, CLIP-Modell, Tokenizer, Listener
// OUTPUT: http.Handler, laufender Server
// NEBENEFFEKTE: Netzwerk-Listener, Logging
// ABHAENGIGKEITEN: github.com/gin-gonic/gin, github.com/pdevine/tensor,
//                  github.com/hashicorp/golang-lru/v2
// HINWEISE: Encoder-Aufrufe werden serialisiert, die Modelle halten
//           keine eigenen Locks. Conditioning-Ergebnisse sind nach dem
//           Laden deterministisch und werden pro Text gecacht.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pdevine/tensor"

	"github.com/ollama/cnclip/vision"
)

const (
	// DefaultMaxBatch begrenzt Eingaben pro Request
	DefaultMaxBatch = 64
	// DefaultCacheSize ist die Anzahl gecachter Conditioning-Ergebnisse
	DefaultCacheSize = 1024
)

// Conditioner erzeugt Conditioning-Tensoren [B, 1, 768].
type Conditioner interface {
	Encode(texts ...string) (*tensor.Dense, error)
}

// CLIP ist das zweiturmige Modell fuer Text- und Bild-Features.
type CLIP interface {
	EncodeText(ids *tensor.Dense) (*tensor.Dense, error)
	EncodeImage(pixels *tensor.Dense) (*tensor.Dense, error)
	Similarity(images, texts *tensor.Dense) (*tensor.Dense, error)
}

// Tokenizer liefert Token-IDs [B, contextLength].
type Tokenizer interface {
	Tokenize(texts []string, contextLength int) (*tensor.Dense, error)
}

// Server haelt die geladenen Modelle.
type Server struct {
	cond Conditioner

	clip          CLIP
	tok           Tokenizer
	pre           *vision.Preprocessor
	contextLength int

	maxBatch  int
	cacheSize int
	origins   []string

	// Zeilen [S][D] pro Text, nil wenn deaktiviert
	cache   *lru.Cache[string, [][]float32]
	metrics *metrics

	mu sync.Mutex
}

// Option konfiguriert einen Server
type Option func(*Server)

// WithConditioner aktiviert POST /api/condition
func WithConditioner(c Conditioner) Option {
	return func(s *Server) { s.cond = c }
}

// WithCLIP aktiviert die Embedding- und Similarity-Endpoints
func WithCLIP(m CLIP, tok Tokenizer, pre *vision.Preprocessor, contextLength int) Option {
	return func(s *Server) {
		s.clip, s.tok, s.pre, s.contextLength = m, tok, pre, contextLength
	}
}

// WithMaxBatch setzt das Batch-Limit, Werte <= 0 werden ignoriert
func WithMaxBatch(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// WithCacheSize setzt die Groesse des Conditioning-Caches, 0 deaktiviert ihn
func WithCacheSize(n int) Option {
	return func(s *Server) { s.cacheSize = max(n, 0) }
}

// WithOrigins setzt die erlaubten CORS-Origins
func WithOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// New erstellt einen Server
func New(opts ...Option) *Server {
	s := &Server{maxBatch: DefaultMaxBatch, cacheSize: DefaultCacheSize, metrics: newMetrics()}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheSize > 0 {
		// Fehler nur bei Groesse <= 0
		s.cache, _ = lru.New[string, [][]float32](s.cacheSize)
	}
	return s
}

// Serve beantwortet Requests auf ln bis ctx beendet wird
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.GenerateRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info(fmt.Sprintf("Listening on %s", ln.Addr()),
			"conditioner", s.cond != nil, "clip", s.clip != nil, "max_batch", s.maxBatch, "cache", s.cacheSize)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
