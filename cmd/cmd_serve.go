// cmd_serve.go - HTTP-Server fuer Conditioning und CLIP-Embeddings
// Hauptfunktionen: ServeHandler
package cmd

import (
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ollama/cnclip/conditioner"
	"github.com/ollama/cnclip/envconfig"
	"github.com/ollama/cnclip/model/cnclip"
	"github.com/ollama/cnclip/server"
	"github.com/ollama/cnclip/vision"
)

var errNoCLIP = errors.New("conditioner model is not a cnclip model")

// ServeHandler - Laedt Conditioner und Modell einmal und startet den Server
func ServeHandler(cmd *cobra.Command, args []string) error {
	opts, err := conditionerOptions(cmd)
	if err != nil {
		return err
	}

	tc, err := conditioner.New(opts...)
	if err != nil {
		return err
	}
	if head, _ := cmd.Flags().GetString("head"); head != "" {
		if err := loadHead(tc, head); err != nil {
			return err
		}
	}

	// Der Conditioner haelt bereits das komplette Modell
	m, ok := tc.Model.(*cnclip.Model)
	if !ok {
		return errNoCLIP
	}
	tok, err := loadTokenizer(cmd)
	if err != nil {
		return err
	}

	pre := vision.NewPreprocessor(m.Config().ImageResolution)
	if crop, _ := cmd.Flags().GetBool("crop"); crop {
		pre.Mode = vision.ModeCrop
	}
	contextLength, _ := cmd.Flags().GetInt("context-length")
	maxBatch, _ := cmd.Flags().GetInt("max-batch")
	cacheSize, _ := cmd.Flags().GetInt("cache-size")

	srv := server.New(
		server.WithConditioner(tc),
		server.WithCLIP(m, tok, pre, min(contextLength, m.Config().TextMaxPositions)),
		server.WithMaxBatch(maxBatch),
		server.WithCacheSize(cacheSize),
		server.WithOrigins(envconfig.AllowedOrigins()),
	)

	host, _ := cmd.Flags().GetString("host")
	ln, err := net.Listen("tcp", host)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx, ln)
}
