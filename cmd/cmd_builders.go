// cmd_builders.go - Command-Builder Funktionen
// Hauptfunktionen: newEncodeCmd, newEncodeImageCmd, newServeCmd, newInspectCmd, newConfigCmd
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ollama/cnclip/envconfig"
	"github.com/ollama/cnclip/server"
)

// addConfigFlags - Flags fuer Vision- und Text-Config
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("text-config", envconfig.TextConfig(), "Text model JSON config")
	cmd.Flags().String("vision-config", envconfig.VisionConfig(), "Vision model JSON config")
}

// addModelFlags - Flags fuer Configs, Checkpoint und Vokabular
func addModelFlags(cmd *cobra.Command) {
	addConfigFlags(cmd)
	cmd.Flags().String("checkpoint", envconfig.Checkpoint(), "Checkpoint file (torch .pt or .safetensors)")
	cmd.Flags().String("vocab", envconfig.Vocab(), "WordPiece vocab.txt (default: next to the text config)")
	cmd.Flags().Int("threads", envconfig.NumThreads(), "Rows encoded in parallel")
	cmd.Flags().Bool("json", false, "Always print JSON")
}

// newEncodeCmd - Erstellt den encode Command
func newEncodeCmd() *cobra.Command {
	encodeCmd := &cobra.Command{
		Use:   "encode TEXT...",
		Short: "Encode texts into conditioning embeddings",
		Args:  cobra.MinimumNArgs(1),
		RunE:  EncodeHandler,
	}

	addModelFlags(encodeCmd)
	encodeCmd.Flags().String("device", envconfig.Device(), "Device for tokenized input (cpu, cuda:N)")
	encodeCmd.Flags().Int("max-length", int(envconfig.MaxLength()), "Tokenizer context length")
	encodeCmd.Flags().Uint64("seed", 0, "Seed for the projection initialization")
	encodeCmd.Flags().String("head", "", "Checkpoint with trained layer_norm1/proj/layer_norm2 weights")
	return encodeCmd
}

// newEncodeImageCmd - Erstellt den encode-image Command
func newEncodeImageCmd() *cobra.Command {
	encodeImageCmd := &cobra.Command{
		Use:   "encode-image FILE...",
		Short: "Encode images with the vision tower",
		Args:  cobra.MinimumNArgs(1),
		RunE:  EncodeImageHandler,
	}

	addModelFlags(encodeImageCmd)
	encodeImageCmd.Flags().StringArray("text", nil, "Texts to score against the images")
	encodeImageCmd.Flags().Int("context-length", 52, "Tokenizer context length for --text")
	encodeImageCmd.Flags().Bool("crop", false, "Resize the short side and center crop instead of squashing")
	return encodeImageCmd
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the HTTP API",
		Args:    cobra.NoArgs,
		RunE:    ServeHandler,
	}

	addModelFlags(serveCmd)
	serveCmd.Flags().String("host", envconfig.Host().Host, "Listen address")
	serveCmd.Flags().String("device", envconfig.Device(), "Device for tokenized input (cpu, cuda:N)")
	serveCmd.Flags().Int("max-length", int(envconfig.MaxLength()), "Tokenizer context length for /api/condition")
	serveCmd.Flags().Int("context-length", 52, "Tokenizer context length for /api/embed/text and /api/similarity")
	serveCmd.Flags().Int("max-batch", int(envconfig.MaxBatch()), "Maximum inputs per request")
	serveCmd.Flags().Int("cache-size", server.DefaultCacheSize, "Cached conditioning results (0 disables the cache)")
	serveCmd.Flags().Uint64("seed", 0, "Seed for the projection initialization")
	serveCmd.Flags().String("head", "", "Checkpoint with trained layer_norm1/proj/layer_norm2 weights")
	serveCmd.Flags().Bool("crop", false, "Resize the short side and center crop instead of squashing")
	return serveCmd
}

// newInspectCmd - Erstellt den inspect Command
func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect CHECKPOINT",
		Short: "List the tensors of a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}

	inspectCmd.Flags().String("key", "state_dict", "Top-level key holding the state dict")
	inspectCmd.Flags().String("filter", "", "Only list tensors with this name prefix")
	inspectCmd.Flags().Bool("json", false, "Always print JSON")
	return inspectCmd
}

// newConfigCmd - Erstellt den config Command
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the merged model configuration",
		Args:  cobra.NoArgs,
		RunE:  ConfigHandler,
	}

	addConfigFlags(configCmd)
	return configCmd
}
