// cmd.go - Haupt-CLI Setup
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ollama/cnclip/envconfig"
	"github.com/ollama/cnclip/logutil"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "cnclip",
		Short:         "Bilingual CLIP text conditioner",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	encodeCmd := newEncodeCmd()
	encodeImageCmd := newEncodeImageCmd()
	serveCmd := newServeCmd()
	inspectCmd := newInspectCmd()
	configCmd := newConfigCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{encodeCmd, encodeImageCmd, serveCmd, inspectCmd, configCmd} {
		switch cmd {
		case encodeCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["CNCLIP_DEBUG"],
				envVars["CNCLIP_CHECKPOINT"],
				envVars["CNCLIP_TEXT_CONFIG"],
				envVars["CNCLIP_VISION_CONFIG"],
				envVars["CNCLIP_VOCAB"],
				envVars["CNCLIP_DEVICE"],
				envVars["CNCLIP_MAX_LENGTH"],
				envVars["CNCLIP_NUM_THREADS"],
			})
		case encodeImageCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["CNCLIP_DEBUG"],
				envVars["CNCLIP_CHECKPOINT"],
				envVars["CNCLIP_TEXT_CONFIG"],
				envVars["CNCLIP_VISION_CONFIG"],
				envVars["CNCLIP_VOCAB"],
				envVars["CNCLIP_NUM_THREADS"],
			})
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["CNCLIP_DEBUG"],
				envVars["CNCLIP_HOST"],
				envVars["CNCLIP_ORIGINS"],
				envVars["CNCLIP_MAX_BATCH"],
				envVars["CNCLIP_CHECKPOINT"],
				envVars["CNCLIP_TEXT_CONFIG"],
				envVars["CNCLIP_VISION_CONFIG"],
				envVars["CNCLIP_VOCAB"],
				envVars["CNCLIP_DEVICE"],
				envVars["CNCLIP_MAX_LENGTH"],
				envVars["CNCLIP_NUM_THREADS"],
			})
		case inspectCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["CNCLIP_DEBUG"]})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["CNCLIP_TEXT_CONFIG"],
				envVars["CNCLIP_VISION_CONFIG"],
			})
		}
	}

	rootCmd.AddCommand(
		encodeCmd,
		encodeImageCmd,
		serveCmd,
		inspectCmd,
		configCmd,
	)

	return rootCmd
}
