// cmd_utils.go - Hilfsfunktionen fuer Commands
// Hauptfunktionen: loadModel, loadTokenizer, wantJSON, writeJSON, newTable
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ollama/cnclip/checkpoint"
	"github.com/ollama/cnclip/model/cnclip"
	"github.com/ollama/cnclip/modelconfig"
	"github.com/ollama/cnclip/tokenizer"
)

var errMissingFlag = errors.New("missing flag")

// requireFlag - Liest einen String-Flag, der gesetzt sein muss
func requireFlag(cmd *cobra.Command, name string) (string, error) {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("%w: --%s", errMissingFlag, name)
	}
	return v, nil
}

// loadConfig - Liest und merged Vision- und Text-Config aus den Flags
func loadConfig(cmd *cobra.Command) (*modelconfig.Config, error) {
	vision, err := requireFlag(cmd, "vision-config")
	if err != nil {
		return nil, err
	}
	text, err := requireFlag(cmd, "text-config")
	if err != nil {
		return nil, err
	}
	return modelconfig.Load(vision, text)
}

// loadTokenizer - Laedt vocab.txt aus --vocab oder neben der Text-Config
func loadTokenizer(cmd *cobra.Command) (*tokenizer.Tokenizer, error) {
	vocab, _ := cmd.Flags().GetString("vocab")
	if vocab == "" {
		text, _ := cmd.Flags().GetString("text-config")
		vocab = filepath.Join(filepath.Dir(text), "vocab.txt")
	}
	return tokenizer.Load(vocab)
}

// loadModel - Baut das Modell und laedt die Gewichte aus --checkpoint
func loadModel(cmd *cobra.Command, opts ...cnclip.Option) (*cnclip.Model, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	path, err := requireFlag(cmd, "checkpoint")
	if err != nil {
		return nil, err
	}
	threads, _ := cmd.Flags().GetInt("threads")

	m, err := cnclip.New(cfg, append(opts, cnclip.WithThreads(threads))...)
	if err != nil {
		return nil, err
	}

	ckpt, err := checkpoint.Load(path)
	if err != nil {
		return nil, err
	}
	sd, err := ckpt.StateDict(checkpoint.StateDictKey)
	if err != nil {
		return nil, err
	}
	if err := m.LoadStateDict(checkpoint.StripPrefix(sd, checkpoint.ParallelPrefix)); err != nil {
		return nil, err
	}
	return m, nil
}

// wantJSON - JSON bei --json oder wenn stdout kein Terminal ist
func wantJSON(cmd *cobra.Command) bool {
	if b, _ := cmd.Flags().GetBool("json"); b {
		return true
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	return !ok || !term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTable - Tabelle im Stil von "ollama list"
func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

// truncate - Kuerzt auf Anzeigebreite, CJK-Zeichen zaehlen doppelt
func truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "...")
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatFloats(vs []float32) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(float64(v), 'f', 4, 32)
	}
	return strings.Join(parts, " ")
}

func l2norm(vs []float32) float32 {
	var s float32
	for _, v := range vs {
		s += v * v
	}
	return math32.Sqrt(s)
}
