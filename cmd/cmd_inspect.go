// cmd_inspect.go - Checkpoint- und Config-Ausgabe
// Hauptfunktionen: InspectHandler, ConfigHandler
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ollama/cnclip/checkpoint"
)

// tensorInfo - JSON-Ausgabe pro Tensor
type tensorInfo struct {
	Name   string `json:"name"`
	Shape  []int  `json:"shape"`
	Params int    `json:"params"`
}

// inspectResult - JSON-Ausgabe fuer inspect
type inspectResult struct {
	Format  checkpoint.Format `json:"format"`
	Keys    []string          `json:"keys"`
	Tensors []tensorInfo      `json:"tensors"`
	Params  int               `json:"params"`
}

// InspectHandler - Listet die Tensoren eines Checkpoints
func InspectHandler(cmd *cobra.Command, args []string) error {
	key, _ := cmd.Flags().GetString("key")
	filter, _ := cmd.Flags().GetString("filter")

	ckpt, err := checkpoint.Load(args[0])
	if err != nil {
		return err
	}
	sd, err := ckpt.StateDict(key)
	if err != nil {
		return err
	}

	result := inspectResult{Format: ckpt.Format, Keys: ckpt.Keys(), Tensors: []tensorInfo{}}
	for _, name := range sd.Keys() {
		if !strings.HasPrefix(name, filter) {
			continue
		}
		t, _ := sd.Get(name)
		result.Tensors = append(result.Tensors, tensorInfo{Name: name, Shape: t.Shape, Params: t.Numel()})
		result.Params += t.Numel()
	}

	if wantJSON(cmd) {
		return writeJSON(cmd.OutOrStdout(), result)
	}

	table := newTable(cmd.OutOrStdout(), "NAME", "SHAPE", "PARAMS")
	for _, t := range result.Tensors {
		table.Append([]string{t.Name, formatShape(t.Shape), fmt.Sprint(t.Params)})
	}
	table.Render()

	fmt.Fprintf(cmd.OutOrStdout(), "\n%s checkpoint, %d tensors, %d parameters\n", ckpt.Format, len(result.Tensors), result.Params)
	return nil
}

// ConfigHandler - Gibt die zusammengefuehrte Config als JSON aus
func ConfigHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), cfg)
}
