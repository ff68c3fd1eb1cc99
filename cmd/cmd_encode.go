// cmd_encode.go - Text- und Bild-Encoding
// Hauptfunktionen: EncodeHandler, EncodeImageHandler
package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ollama/cnclip/checkpoint"
	"github.com/ollama/cnclip/conditioner"
	"github.com/ollama/cnclip/model/cnclip"
	"github.com/ollama/cnclip/nn"
	"github.com/ollama/cnclip/vision"
)

// encodeResult - JSON-Ausgabe pro Text
type encodeResult struct {
	Text      string      `json:"text"`
	Embedding [][]float32 `json:"embedding"`
}

// EncodeHandler - Encodiert Texte mit dem TextConditioner
func EncodeHandler(cmd *cobra.Command, args []string) error {
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

	z, err := tc.Encode(args...)
	if err != nil {
		return err
	}

	shape := z.Shape()
	data := z.Data().([]float32)
	seq, width := shape[1], shape[2]
	rowSize := seq * width

	if wantJSON(cmd) {
		results := make([]encodeResult, len(args))
		for i, text := range args {
			rows := make([][]float32, seq)
			for s := range seq {
				off := i*rowSize + s*width
				rows[s] = data[off : off+width]
			}
			results[i] = encodeResult{Text: text, Embedding: rows}
		}
		return writeJSON(cmd.OutOrStdout(), results)
	}

	table := newTable(cmd.OutOrStdout(), "TEXT", "SHAPE", "NORM", "HEAD")
	for i, text := range args {
		row := data[i*rowSize : i*rowSize+width]
		table.Append([]string{
			truncate(text, 32),
			formatShape([]int{seq, width}),
			fmt.Sprintf("%.2f", l2norm(row)),
			formatFloats(row[:4]),
		})
	}
	table.Render()
	return nil
}

// conditionerOptions - Baut die Conditioner-Optionen aus den Flags
func conditionerOptions(cmd *cobra.Command) ([]conditioner.Option, error) {
	var opts []conditioner.Option
	for _, f := range []struct {
		name string
		opt  func(string) conditioner.Option
	}{
		{"checkpoint", conditioner.WithCheckpoint},
		{"text-config", conditioner.WithTextConfig},
		{"vision-config", conditioner.WithVisionConfig},
	} {
		v, err := requireFlag(cmd, f.name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, f.opt(v))
	}

	vocab, _ := cmd.Flags().GetString("vocab")
	device, _ := cmd.Flags().GetString("device")
	maxLength, _ := cmd.Flags().GetInt("max-length")
	threads, _ := cmd.Flags().GetInt("threads")
	seed, _ := cmd.Flags().GetUint64("seed")

	opts = append(opts,
		conditioner.WithDevice(device),
		conditioner.WithMaxLength(maxLength),
		conditioner.WithThreads(threads),
		conditioner.WithSeed(seed),
	)
	if vocab != "" {
		opts = append(opts, conditioner.WithVocab(vocab))
	}
	return opts, nil
}

// loadHead - Laedt trainierte Conditioner-Gewichte. Enthaelt der
// Checkpoint ein ganzes Diffusionsmodell, werden nur die
// cond_stage_model.* Eintraege verwendet.
func loadHead(tc *conditioner.TextConditioner, path string) error {
	ckpt, err := checkpoint.Load(path)
	if err != nil {
		return err
	}
	sd, err := ckpt.StateDict(checkpoint.StateDictKey)
	if err != nil {
		return err
	}

	src := nn.NewMapSource()
	for _, k := range sd.Keys() {
		if strings.HasPrefix(k, conditioner.HeadPrefix+".") {
			t, _ := sd.Get(k)
			src.Set(k, &nn.Parameter{Shape: t.Shape, Data: t.Data})
		}
	}
	if len(src.Keys()) == 0 {
		return tc.LoadStateDict(sd)
	}
	return tc.LoadStateDict(src)
}

// imageResult - JSON-Ausgabe pro Bild
type imageResult struct {
	File     string             `json:"file"`
	Features []float32          `json:"features"`
	Logits   map[string]float32 `json:"logits,omitempty"`
}

// EncodeImageHandler - Encodiert Bilder, optional mit Text-Scores
func EncodeImageHandler(cmd *cobra.Command, args []string) error {
	texts, _ := cmd.Flags().GetStringArray("text")

	var opts []cnclip.Option
	tok, err := loadTokenizer(cmd)
	if err != nil {
		if len(texts) > 0 {
			return err
		}
	} else {
		opts = append(opts, cnclip.WithPadID(tok.PadID()))
	}

	m, err := loadModel(cmd, opts...)
	if err != nil {
		return err
	}

	pre := vision.NewPreprocessor(m.Config().ImageResolution)
	if crop, _ := cmd.Flags().GetBool("crop"); crop {
		pre.Mode = vision.ModeCrop
	}

	pixels, err := pre.LoadBatch(args...)
	if err != nil {
		return err
	}
	features, err := m.EncodeImage(pixels)
	if err != nil {
		return err
	}

	var logits []float32
	if len(texts) > 0 {
		contextLength, _ := cmd.Flags().GetInt("context-length")
		ids, err := tok.Tokenize(texts, min(contextLength, m.Config().TextMaxPositions))
		if err != nil {
			return err
		}
		textFeatures, err := m.EncodeText(ids)
		if err != nil {
			return err
		}
		scores, err := m.Similarity(features, textFeatures)
		if err != nil {
			return err
		}
		logits = scores.Data().([]float32)
	}

	dim := m.Config().EmbedDim
	data := features.Data().([]float32)

	if wantJSON(cmd) {
		results := make([]imageResult, len(args))
		for i, file := range args {
			results[i] = imageResult{File: file, Features: data[i*dim : (i+1)*dim]}
			if logits != nil {
				results[i].Logits = make(map[string]float32, len(texts))
				for j, text := range texts {
					results[i].Logits[text] = logits[i*len(texts)+j]
				}
			}
		}
		return writeJSON(cmd.OutOrStdout(), results)
	}

	header := []string{"FILE", "NORM"}
	for _, text := range texts {
		header = append(header, truncate(text, 16))
	}
	table := newTable(cmd.OutOrStdout(), header...)
	for i, file := range args {
		row := []string{filepath.Base(file), fmt.Sprintf("%.2f", l2norm(data[i*dim:(i+1)*dim]))}
		for j := range texts {
			row = append(row, fmt.Sprintf("%.2f", logits[i*len(texts)+j]))
		}
		table.Append(row)
	}
	table.Render()
	return nil
}
