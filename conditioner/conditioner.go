// MODUL: conditioner
// ZWECK: Text-Conditioning fuer generative Modelle auf Basis von CN-CLIP
// INPUT: Vision-/Text-Config, Checkpoint, Vokabular; Texte fuer Encode
// OUTPUT: Normalisierte Text-Embeddings [B, S, 768]
// NEBENEFFEKTE: Liest Dateien beim Konstruieren, Debug-Logs
// ABHAENGIGKEITEN: modelconfig, checkpoint, tokenizer, model/cnclip, nn, device
// HINWEISE: Gewichte werden nicht eingefroren, Forward ist nebenlaeufig nutzbar

package conditioner

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"

	"github.com/pdevine/tensor"

	"github.com/ollama/cnclip/checkpoint"
	"github.com/ollama/cnclip/device"
	"github.com/ollama/cnclip/logutil"
	"github.com/ollama/cnclip/model/cnclip"
	"github.com/ollama/cnclip/modelconfig"
	"github.com/ollama/cnclip/nn"
	"github.com/ollama/cnclip/tokenizer"
)

// ============================================================================
// Konstanten und Fehler
// ============================================================================

const (
	// Width ist die feste Breite der Conditioning-Layer
	Width = 768

	// LayerNormEps ist eps der TF-LayerNorms (eps innerhalb der Wurzel)
	LayerNormEps = 1e-12

	// HeadPrefix ist der Prefix der Conditioner-Gewichte in LDM-Checkpoints
	HeadPrefix = "cond_stage_model"
)

var ErrWidth = errors.New("conditioner: encoder output width is not 768")

// ============================================================================
// Interfaces fuer Encoder und Tokenizer
// ============================================================================

// Encoder maps token ids [B, L] to text features.
type Encoder interface {
	EncodeText(ids *tensor.Dense) (*tensor.Dense, error)
}

// Tokenizer maps texts to token ids [B, contextLength].
type Tokenizer interface {
	Tokenize(texts []string, contextLength int) (*tensor.Dense, error)
}

// ============================================================================
// TextConditioner
// ============================================================================

// TextConditioner wraps the CLIP text encoder with LayerNorm, Linear and
// LayerNorm. Weight tags give the parameter names of the original module.
type TextConditioner struct {
	Model      Encoder       `weight:"model"`
	LayerNorm1 *nn.LayerNorm `weight:"layer_norm1"`
	Proj       *nn.Linear    `weight:"proj"`
	LayerNorm2 *nn.LayerNorm `weight:"layer_norm2"`

	opts      Options
	device    device.Device
	config    *modelconfig.Config
	tokenizer Tokenizer
}

// New loads configs, vocabulary and checkpoint and builds the conditioner.
// Every failure is returned; nothing is retried.
func New(opts ...Option) (*TextConditioner, error) {
	o := DefaultOptions()
	o.Apply(opts...)
	if err := o.Validate(); err != nil {
		return nil, err
	}

	dev, err := device.ParseAndResolve(o.Device)
	if err != nil {
		return nil, err
	}

	cfg, err := modelconfig.Load(o.VisionConfig, o.TextConfig)
	if err != nil {
		return nil, fmt.Errorf("conditioner: model config: %w", err)
	}

	vocab := o.Vocab
	if vocab == "" {
		vocab = filepath.Join(filepath.Dir(o.TextConfig), "vocab.txt")
	}
	tok, err := tokenizer.Load(vocab)
	if err != nil {
		return nil, fmt.Errorf("conditioner: vocabulary: %w", err)
	}

	model, err := cnclip.New(cfg, cnclip.WithThreads(o.Threads), cnclip.WithPadID(tok.PadID()))
	if err != nil {
		return nil, fmt.Errorf("conditioner: %w", err)
	}
	if n, want := tok.Vocabulary().Size(), model.Config().VocabSize; n > want {
		slog.Warn("vocabulary larger than vocab_size", "vocab", vocab, "tokens", n, "vocab_size", want)
	}

	ckpt, err := checkpoint.Load(o.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("conditioner: %w", err)
	}

	sd, err := ckpt.StateDict(checkpoint.StateDictKey)
	if err != nil {
		return nil, fmt.Errorf("conditioner: %w", err)
	}

	if err := model.LoadStateDict(checkpoint.StripPrefix(sd, checkpoint.ParallelPrefix)); err != nil {
		return nil, fmt.Errorf("conditioner: %s: %w", o.Checkpoint, err)
	}

	tc := newTextConditioner(o, model, tok)
	tc.device = dev
	tc.config = cfg

	slog.Debug("text conditioner ready", "version", o.Version, "device", dev,
		"checkpoint", o.Checkpoint, "format", ckpt.Format, "tensors", sd.Len(),
		"max_length", o.MaxLength, "threads", o.Threads)
	return tc, nil
}

// newTextConditioner initializes the conditioning layers around enc.
func newTextConditioner(o Options, enc Encoder, tok Tokenizer) *TextConditioner {
	tc := &TextConditioner{
		Model:      enc,
		LayerNorm1: nn.NewLayerNorm(Width, LayerNormEps),
		Proj:       nn.NewLinear(Width, Width, true),
		LayerNorm2: nn.NewLayerNorm(Width, LayerNormEps),
		opts:       o,
		device:     device.CPU,
		config:     modelconfig.New(),
		tokenizer:  tok,
	}
	tc.Proj.Init(rand.New(rand.NewPCG(o.Seed, o.Seed)))
	return tc
}

// Forward tokenizes texts, encodes them and applies layer_norm1, proj and
// layer_norm2 over the last axis. The encoder rank is kept.
func (tc *TextConditioner) Forward(texts ...string) (*tensor.Dense, error) {
	ids, err := tc.tokenizer.Tokenize(texts, tc.opts.MaxLength)
	if err != nil {
		return nil, err
	}

	z, err := tc.Model.EncodeText(ids)
	if err != nil {
		return nil, fmt.Errorf("conditioner: encode: %w", err)
	}

	shape := z.Shape().Clone()
	if len(shape) == 0 || shape[len(shape)-1] != Width {
		return nil, fmt.Errorf("%w: shape %v", ErrWidth, shape)
	}
	data, ok := z.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("conditioner: encoder returned %T, expected []float32", z.Data())
	}

	x := tc.LayerNorm1.Forward(data)
	x = tc.Proj.Forward(x)
	x = tc.LayerNorm2.Forward(x)

	logutil.Trace("conditioner forward", "batch", len(texts), "ids", ids.Shape(), "out", shape)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(x)), nil
}

// Encode is Forward with rank-2 results promoted to [B, 1, 768].
func (tc *TextConditioner) Encode(texts ...string) (*tensor.Dense, error) {
	z, err := tc.Forward(texts...)
	if err != nil {
		return nil, err
	}

	if shape := z.Shape(); len(shape) == 2 {
		if err := z.Reshape(shape[0], 1, shape[1]); err != nil {
			return nil, err
		}
	}
	return z, nil
}

// ============================================================================
// Parameter und Gewichte
// ============================================================================

// Parameters lists all weights, encoder included. None are frozen.
func (tc *TextConditioner) Parameters() []nn.Named {
	return nn.Parameters(tc, "")
}

// Frozen reports whether encoder weights are excluded from training.
func (tc *TextConditioner) Frozen() bool { return false }

// LoadStateDict applies src strictly to all parameters. Leading
// cond_stage_model. and module. prefixes are removed first, in either order.
func (tc *TextConditioner) LoadStateDict(src nn.Source) error {
	src = stripSource(src, checkpoint.ParallelPrefix)
	src = stripSource(src, HeadPrefix)
	src = stripSource(src, checkpoint.ParallelPrefix)
	if err := nn.LoadModule(tc, src, ""); err != nil {
		return fmt.Errorf("conditioner: %w", err)
	}
	return nil
}

// stripSource entfernt prefix+"." wenn der erste Key mit prefix beginnt
func stripSource(src nn.Source, prefix string) nn.Source {
	keys := src.Keys()
	if len(keys) == 0 || !strings.HasPrefix(keys[0], prefix) {
		return src
	}

	out := nn.NewMapSource()
	for _, k := range keys {
		shape, data, _ := src.Tensor(k)
		out.Set(strings.TrimPrefix(k, prefix+"."), &nn.Parameter{Shape: shape, Data: data})
	}
	return out
}

// ============================================================================
// Zugriff
// ============================================================================

// Config returns the merged vision and text configuration.
func (tc *TextConditioner) Config() *modelconfig.Config { return tc.config }

func (tc *TextConditioner) Options() Options { return tc.opts }

// Device is the resolved compute device.
func (tc *TextConditioner) Device() device.Device { return tc.device }
