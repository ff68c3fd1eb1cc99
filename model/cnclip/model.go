// Modul: model.go
// Beschreibung: Bilinguales CLIP-Modell (Text- und Vision-Turm).
// Enthält: Model, New, Optionen, EncodeText, EncodeImage, Similarity, LoadStateDict.

package cnclip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/chewxy/math32"
	"github.com/pdevine/tensor"

	"github.com/ollama/cnclip/modelconfig"
	"github.com/ollama/cnclip/nn"
)

var ErrInput = errors.New("cnclip: invalid input tensor")

// Model is the bilingual CLIP network. Field order and tags follow the
// PyTorch state dict.
type Model struct {
	TextProjection *nn.Parameter `weight:"text_projection"`
	LogitScale     *nn.Parameter `weight:"logit_scale"`
	Visual         *VisionModel  `weight:"visual"`
	Text           *TextModel    `weight:"bert"`

	cfg     Config
	threads int
	pad     int32
}

// Option configures a Model
type Option func(*Model)

// WithThreads limits the number of batch rows encoded concurrently
func WithThreads(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.threads = n
		}
	}
}

// WithPadID sets the token id masked out of text attention
func WithPadID(id int32) Option {
	return func(m *Model) {
		m.pad = id
	}
}

// New builds a zero-initialized model from the merged config mapping
func New(c *modelconfig.Config, opts ...Option) (*Model, error) {
	cfg, err := ConfigFrom(c)
	if err != nil {
		return nil, err
	}

	m := &Model{
		TextProjection: nn.NewParameter(cfg.TextHiddenSize, cfg.EmbedDim),
		LogitScale:     nn.NewParameter(),
		Visual:         newVisionModel(cfg),
		Text:           newTextModel(cfg),
		cfg:            cfg,
		threads:        runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(m)
	}

	slog.Debug("cnclip model", "embed_dim", cfg.EmbedDim,
		"text_layers", cfg.TextLayers, "text_hidden", cfg.TextHiddenSize,
		"vision_layers", cfg.VisionLayers, "vision_width", cfg.VisionWidth,
		"image_resolution", cfg.ImageResolution)
	return m, nil
}

func (m *Model) Config() Config { return m.cfg }

// Parameters lists every weight under its state dict name
func (m *Model) Parameters() []nn.Named {
	return nn.Parameters(m, "")
}

// LoadStateDict applies src strictly: every key must exist with the same shape
func (m *Model) LoadStateDict(src nn.Source) error {
	if err := nn.LoadModule(m, src, ""); err != nil {
		return fmt.Errorf("load cnclip weights: %w", err)
	}
	return nil
}

// EncodeText encodes token ids [B, L] into text features [B, embed_dim]
func (m *Model) EncodeText(ids *tensor.Dense) (*tensor.Dense, error) {
	shape := ids.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("%w: token ids must be [batch, length], got %v", ErrInput, shape)
	}
	batch, length := shape[0], shape[1]

	flat, err := int32s(ids.Data())
	if err != nil {
		return nil, err
	}

	h, e := m.cfg.TextHiddenSize, m.cfg.EmbedDim
	out := make([]float32, batch*e)
	err = nn.Parallel(context.Background(), batch, m.threads, func(_ context.Context, b int) error {
		hidden, err := m.Text.Forward(flat[b*length:(b+1)*length], m.pad)
		if err != nil {
			return fmt.Errorf("text row %d: %w", b, err)
		}
		copy(out[b*e:], nn.MatMul(hidden[:h], 1, h, m.TextProjection.Data, e))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return tensor.New(tensor.WithShape(batch, e), tensor.WithBacking(out)), nil
}

// EncodeImage encodes preprocessed pixels [B, 3, R, R] into image features [B, embed_dim]
func (m *Model) EncodeImage(pixels *tensor.Dense) (*tensor.Dense, error) {
	r := m.cfg.ImageResolution
	shape := pixels.Shape()
	if len(shape) != 4 || shape[1] != 3 || shape[2] != r || shape[3] != r {
		return nil, fmt.Errorf("%w: pixels must be [batch, 3, %d, %d], got %v", ErrInput, r, r, shape)
	}

	data, ok := pixels.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: pixels must be float32, got %T", ErrInput, pixels.Data())
	}

	batch, size, e := shape[0], 3*r*r, m.cfg.EmbedDim
	out := make([]float32, batch*e)
	err := nn.Parallel(context.Background(), batch, m.threads, func(_ context.Context, b int) error {
		features, err := m.Visual.Forward(data[b*size : (b+1)*size])
		if err != nil {
			return fmt.Errorf("image %d: %w", b, err)
		}
		copy(out[b*e:], features)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return tensor.New(tensor.WithShape(batch, e), tensor.WithBacking(out)), nil
}

// Similarity returns the scaled cosine logits [images, texts]
func (m *Model) Similarity(images, texts *tensor.Dense) (*tensor.Dense, error) {
	img, ni, err := features(images, m.cfg.EmbedDim)
	if err != nil {
		return nil, err
	}
	txt, nt, err := features(texts, m.cfg.EmbedDim)
	if err != nil {
		return nil, err
	}

	scale := math32.Exp(m.LogitScale.Data[0])
	e := m.cfg.EmbedDim
	logits := make([]float32, ni*nt)
	for i := range ni {
		a := img[i*e : (i+1)*e]
		for j := range nt {
			logits[i*nt+j] = scale * dot(a, txt[j*e:(j+1)*e])
		}
	}
	return tensor.New(tensor.WithShape(ni, nt), tensor.WithBacking(logits)), nil
}

// features returns an L2-normalized copy of a [n, dim] float32 tensor
func features(t *tensor.Dense, dim int) ([]float32, int, error) {
	shape := t.Shape()
	if len(shape) != 2 || shape[1] != dim {
		return nil, 0, fmt.Errorf("%w: features must be [n, %d], got %v", ErrInput, dim, shape)
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, 0, fmt.Errorf("%w: features must be float32, got %T", ErrInput, t.Data())
	}

	out := make([]float32, len(data))
	copy(out, data)
	for i := range shape[0] {
		row := out[i*dim : (i+1)*dim]
		norm := math32.Sqrt(dot(row, row))
		if norm == 0 {
			continue
		}
		for j := range row {
			row[j] /= norm
		}
	}
	return out, shape[0], nil
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// int32s akzeptiert die gaengigen Integer-Backings fuer Token-IDs
func int32s(data any) ([]int32, error) {
	switch v := data.(type) {
	case []int32:
		return v, nil
	case []int64:
		out := make([]int32, len(v))
		for i, x := range v {
			out[i] = int32(x)
		}
		return out, nil
	case []int:
		out := make([]int32, len(v))
		for i, x := range v {
			out[i] = int32(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: token ids must be integers, got %T", ErrInput, data)
	}
}
