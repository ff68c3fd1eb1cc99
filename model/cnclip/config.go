// Modul: config.go
// Beschreibung: Modell-Konfiguration aus der zusammengefuehrten Config-Map.
// Enthält: Config, ConfigFrom, Validierung.

package cnclip

import (
	"errors"
	"fmt"

	"github.com/ollama/cnclip/modelconfig"
)

var (
	ErrMissingKey      = errors.New("cnclip: missing config key")
	ErrResNetUnsupport = errors.New("cnclip: ResNet visual backbones are not supported")
	ErrInvalidConfig   = errors.New("cnclip: invalid config")
)

// Config holds the bilingual CLIP hyperparameters
type Config struct {
	EmbedDim int `json:"embed_dim"`

	ImageResolution int `json:"image_resolution"`
	VisionLayers    int `json:"vision_layers"`
	VisionWidth     int `json:"vision_width"`
	VisionPatchSize int `json:"vision_patch_size"`
	VisionHeadWidth int `json:"vision_head_width"`

	VocabSize        int     `json:"vocab_size"`
	TextHiddenSize   int     `json:"text_hidden_size"`
	TextLayers       int     `json:"text_num_hidden_layers"`
	TextHeads        int     `json:"text_num_attention_heads"`
	TextIntermediate int     `json:"text_intermediate_size"`
	TextMaxPositions int     `json:"text_max_position_embeddings"`
	TextTypeVocab    int     `json:"text_type_vocab_size"`
	TextHiddenAct    string  `json:"text_hidden_act"`
	TextLayerNormEps float32 `json:"text_layer_norm_eps"`
}

// ConfigFrom reads the hyperparameters, every size key is required
func ConfigFrom(c *modelconfig.Config) (Config, error) {
	if c.Ints("vision_layers") != nil {
		return Config{}, ErrResNetUnsupport
	}

	var missing []string
	required := func(key string) int {
		if !c.Has(key) {
			missing = append(missing, key)
		}
		return c.Int(key)
	}

	cfg := Config{
		EmbedDim:         required("embed_dim"),
		ImageResolution:  required("image_resolution"),
		VisionLayers:     required("vision_layers"),
		VisionWidth:      required("vision_width"),
		VisionPatchSize:  required("vision_patch_size"),
		VisionHeadWidth:  c.Int("vision_head_width", 64),
		VocabSize:        required("vocab_size"),
		TextHiddenSize:   required("text_hidden_size"),
		TextLayers:       required("text_num_hidden_layers"),
		TextHeads:        required("text_num_attention_heads"),
		TextIntermediate: required("text_intermediate_size"),
		TextMaxPositions: required("text_max_position_embeddings"),
		TextTypeVocab:    required("text_type_vocab_size"),
		TextHiddenAct:    c.String("text_hidden_act", "gelu"),
		TextLayerNormEps: float32(c.Float("text_layer_norm_eps", 1e-12)),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %v", ErrMissingKey, missing)
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	positive := map[string]int{
		"embed_dim":                    c.EmbedDim,
		"image_resolution":             c.ImageResolution,
		"vision_layers":                c.VisionLayers,
		"vision_width":                 c.VisionWidth,
		"vision_patch_size":            c.VisionPatchSize,
		"vision_head_width":            c.VisionHeadWidth,
		"vocab_size":                   c.VocabSize,
		"text_hidden_size":             c.TextHiddenSize,
		"text_num_hidden_layers":       c.TextLayers,
		"text_num_attention_heads":     c.TextHeads,
		"text_intermediate_size":       c.TextIntermediate,
		"text_max_position_embeddings": c.TextMaxPositions,
		"text_type_vocab_size":         c.TextTypeVocab,
	}
	for k, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s = %d", ErrInvalidConfig, k, v))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if c.TextHiddenSize%c.TextHeads != 0 {
		errs = append(errs, fmt.Errorf("%w: text_hidden_size %d not divisible by %d heads", ErrInvalidConfig, c.TextHiddenSize, c.TextHeads))
	}
	if c.VisionWidth%c.VisionHeadWidth != 0 {
		errs = append(errs, fmt.Errorf("%w: vision_width %d not divisible by head width %d", ErrInvalidConfig, c.VisionWidth, c.VisionHeadWidth))
	}
	if c.ImageResolution%c.VisionPatchSize != 0 {
		errs = append(errs, fmt.Errorf("%w: image_resolution %d not divisible by patch size %d", ErrInvalidConfig, c.ImageResolution, c.VisionPatchSize))
	}
	if _, ok := activation(c.TextHiddenAct); !ok {
		errs = append(errs, fmt.Errorf("%w: text_hidden_act %q", ErrInvalidConfig, c.TextHiddenAct))
	}
	return errors.Join(errs...)
}

// VisionHeads is the number of attention heads of the vision tower
func (c Config) VisionHeads() int {
	return c.VisionWidth / c.VisionHeadWidth
}

// GridSize is the number of patches per image side
func (c Config) GridSize() int {
	return c.ImageResolution / c.VisionPatchSize
}
