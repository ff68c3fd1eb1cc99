// MODUL: options
// ZWECK: Functional Options fuer den TextConditioner
// INPUT: Optionen als Funktionen oder als Key-Value-Map (Python-kwargs-Stil)
// OUTPUT: Options Struct mit Konfiguration
// NEBENEFFEKTE: Keine
// HINWEISE: version, n_repeat und normalize werden gespeichert, aber nicht ausgewertet

package conditioner

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
)

// ============================================================================
// Options - Zentrale Konfigurationsstruktur
// ============================================================================

// Options holds the conditioner settings.
type Options struct {
	Version      string // Modell-Bezeichner, nur fuer Logs
	Device       string // "cpu", "cuda", "cuda:1", ...
	MaxLength    int    // Kontextlaenge des Tokenizers
	Repeat       int    // n_repeat
	Normalize    bool   // normalize
	Checkpoint   string // model_dir
	TextConfig   string // text_model_config_file
	VisionConfig string // vision_model_config_file
	Vocab        string // vocab.txt, Default neben der Text-Config
	Seed         uint64 // Seed fuer die Initialisierung von proj
	Threads      int    // parallele Batch-Zeilen
}

// Option is a functional option for Options.
type Option func(*Options)

var (
	ErrMissingOption = errors.New("conditioner: missing option")
	ErrInvalidOption = errors.New("conditioner: invalid option")
)

const (
	DefaultVersion   = "ViT-L/14"
	DefaultDevice    = "cpu"
	DefaultMaxLength = 77
)

// DefaultOptions returns the defaults of the original constructor.
func DefaultOptions() Options {
	return Options{
		Version:   DefaultVersion,
		Device:    DefaultDevice,
		MaxLength: DefaultMaxLength,
		Repeat:    1,
		Normalize: true,
		Threads:   runtime.NumCPU(),
	}
}

// ============================================================================
// Functional Options
// ============================================================================

func WithVersion(v string) Option {
	return func(o *Options) { o.Version = v }
}

func WithDevice(d string) Option {
	return func(o *Options) { o.Device = d }
}

// WithMaxLength sets the tokenizer context length.
func WithMaxLength(n int) Option {
	return func(o *Options) { o.MaxLength = n }
}

func WithRepeat(n int) Option {
	return func(o *Options) { o.Repeat = n }
}

func WithNormalize(b bool) Option {
	return func(o *Options) { o.Normalize = b }
}

// WithCheckpoint sets the checkpoint file (model_dir).
func WithCheckpoint(path string) Option {
	return func(o *Options) { o.Checkpoint = path }
}

func WithTextConfig(path string) Option {
	return func(o *Options) { o.TextConfig = path }
}

func WithVisionConfig(path string) Option {
	return func(o *Options) { o.VisionConfig = path }
}

func WithVocab(path string) Option {
	return func(o *Options) { o.Vocab = path }
}

func WithSeed(seed uint64) Option {
	return func(o *Options) { o.Seed = seed }
}

// WithThreads setzt die Anzahl paralleler Zeilen. Werte <= 0 werden ignoriert.
func WithThreads(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Threads = n
		}
	}
}

// Apply wendet alle Options an.
func (o *Options) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}

// Validate prueft Pflichtfelder und Wertebereiche.
func (o *Options) Validate() error {
	var errs []error
	for name, v := range map[string]string{
		"model_dir":                o.Checkpoint,
		"text_model_config_file":   o.TextConfig,
		"vision_model_config_file": o.VisionConfig,
	} {
		if v == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingOption, name))
		}
	}
	if o.MaxLength < 2 {
		errs = append(errs, fmt.Errorf("%w: max_length %d < 2", ErrInvalidOption, o.MaxLength))
	}
	if o.Repeat < 1 {
		errs = append(errs, fmt.Errorf("%w: n_repeat %d < 1", ErrInvalidOption, o.Repeat))
	}
	return errors.Join(errs...)
}

// ============================================================================
// FromMap - Optionen aus Key-Value-Map
// ============================================================================

// FromMap converts constructor keyword arguments into options. Unknown keys
// are ignored, values of the wrong type are an error.
func FromMap(m map[string]any) ([]Option, error) {
	var opts []Option
	var errs []error

	str := func(key string, v any, fn func(string) Option) {
		if s, ok := v.(string); ok {
			opts = append(opts, fn(s))
			return
		}
		errs = append(errs, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidOption, key, v))
	}
	integer := func(key string, v any, fn func(int) Option) {
		if n, ok := toInt(v); ok {
			opts = append(opts, fn(n))
			return
		}
		errs = append(errs, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidOption, key, v))
	}

	for key, v := range m {
		switch key {
		case "version":
			str(key, v, WithVersion)
		case "device":
			str(key, v, WithDevice)
		case "model_dir":
			str(key, v, WithCheckpoint)
		case "text_model_config_file":
			str(key, v, WithTextConfig)
		case "vision_model_config_file":
			str(key, v, WithVisionConfig)
		case "vocab_file":
			str(key, v, WithVocab)
		case "max_length":
			integer(key, v, WithMaxLength)
		case "n_repeat":
			integer(key, v, WithRepeat)
		case "threads":
			integer(key, v, WithThreads)
		case "seed":
			integer(key, v, func(n int) Option { return WithSeed(uint64(n)) })
		case "normalize":
			if b, ok := v.(bool); ok {
				opts = append(opts, WithNormalize(b))
			} else {
				errs = append(errs, fmt.Errorf("%w: normalize must be a bool, got %T", ErrInvalidOption, v))
			}
		default:
			slog.Debug("ignoring conditioner option", "key", key)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return opts, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), n == math.Trunc(n)
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
