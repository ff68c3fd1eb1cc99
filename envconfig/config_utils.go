// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// String- und Integer-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"CNCLIP_DEBUG":         {"CNCLIP_DEBUG", LogLevel(), "Show additional debug information (e.g. CNCLIP_DEBUG=1)"},
		"CNCLIP_DEVICE":        {"CNCLIP_DEVICE", Device(), "Target device for tokenized input (default \"cpu\")"},
		"CNCLIP_MAX_LENGTH":    {"CNCLIP_MAX_LENGTH", MaxLength(), "Maximum token length passed to the tokenizer (default 77)"},
		"CNCLIP_NUM_THREADS":   {"CNCLIP_NUM_THREADS", NumThreads(), "Maximum number of parallel workers"},
		"CNCLIP_CHECKPOINT":    {"CNCLIP_CHECKPOINT", Checkpoint(), "Path to the model checkpoint"},
		"CNCLIP_TEXT_CONFIG":   {"CNCLIP_TEXT_CONFIG", TextConfig(), "Path to the text model JSON config"},
		"CNCLIP_VISION_CONFIG": {"CNCLIP_VISION_CONFIG", VisionConfig(), "Path to the vision model JSON config"},
		"CNCLIP_VOCAB":         {"CNCLIP_VOCAB", Vocab(), "Path to the WordPiece vocabulary (default: vocab.txt next to the text config)"},
		"CNCLIP_HOST":          {"CNCLIP_HOST", Host(), "IP address and port for cnclip serve (default 127.0.0.1:11500)"},
		"CNCLIP_ORIGINS":       {"CNCLIP_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"CNCLIP_MAX_BATCH":     {"CNCLIP_MAX_BATCH", MaxBatch(), "Maximum inputs per HTTP request (default 64)"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
