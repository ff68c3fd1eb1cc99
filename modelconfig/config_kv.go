// config_kv.go - KV-Getter: Typisierte Zugriffsmethoden fuer Config
// Hauptfunktionen: String, Int, Float, Bool, Ints
package modelconfig

import (
	"encoding/json"
	"math"
)

// String - Gibt String-Wert zurueck
func (c *Config) String(key string, defaultValue ...string) string {
	if s, ok := c.value(key).(string); ok {
		return s
	}
	return first(defaultValue, "")
}

// Int - Gibt int-Wert zurueck, JSON-Zahlen muessen ganzzahlig sein
func (c *Config) Int(key string, defaultValue ...int) int {
	if f, ok := toFloat(c.value(key)); ok && f == math.Trunc(f) {
		return int(f)
	}
	return first(defaultValue, 0)
}

// Float - Gibt float64-Wert zurueck
func (c *Config) Float(key string, defaultValue ...float64) float64 {
	if f, ok := toFloat(c.value(key)); ok {
		return f
	}
	return first(defaultValue, 0)
}

// Bool - Gibt bool-Wert zurueck
func (c *Config) Bool(key string, defaultValue ...bool) bool {
	if b, ok := c.value(key).(bool); ok {
		return b
	}
	return first(defaultValue, false)
}

// Ints - Gibt int-Array zurueck, nil wenn der Wert kein Zahlen-Array ist
func (c *Config) Ints(key string) []int {
	vs, ok := c.value(key).([]any)
	if !ok {
		return nil
	}

	ints := make([]int, 0, len(vs))
	for _, v := range vs {
		f, ok := toFloat(v)
		if !ok {
			return nil
		}
		ints = append(ints, int(f))
	}
	return ints
}

func (c *Config) value(key string) any {
	v, _ := c.m.Get(key)
	return v
}

// toFloat - Normalisiert JSON- und Go-Zahlentypen
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func first[T any](vs []T, fallback T) T {
	if len(vs) > 0 {
		return vs[0]
	}
	return fallback
}
