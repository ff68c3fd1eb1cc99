// config.go - Konfigurations-Buendel aus Vision- und Text-Config
// Hauptfunktionen: Load, Merge, Read
//
// Beide JSON-Dokumente werden als geordnete Key-Value-Maps gelesen und
// zu einer Map zusammengefuehrt. Bei Kollision gewinnt der Text-Eintrag,
// die Position des Schluessels bleibt die der Vision-Config.
package modelconfig

import (
	"encoding/json"
	"fmt"
	"iter"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Config - Geordnete Key-Value-Map einer Modell-Konfiguration
type Config struct {
	m *orderedmap.OrderedMap[string, any]
}

// New - Erstellt eine leere Konfiguration
func New() *Config {
	return &Config{m: orderedmap.New[string, any]()}
}

// Read - Liest eine JSON-Konfiguration von der Platte
func Read(path string) (*Config, error) {
	bts, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := New()
	if err := json.Unmarshal(bts, c.m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// Load - Liest Vision- und Text-Config und fuehrt beide zusammen
func Load(visionPath, textPath string) (*Config, error) {
	vision, err := Read(visionPath)
	if err != nil {
		return nil, err
	}

	text, err := Read(textPath)
	if err != nil {
		return nil, err
	}

	return Merge(vision, text), nil
}

// Merge - Fuehrt Konfigurationen zusammen, spaetere ueberschreiben fruehere
func Merge(configs ...*Config) *Config {
	merged := New()
	for _, c := range configs {
		if c == nil {
			continue
		}
		for k, v := range c.All() {
			merged.m.Set(k, v)
		}
	}
	return merged
}

// Set - Setzt einen Wert
func (c *Config) Set(key string, value any) {
	c.m.Set(key, value)
}

// Value - Gibt einen Rohwert zurueck
func (c *Config) Value(key string) (any, bool) {
	return c.m.Get(key)
}

// Has - Prueft ob ein Schluessel existiert
func (c *Config) Has(key string) bool {
	_, ok := c.m.Get(key)
	return ok
}

// Len - Anzahl der Eintraege
func (c *Config) Len() int {
	return c.m.Len()
}

// Keys - Schluessel in Einfuege-Reihenfolge
func (c *Config) Keys() []string {
	keys := make([]string, 0, c.m.Len())
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// All - Iteriert ueber alle Eintraege in Einfuege-Reihenfolge
func (c *Config) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Map - Kopie als ungeordnete Map
func (c *Config) Map() map[string]any {
	m := make(map[string]any, c.m.Len())
	for k, v := range c.All() {
		m[k] = v
	}
	return m
}

// MarshalJSON - Serialisiert in Einfuege-Reihenfolge
func (c *Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.m)
}
