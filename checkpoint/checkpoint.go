// checkpoint.go - Checkpoint-Laden: PyTorch- und Safetensors-Dateien
// Hauptfunktionen: Load, Checkpoint.StateDict, StripPrefix
//
// Ein Checkpoint ist eine geordnete Top-Level-Map. Eintraege, deren Werte
// ausschliesslich Tensoren sind, werden als StateDict abgelegt, alle
// anderen Werte (epoch, step, ...) bleiben als Metadaten erhalten.
package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Format - Dateiformat eines Checkpoints
type Format string

const (
	FormatTorch       Format = "torch"
	FormatSafetensors Format = "safetensors"
)

// StateDictKey ist der Top-Level-Schluessel unter dem die Parameter liegen
const StateDictKey = "state_dict"

// ParallelPrefix markiert Checkpoints aus DataParallel/DistributedDataParallel
const ParallelPrefix = "module"

var (
	ErrUnsupportedFormat = errors.New("checkpoint: unsupported file format")
	ErrUnsupportedDType  = errors.New("checkpoint: unsupported tensor dtype")
	ErrNoStateDict       = errors.New("checkpoint: state dict not found")
)

// Checkpoint - Geladener Checkpoint mit Top-Level-Eintraegen
type Checkpoint struct {
	Path    string
	Format  Format
	entries *orderedmap.OrderedMap[string, any]
}

func newCheckpoint(path string, format Format) *Checkpoint {
	return &Checkpoint{
		Path:    path,
		Format:  format,
		entries: orderedmap.New[string, any](),
	}
}

// Load - Laedt einen Checkpoint, das Format wird am Dateiinhalt erkannt
func Load(path string) (*Checkpoint, error) {
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}

	slog.Debug("loading checkpoint", "path", path, "format", format)

	var c *Checkpoint
	switch format {
	case FormatTorch:
		c, err = loadTorch(path)
	case FormatSafetensors:
		c, err = loadSafetensors(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return c, nil
}

// detectFormat - Erkennt das Format an den ersten Bytes
func detectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 9)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	head = head[:n]

	switch {
	// zip-Container (torch.save seit 1.6)
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return FormatTorch, nil
	// Legacy-Pickle beginnt mit dem PROTO-Opcode
	case len(head) > 0 && head[0] == 0x80:
		return FormatTorch, nil
	// 8 Byte Header-Laenge, danach JSON
	case len(head) == 9 && head[8] == '{':
		return FormatSafetensors, nil
	}

	return "", fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
}

// Keys - Top-Level-Schluessel in Datei-Reihenfolge
func (c *Checkpoint) Keys() []string {
	keys := make([]string, 0, c.entries.Len())
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// StateDict - Gibt die Parameter-Map unter dem Schluessel zurueck
func (c *Checkpoint) StateDict(key string) (*StateDict, error) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: key %q in %s (keys: %s)", ErrNoStateDict, key, c.Path, strings.Join(c.Keys(), ", "))
	}

	sd, ok := v.(*StateDict)
	if !ok {
		return nil, fmt.Errorf("%w: key %q in %s holds %T", ErrNoStateDict, key, c.Path, v)
	}
	return sd, nil
}

// Metadata - Gibt einen Nicht-Tensor-Eintrag zurueck
func (c *Checkpoint) Metadata(key string) (any, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if _, isSD := v.(*StateDict); isSD {
		return nil, false
	}
	return v, true
}

// StripPrefix - Entfernt "prefix." von allen Schluesseln, wenn der erste
// Schluessel mit prefix beginnt. Sonst wird sd unveraendert zurueckgegeben.
func StripPrefix(sd *StateDict, prefix string) *StateDict {
	keys := sd.Keys()
	if len(keys) == 0 || !strings.HasPrefix(keys[0], prefix) {
		return sd
	}

	slog.Debug("stripping state dict prefix", "prefix", prefix, "tensors", len(keys))

	stripped := NewStateDict()
	for _, k := range keys {
		t, _ := sd.Get(k)
		stripped.Set(strings.TrimPrefix(k, prefix+"."), t)
	}
	return stripped
}
