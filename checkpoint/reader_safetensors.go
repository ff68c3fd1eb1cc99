// reader_safetensors.go - Safetensors-Dateien (F32, F16, BF16, F64)
//
// Die Tensoren liegen flach im Dokument. Sie werden in Daten-Reihenfolge
// als StateDict unter StateDictKey abgelegt, __metadata__ als Metadaten.
package checkpoint

import (
	"cmp"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

type safetensorsEntry struct {
	DType   string   `json:"dtype"`
	Shape   []int    `json:"shape"`
	Offsets [2]int64 `json:"data_offsets"`
}

func loadSafetensors(path string) (*Checkpoint, error) {
	bts, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(bts) < 8 {
		return nil, fmt.Errorf("%w: truncated header", ErrUnsupportedFormat)
	}

	n := binary.LittleEndian.Uint64(bts[:8])
	if n > uint64(len(bts)-8) {
		return nil, fmt.Errorf("%w: header length %d exceeds file size", ErrUnsupportedFormat, n)
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(bts[8:8+n], &header); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	data := bts[8+n:]

	type named struct {
		name string
		safetensorsEntry
	}

	c := newCheckpoint(path, FormatSafetensors)
	var ts []named
	for k, raw := range header {
		if k == "__metadata__" {
			var md map[string]string
			if err := json.Unmarshal(raw, &md); err != nil {
				return nil, fmt.Errorf("parse metadata: %w", err)
			}
			c.entries.Set(k, md)
			continue
		}

		var e safetensorsEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		ts = append(ts, named{k, e})
	}

	slices.SortFunc(ts, func(a, b named) int {
		return cmp.Or(cmp.Compare(a.Offsets[0], b.Offsets[0]), cmp.Compare(a.name, b.name))
	})

	sd := NewStateDict()
	for _, t := range ts {
		begin, end := t.Offsets[0], t.Offsets[1]
		if begin < 0 || end < begin || end > int64(len(data)) {
			return nil, fmt.Errorf("%s: data offsets [%d, %d] out of range", t.name, begin, end)
		}

		f32s, err := decode(t.DType, data[begin:end])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.name, err)
		}

		tensor := &Tensor{Shape: t.Shape, Data: f32s}
		if tensor.Numel() != len(f32s) {
			return nil, fmt.Errorf("%s: shape %v does not match %d elements", t.name, t.Shape, len(f32s))
		}
		sd.Set(t.name, tensor)
	}
	c.entries.Set(StateDictKey, sd)

	return c, nil
}

// decode - Konvertiert Rohdaten eines Tensors nach float32
func decode(dtype string, raw []byte) ([]float32, error) {
	switch dtype {
	case "F32":
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("F32 data of %d bytes", len(raw))
		}
		f32s := make([]float32, len(raw)/4)
		for i := range f32s {
			f32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		return f32s, nil
	case "F16":
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("F16 data of %d bytes", len(raw))
		}
		f32s := make([]float32, len(raw)/2)
		for i := range f32s {
			f32s[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
		}
		return f32s, nil
	case "BF16":
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("BF16 data of %d bytes", len(raw))
		}
		return bfloat16.DecodeFloat32(raw), nil
	case "F64":
		if len(raw)%8 != 0 {
			return nil, fmt.Errorf("F64 data of %d bytes", len(raw))
		}
		f32s := make([]float32, len(raw)/8)
		for i := range f32s {
			f32s[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:])))
		}
		return f32s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}
}
