// reader_torch.go - PyTorch-Checkpoints (zip und Legacy-Pickle) via gopickle
package checkpoint

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/ollama/cnclip/logutil"
)

// loadTorch - Laedt eine mit torch.save geschriebene Datei
func loadTorch(path string) (*Checkpoint, error) {
	pt, err := pytorch.Load(path)
	if err != nil {
		return nil, err
	}

	top, ok := entries(pt)
	if !ok {
		return nil, fmt.Errorf("%w: top-level object is %T", ErrUnsupportedFormat, pt)
	}

	c := newCheckpoint(path, FormatTorch)
	for _, e := range top {
		k, ok := e.key.(string)
		if !ok {
			slog.Debug("skipping non-string checkpoint key", "key", e.key)
			continue
		}

		if inner, ok := entries(e.value); ok && isTensorMap(inner) {
			sd, err := torchStateDict(inner)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			c.entries.Set(k, sd)
			continue
		}

		c.entries.Set(k, e.value)
	}

	return c, nil
}

type entry struct {
	key, value any
}

// entries - Liest dict und OrderedDict in Datei-Reihenfolge
func entries(v any) ([]entry, bool) {
	switch m := v.(type) {
	case *types.Dict:
		keys := m.Keys()
		es := make([]entry, 0, len(keys))
		for _, k := range keys {
			es = append(es, entry{k, m.MustGet(k)})
		}
		return es, true
	case *types.OrderedDict:
		es := make([]entry, 0, m.Len())
		for el := m.List.Front(); el != nil; el = el.Next() {
			oe := el.Value.(*types.OrderedDictEntry)
			es = append(es, entry{oe.Key, oe.Value})
		}
		return es, true
	default:
		return nil, false
	}
}

// isTensorMap - Mindestens ein Tensor, keine verschachtelten Maps
func isTensorMap(es []entry) bool {
	var tensors int
	for _, e := range es {
		switch e.value.(type) {
		case *pytorch.Tensor:
			tensors++
		case *types.Dict, *types.OrderedDict:
			return false
		}
	}
	return tensors > 0
}

func torchStateDict(es []entry) (*StateDict, error) {
	sd := NewStateDict()
	for _, e := range es {
		name, ok := e.key.(string)
		if !ok {
			continue
		}

		pt, ok := e.value.(*pytorch.Tensor)
		if !ok {
			logutil.Trace("skipping non-tensor state dict entry", "name", name, "type", fmt.Sprintf("%T", e.value))
			continue
		}

		t, err := torchTensor(pt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		sd.Set(name, t)
	}
	return sd, nil
}

// torchTensor - Kopiert eine (ggf. nicht zusammenhaengende) Sicht nach float32
func torchTensor(pt *pytorch.Tensor) (*Tensor, error) {
	var src []float32
	switch s := pt.Source.(type) {
	case *pytorch.FloatStorage:
		src = s.Data
	case *pytorch.HalfStorage:
		src = s.Data
	case *pytorch.BFloat16Storage:
		src = s.Data
	case *pytorch.DoubleStorage:
		src = make([]float32, len(s.Data))
		for i, f := range s.Data {
			src[i] = float32(f)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedDType, pt.Source)
	}

	t := &Tensor{Shape: slices.Clone(pt.Size)}
	data, err := gather(src, pt.StorageOffset, t.Shape, pt.Stride)
	if err != nil {
		return nil, err
	}
	t.Data = data
	return t, nil
}

// gather - Sammelt Elemente einer strided Sicht in Row-Major-Reihenfolge
func gather(src []float32, offset int, shape, stride []int) ([]float32, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}

	if isContiguous(shape, stride) {
		if offset < 0 || offset+n > len(src) {
			return nil, fmt.Errorf("view [%d:%d] exceeds storage of %d elements", offset, offset+n, len(src))
		}
		return slices.Clone(src[offset : offset+n]), nil
	}

	last := offset
	for d := range shape {
		if shape[d] > 0 {
			last += (shape[d] - 1) * stride[d]
		}
	}
	if offset < 0 || last >= len(src) {
		return nil, fmt.Errorf("strided view ends at %d, storage has %d elements", last, len(src))
	}

	dst := make([]float32, n)
	idx := make([]int, len(shape))
	for i := range dst {
		pos := offset
		for d := range idx {
			pos += idx[d] * stride[d]
		}
		dst[i] = src[pos]

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return dst, nil
}

func isContiguous(shape, stride []int) bool {
	// ohne (passende) Stride-Angabe gilt die Sicht als zusammenhaengend
	if len(stride) != len(shape) {
		return true
	}

	expect := 1
	for d := len(shape) - 1; d >= 0; d-- {
		if shape[d] != 1 && stride[d] != expect {
			return false
		}
		expect *= shape[d]
	}
	return true
}
