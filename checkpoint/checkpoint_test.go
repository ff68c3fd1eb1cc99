package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/d4l3k/go-bfloat16"
	"github.com/google/go-cmp/cmp"
	"github.com/x448/float16"
)

type testTensor struct {
	name  string
	dtype string
	shape []int
	data  []float32
}

// writeSafetensors schreibt eine minimale Safetensors-Datei
func writeSafetensors(t *testing.T, path string, metadata map[string]string, tensors ...testTensor) {
	t.Helper()

	header := map[string]any{}
	if metadata != nil {
		header["__metadata__"] = metadata
	}

	var data []byte
	for _, tt := range tensors {
		begin := len(data)
		switch tt.dtype {
		case "F32":
			for _, f := range tt.data {
				data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
			}
		case "F16":
			for _, f := range tt.data {
				data = binary.LittleEndian.AppendUint16(data, float16.Fromfloat32(f).Bits())
			}
		case "BF16":
			data = append(data, bfloat16.EncodeFloat32(tt.data)...)
		default:
			t.Fatalf("unbekannter dtype %s", tt.dtype)
		}
		header[tt.name] = map[string]any{
			"dtype":        tt.dtype,
			"shape":        tt.shape,
			"data_offsets": []int{begin, len(data)},
		}
	}

	bts, err := json.Marshal(header)
	if err != nil {
		t.Fatal(err)
	}

	out := binary.LittleEndian.AppendUint64(nil, uint64(len(bts)))
	out = append(out, bts...)
	out = append(out, data...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSafetensors(t *testing.T) {
	p := filepath.Join(t.TempDir(), "model.safetensors")
	writeSafetensors(t, p, map[string]string{"format": "pt"},
		testTensor{"module.proj.weight", "F32", []int{2, 2}, []float32{1, 2, 3, 4}},
		testTensor{"module.proj.bias", "F16", []int{2}, []float32{0.5, -1}},
		testTensor{"module.logit_scale", "BF16", []int{}, []float32{4}},
	)

	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.Format != FormatSafetensors {
		t.Errorf("Format = %s, erwartet %s", c.Format, FormatSafetensors)
	}

	sd, err := c.StateDict(StateDictKey)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"module.proj.weight", "module.proj.bias", "module.logit_scale"}
	if diff := cmp.Diff(want, sd.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	cases := map[string]*Tensor{
		"module.proj.weight": {Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}},
		"module.proj.bias":   {Shape: []int{2}, Data: []float32{0.5, -1}},
		"module.logit_scale": {Shape: []int{}, Data: []float32{4}},
	}
	for name, want := range cases {
		got, ok := sd.Get(name)
		if !ok {
			t.Errorf("%s fehlt", name)
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}

	md, ok := c.Metadata("__metadata__")
	if !ok {
		t.Fatal("__metadata__ fehlt")
	}
	if diff := cmp.Diff(map[string]string{"format": "pt"}, md); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	if _, ok := c.Metadata(StateDictKey); ok {
		t.Error("state_dict darf nicht als Metadaten erscheinen")
	}

	if sd.Params() != 7 {
		t.Errorf("Params() = %d, erwartet 7", sd.Params())
	}
}

// testdata/small.pt wird von testdata/make_torch.py erzeugt
func TestLoadTorch(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "small.pt"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Format != FormatTorch {
		t.Errorf("Format = %s, erwartet %s", c.Format, FormatTorch)
	}

	if diff := cmp.Diff([]string{"epoch", StateDictKey}, c.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	epoch, ok := c.Metadata("epoch")
	if !ok {
		t.Fatal("epoch fehlt")
	}
	if diff := cmp.Diff(3, epoch); diff != "" {
		t.Errorf("epoch mismatch (-want +got):\n%s", diff)
	}

	sd, err := c.StateDict(StateDictKey)
	if err != nil {
		t.Fatal(err)
	}
	sd = StripPrefix(sd, ParallelPrefix)

	if diff := cmp.Diff([]string{"a.weight", "b"}, sd.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	cases := map[string]*Tensor{
		"a.weight": {Shape: []int{2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
		"b":        {Shape: []int{2}, Data: []float32{7, 8}},
	}
	for name, want := range cases {
		got, ok := sd.Get(name)
		if !ok {
			t.Errorf("%s fehlt", name)
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestStateDictMissingKey(t *testing.T) {
	p := filepath.Join(t.TempDir(), "model.safetensors")
	writeSafetensors(t, p, nil, testTensor{"w", "F32", []int{1}, []float32{1}})

	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.StateDict("model"); !errors.Is(err, ErrNoStateDict) {
		t.Errorf("StateDict(model) error = %v, erwartet ErrNoStateDict", err)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("fehlende Datei", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.pt"))
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Load() error = %v, erwartet fs.ErrNotExist", err)
		}
	})

	t.Run("unbekanntes Format", func(t *testing.T) {
		p := filepath.Join(dir, "garbage.bin")
		if err := os.WriteFile(p, []byte("definitely not a checkpoint"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(p); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Load() error = %v, erwartet ErrUnsupportedFormat", err)
		}
	})

	t.Run("leere Datei", func(t *testing.T) {
		p := filepath.Join(dir, "empty.pt")
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(p); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Load() error = %v, erwartet ErrUnsupportedFormat", err)
		}
	})

	t.Run("unbekannter dtype", func(t *testing.T) {
		p := filepath.Join(dir, "int.safetensors")
		header := []byte(`{"w":{"dtype":"I64","shape":[1],"data_offsets":[0,8]}}`)
		out := binary.LittleEndian.AppendUint64(nil, uint64(len(header)))
		out = append(out, header...)
		out = append(out, make([]byte, 8)...)
		if err := os.WriteFile(p, out, 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(p); !errors.Is(err, ErrUnsupportedDType) {
			t.Errorf("Load() error = %v, erwartet ErrUnsupportedDType", err)
		}
	})
}

func TestStripPrefix(t *testing.T) {
	w := &Tensor{Shape: []int{1}, Data: []float32{1}}

	t.Run("mit Prefix", func(t *testing.T) {
		sd := NewStateDict()
		sd.Set("module.bert.embeddings.word_embeddings.weight", w)
		sd.Set("module.text_projection", w)
		sd.Set("module.logit_scale", w)

		got := StripPrefix(sd, ParallelPrefix)
		want := []string{"bert.embeddings.word_embeddings.weight", "text_projection", "logit_scale"}
		if diff := cmp.Diff(want, got.Keys()); diff != "" {
			t.Errorf("keys mismatch (-want +got):\n%s", diff)
		}

		// Eingabe bleibt unveraendert
		if sd.Keys()[0] != "module.bert.embeddings.word_embeddings.weight" {
			t.Error("StripPrefix hat die Eingabe veraendert")
		}
	})

	t.Run("ohne Prefix", func(t *testing.T) {
		sd := NewStateDict()
		sd.Set("bert.pooler.dense.weight", w)
		sd.Set("module_like.weight", w)

		got := StripPrefix(sd, ParallelPrefix)
		if got != sd {
			t.Error("StripPrefix sollte die StateDict unveraendert zurueckgeben")
		}
		if diff := cmp.Diff([]string{"bert.pooler.dense.weight", "module_like.weight"}, got.Keys()); diff != "" {
			t.Errorf("keys mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("leer", func(t *testing.T) {
		sd := NewStateDict()
		if got := StripPrefix(sd, ParallelPrefix); got.Len() != 0 {
			t.Errorf("Len() = %d, erwartet 0", got.Len())
		}
	})
}

func TestGather(t *testing.T) {
	// 2x3 Speicher, transponierte Sicht 3x2
	src := []float32{1, 2, 3, 4, 5, 6}

	got, err := gather(src, 0, []int{3, 2}, []int{1, 3})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float32{1, 4, 2, 5, 3, 6}, got); diff != "" {
		t.Errorf("transposed mismatch (-want +got):\n%s", diff)
	}

	got, err = gather(src, 2, []int{2, 2}, []int{2, 1})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float32{3, 4, 5, 6}, got); diff != "" {
		t.Errorf("offset mismatch (-want +got):\n%s", diff)
	}

	if _, err := gather(src, 4, []int{2, 2}, []int{2, 1}); err == nil {
		t.Error("gather() sollte ausserhalb des Speichers fehlschlagen")
	}
}
