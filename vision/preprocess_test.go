// MODUL: preprocess_test
// ZWECK: Tests fuer CLIP-Normalisierung und Batch-Tensoren

package vision

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pdevine/tensor"
)

// createTestImage erzeugt ein einfarbiges Testbild
func createTestImage(w, h int, c color.Color) *Image {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			rgba.Set(x, y, c)
		}
	}
	return &Image{RGBA: rgba, Format: FormatPNG}
}

func TestPixelsCHW(t *testing.T) {
	p := &Preprocessor{Resolution: 2, Mean: [3]float32{}, Std: [3]float32{1, 1, 1}}

	rgba := image.NewRGBA(image.Rect(0, 0, 2, 2))
	rgba.Set(0, 0, color.RGBA{255, 0, 0, 255})
	rgba.Set(1, 0, color.RGBA{0, 255, 0, 255})
	rgba.Set(0, 1, color.RGBA{0, 0, 255, 255})
	rgba.Set(1, 1, color.RGBA{255, 255, 255, 255})

	got, err := p.Pixels(&Image{RGBA: rgba})
	if err != nil {
		t.Fatal(err)
	}

	want := []float32{
		1, 0, 0, 1, // R
		0, 1, 0, 1, // G
		0, 0, 1, 1, // B
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pixels mismatch (-want +got):\n%s", diff)
	}
}

func TestPixelsClipNormalization(t *testing.T) {
	p := NewPreprocessor(4)
	got, err := p.Pixels(createTestImage(9, 5, color.White))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3*4*4 {
		t.Fatalf("Laenge = %d, erwartet 48", len(got))
	}

	for c := range 3 {
		want := (1 - ClipMean[c]) / ClipStd[c]
		for _, v := range got[c*16 : (c+1)*16] {
			if diff := cmp.Diff(want, v, cmpopts.EquateApprox(0, 0.02)); diff != "" {
				t.Fatalf("Kanal %d mismatch (-want +got):\n%s", c, diff)
			}
		}
	}
}

func TestPixelsCropMode(t *testing.T) {
	// linke Haelfte schwarz, rechte weiss; Crop behaelt die Mitte
	rgba := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := range 4 {
		for x := range 8 {
			c := color.RGBA{0, 0, 0, 255}
			if x >= 4 {
				c = color.RGBA{255, 255, 255, 255}
			}
			rgba.Set(x, y, c)
		}
	}

	p := &Preprocessor{Resolution: 4, Mode: ModeCrop, Std: [3]float32{1, 1, 1}}
	got, err := p.Pixels(&Image{RGBA: rgba})
	if err != nil {
		t.Fatal(err)
	}
	if got[0] > 0.1 || got[3] < 0.9 {
		t.Errorf("Zeile 0 = %v, erwartet schwarz links und weiss rechts", got[:4])
	}
}

func TestBatch(t *testing.T) {
	p := NewPreprocessor(4)
	batch, err := p.Batch(createTestImage(4, 4, color.White), createTestImage(6, 3, color.Black))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(tensor.Shape{2, 3, 4, 4}, batch.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}

	data := batch.Data().([]float32)
	if data[0] <= 0 || data[48] >= 0 {
		t.Errorf("Weiss sollte positiv, Schwarz negativ sein: %v, %v", data[0], data[48])
	}
}

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	if err := os.WriteFile(path, createPNGBytes(5, 5, color.White), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewPreprocessor(2)
	batch, err := p.LoadBatch(path, path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(tensor.Shape{2, 3, 2, 2}, batch.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}

	if _, err := p.LoadBatch(path, filepath.Join(dir, "missing.png")); err == nil {
		t.Error("erwartet Fehler fuer fehlende Datei")
	}
}
