// MODUL: preprocess
// ZWECK: CLIP-Vorverarbeitung: Groesse, Normalisierung, CHW-Tensor
// INPUT: Image bzw. Dateipfade, Aufloesung des Vision-Turms
// OUTPUT: float32-Tensor [B, 3, R, R]
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: github.com/pdevine/tensor
// HINWEISE: Default ist quadratisches Resize wie im chinesischen CLIP,
//           ModeCrop entspricht der OpenAI-Vorverarbeitung

package vision

import (
	"fmt"

	"github.com/pdevine/tensor"
)

// CLIP-Normalisierung
var (
	ClipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	ClipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Mode waehlt, wie ein Bild auf R x R gebracht wird.
type Mode int

const (
	// ModeResize skaliert direkt auf R x R
	ModeResize Mode = iota
	// ModeCrop skaliert die kuerzere Seite auf R und schneidet mittig aus
	ModeCrop
)

// Preprocessor converts images into normalized CHW pixels.
type Preprocessor struct {
	Resolution int
	Mode       Mode
	Mean, Std  [3]float32
}

// NewPreprocessor uses the CLIP statistics and square resizing.
func NewPreprocessor(resolution int) *Preprocessor {
	return &Preprocessor{Resolution: resolution, Mean: ClipMean, Std: ClipStd}
}

// Pixels liefert [3, R, R] im CHW-Layout
func (p *Preprocessor) Pixels(img *Image) ([]float32, error) {
	r := p.Resolution
	var err error
	switch p.Mode {
	case ModeCrop:
		if img, err = img.ResizeShort(r); err == nil {
			img, err = img.CenterCrop(r, r)
		}
	default:
		img, err = img.Resize(r, r)
	}
	if err != nil {
		return nil, err
	}

	return normalize(img, p.Mean, p.Std), nil
}

// Batch stapelt mehrere Bilder zu [B, 3, R, R]
func (p *Preprocessor) Batch(imgs ...*Image) (*tensor.Dense, error) {
	r := p.Resolution
	size := 3 * r * r
	data := make([]float32, len(imgs)*size)
	for i, img := range imgs {
		px, err := p.Pixels(img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		copy(data[i*size:], px)
	}
	return tensor.New(tensor.WithShape(len(imgs), 3, r, r), tensor.WithBacking(data)), nil
}

// LoadBatch laedt Dateien und stapelt sie
func (p *Preprocessor) LoadBatch(paths ...string) (*tensor.Dense, error) {
	imgs := make([]*Image, len(paths))
	for i, path := range paths {
		img, err := Load(path)
		if err != nil {
			return nil, err
		}
		imgs[i] = img
	}
	return p.Batch(imgs...)
}

// normalize skaliert auf [0,1] und wendet mean/std pro Kanal an
func normalize(img *Image, mean, std [3]float32) []float32 {
	w, h := img.Width(), img.Height()
	plane := w * h
	out := make([]float32, 3*plane)

	pix, stride := img.RGBA.Pix, img.RGBA.Stride
	for y := range h {
		for x := range w {
			o := y*stride + x*4
			i := y*w + x
			for c := range 3 {
				out[c*plane+i] = (float32(pix[o+c])/255 - mean[c]) / std[c]
			}
		}
	}
	return out
}
