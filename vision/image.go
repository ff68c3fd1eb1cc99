// MODUL: image
// ZWECK: Bilder laden und auf die Eingabegroesse des Vision-Turms bringen
// INPUT: Dateipfad, Bytes oder io.Reader
// OUTPUT: Image (RGB auf weissem Hintergrund)
// NEBENEFFEKTE: Dateisystem-Lesezugriff bei Load
// ABHAENGIGKEITEN: golang.org/x/image/draw, golang.org/x/image/webp
// HINWEISE: Resize nutzt Catmull-Rom (entspricht bicubic in PIL)

package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Image is a decoded, opaque RGB image.
type Image struct {
	RGBA   *image.RGBA
	Format Format
}

// Load liest und dekodiert eine Bilddatei
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	img, err := DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Decode liest alle Daten aus r und dekodiert sie
func Decode(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(data)
}

// DecodeBytes dekodiert ein Bild. Transparenz wird auf Weiss gelegt.
func DecodeBytes(data []byte) (*Image, error) {
	format := DetectFormat(data)
	if format == FormatUnknown {
		return nil, ErrUnknownFormat
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("vision: decode %s: %w", format, err)
	}

	return &Image{RGBA: flatten(src, color.White), Format: format}, nil
}

// flatten zeichnet src auf einen einfarbigen Hintergrund
func flatten(src image.Image, bg color.Color) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

func (img *Image) Width() int  { return img.RGBA.Bounds().Dx() }
func (img *Image) Height() int { return img.RGBA.Bounds().Dy() }

// Resize skaliert auf width x height ohne Seitenverhaeltnis
func (img *Image) Resize(width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("vision: invalid size %dx%d", width, height)
	}
	if width == img.Width() && height == img.Height() {
		return img, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img.RGBA, img.RGBA.Bounds(), draw.Src, nil)
	return &Image{RGBA: dst, Format: img.Format}, nil
}

// ResizeShort skaliert so, dass die kuerzere Seite size ist
func (img *Image) ResizeShort(size int) (*Image, error) {
	w, h := img.Width(), img.Height()
	if w <= h {
		return img.Resize(size, max(1, h*size/w))
	}
	return img.Resize(max(1, w*size/h), size)
}

// CenterCrop schneidet einen zentrierten Bereich aus
func (img *Image) CenterCrop(width, height int) (*Image, error) {
	if width > img.Width() || height > img.Height() {
		return nil, fmt.Errorf("vision: crop %dx%d larger than image %dx%d", width, height, img.Width(), img.Height())
	}

	x := (img.Width() - width) / 2
	y := (img.Height() - height) / 2
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), img.RGBA, image.Pt(x, y), draw.Src)
	return &Image{RGBA: dst, Format: img.Format}, nil
}
