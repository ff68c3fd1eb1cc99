// MODUL: formats
// ZWECK: Bildformat-Erkennung ueber Magic-Bytes
// INPUT: Bild-Bytes
// OUTPUT: Format, Fehler bei unbekanntem Format
// NEBENEFFEKTE: keine
// HINWEISE: JPEG/PNG/WebP, passend zu den registrierten Decodern in image.go

package vision

import (
	"bytes"
	"errors"
)

// Format is a supported image encoding.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatUnknown Format = "unknown"
)

var ErrUnknownFormat = errors.New("vision: unknown image format")

// signatures in Pruefreihenfolge
var signatures = []struct {
	format Format
	magic  []byte
	check  func([]byte) bool
}{
	{FormatJPEG, []byte{0xFF, 0xD8, 0xFF}, nil},
	{FormatPNG, []byte{0x89, 'P', 'N', 'G'}, nil},
	{FormatWebP, []byte("RIFF"), func(b []byte) bool {
		return len(b) >= 12 && bytes.Equal(b[8:12], []byte("WEBP"))
	}},
}

// DetectFormat erkennt das Format anhand der ersten Bytes
func DetectFormat(data []byte) Format {
	for _, s := range signatures {
		if bytes.HasPrefix(data, s.magic) && (s.check == nil || s.check(data)) {
			return s.format
		}
	}
	return FormatUnknown
}

func (f Format) String() string {
	return string(f)
}
