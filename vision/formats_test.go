// MODUL: formats_test
// ZWECK: Tests fuer die Magic-Byte-Erkennung

package vision

import (
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected Format
	}{
		{"JPEG", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, FormatJPEG},
		{"PNG", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A}, FormatPNG},
		{"WebP", []byte{'R', 'I', 'F', 'F', 0, 0, 0, 0, 'W', 'E', 'B', 'P'}, FormatWebP},
		{"RIFF ohne WEBP", []byte{'R', 'I', 'F', 'F', 0, 0, 0, 0, 'W', 'A', 'V', 'E'}, FormatUnknown},
		{"RIFF zu kurz", []byte("RIFF"), FormatUnknown},
		{"Zu kurze Daten", []byte{0xFF, 0xD8}, FormatUnknown},
		{"Unbekannt", []byte{0, 0, 0, 0, 0, 0}, FormatUnknown},
		{"Leer", nil, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.expected {
				t.Errorf("DetectFormat() = %v, erwartet %v", got, tt.expected)
			}
		})
	}
}
