// basic.go - Vor-Tokenisierung (BERT BasicTokenizer)
//
// Enthält:
// - clean: Steuerzeichen entfernen, Whitespace vereinheitlichen
// - CJK-Zeichen werden zu eigenen Woertern
// - lowercase + Akzente entfernen (NFD, Mn verwerfen)
// - Trennung an Satzzeichen

package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripAccents zerlegt nach NFD und verwirft Combining Marks.
// Transformer halten Zustand, daher pro Aufruf neu.
func stripAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
}

// basicSplit zerlegt Text in Woerter vor dem WordPiece-Schritt
func basicSplit(text string, lower bool) []string {
	var sb strings.Builder
	sb.Grow(len(text) + 8)
	for _, r := range text {
		switch {
		case r == 0 || r == unicode.ReplacementChar || isControl(r):
			continue
		case isWhitespace(r):
			sb.WriteByte(' ')
		case isCJK(r):
			sb.WriteByte(' ')
			sb.WriteRune(r)
			sb.WriteByte(' ')
		default:
			sb.WriteRune(r)
		}
	}

	var words []string
	var strip transform.Transformer
	if lower {
		strip = stripAccents()
	}
	for _, w := range strings.Fields(sb.String()) {
		if lower {
			w = strings.ToLower(w)
			if s, _, err := transform.String(strip, w); err == nil {
				w = s
			}
		}
		words = append(words, splitPunct(w)...)
	}
	return words
}

// splitPunct macht jedes Satzzeichen zu einem eigenen Wort
func splitPunct(w string) []string {
	var out []string
	start := -1
	for i, r := range w {
		if isPunct(r) {
			if start >= 0 {
				out = append(out, w[start:i])
				start = -1
			}
			out = append(out, string(r))
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, w[start:])
	}
	return out
}

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	}
	return unicode.In(r, unicode.Cc, unicode.Cf, unicode.Co, unicode.Cs)
}

// isPunct behandelt alle nicht-alphanumerischen ASCII-Zeichen als Satzzeichen
func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

// isCJK prueft die CJK Unified Ideographs Bloecke (ohne Hangul/Kana)
func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
