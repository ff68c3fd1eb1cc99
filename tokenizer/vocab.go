// vocab.go - Laden von WordPiece-Vokabularen (vocab.txt)
//
// Enthält:
// - Vocabulary: Token-Liste und Reverse-Lookup
// - LoadVocab/ReadVocab: eine Zeile pro Token, Zeilennummer = ID

package tokenizer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Vocabulary maps token strings to ids and back.
type Vocabulary struct {
	Values  []string
	Reverse map[string]int32
}

// LoadVocab reads a vocab.txt file.
func LoadVocab(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	v, err := ReadVocab(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// ReadVocab reads one token per line. Duplicate tokens keep their first id.
func ReadVocab(r io.Reader) (*Vocabulary, error) {
	v := &Vocabulary{Reverse: make(map[string]int32)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		tok := strings.TrimRight(sc.Text(), "\r\n")
		id := int32(len(v.Values))
		v.Values = append(v.Values, tok)
		if _, ok := v.Reverse[tok]; !ok {
			v.Reverse[tok] = id
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if len(v.Values) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}
	return v, nil
}

// Size is the number of ids.
func (v *Vocabulary) Size() int {
	return len(v.Values)
}

// Decode maps an id back to its token.
func (v *Vocabulary) Decode(id int32) string {
	if id < 0 || int(id) >= len(v.Values) {
		return ""
	}
	return v.Values[id]
}
