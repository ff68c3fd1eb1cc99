// tokenizer.go - BERT-Tokenizer fuer den bilingualen Text-Encoder
//
// Enthält:
// - Tokenizer: Vokabular + Spezial-Token-IDs
// - New/Load: Konstruktion aus Vokabular bzw. vocab.txt
// - Encode/Tokens: Text zu WordPiece-IDs bzw. -Strings
// - Tokenize: Batch zu [B, contextLength] int32-Tensor

package tokenizer

import (
	"errors"
	"fmt"

	"github.com/pdevine/tensor"
)

const (
	TokenCLS = "[CLS]"
	TokenSEP = "[SEP]"
	TokenPAD = "[PAD]"
	TokenUNK = "[UNK]"
)

var (
	ErrMissingSpecial = errors.New("tokenizer: special token missing from vocabulary")
	ErrContextLength  = errors.New("tokenizer: context length must be at least 2")
	ErrEmptyBatch     = errors.New("tokenizer: empty batch")
)

// Tokenizer is a lower-casing BERT WordPiece tokenizer.
type Tokenizer struct {
	vocab *Vocabulary
	lower bool

	cls, sep, pad, unk int32
	maxWordRunes       int
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithCase keeps the input case (do_lower_case=False).
func WithCase() Option {
	return func(t *Tokenizer) { t.lower = false }
}

// WithMaxWordRunes sets the length above which a word becomes [UNK].
func WithMaxWordRunes(n int) Option {
	return func(t *Tokenizer) { t.maxWordRunes = n }
}

// New creates a tokenizer; the vocabulary must contain the special tokens.
func New(v *Vocabulary, opts ...Option) (*Tokenizer, error) {
	t := &Tokenizer{vocab: v, lower: true, maxWordRunes: 200}
	for _, opt := range opts {
		opt(t)
	}

	for tok, dst := range map[string]*int32{
		TokenCLS: &t.cls,
		TokenSEP: &t.sep,
		TokenPAD: &t.pad,
		TokenUNK: &t.unk,
	} {
		id, ok := v.Reverse[tok]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSpecial, tok)
		}
		*dst = id
	}

	return t, nil
}

// Load reads vocab.txt and creates a tokenizer.
func Load(path string, opts ...Option) (*Tokenizer, error) {
	v, err := LoadVocab(path)
	if err != nil {
		return nil, err
	}
	return New(v, opts...)
}

func (t *Tokenizer) Vocabulary() *Vocabulary { return t.vocab }
func (t *Tokenizer) PadID() int32            { return t.pad }
func (t *Tokenizer) CLSID() int32            { return t.cls }
func (t *Tokenizer) SEPID() int32            { return t.sep }

// Encode returns the WordPiece ids of text without special tokens.
func (t *Tokenizer) Encode(text string) []int32 {
	var ids []int32
	for _, w := range basicSplit(text, t.lower) {
		ids = t.encodeWordPieceInto(w, ids)
	}
	return ids
}

// Tokens returns the WordPiece strings of text, for inspection.
func (t *Tokenizer) Tokens(text string) []string {
	ids := t.Encode(text)
	if len(ids) == 0 {
		return nil
	}
	toks := make([]string, len(ids))
	for i, id := range ids {
		toks[i] = t.vocab.Decode(id)
	}
	return toks
}

// Tokenize encodes a batch as [CLS] ids... [SEP] truncated to
// contextLength and padded with [PAD]. The result is int32 [B, contextLength].
func (t *Tokenizer) Tokenize(texts []string, contextLength int) (*tensor.Dense, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyBatch
	}
	if contextLength < 2 {
		return nil, fmt.Errorf("%w: %d", ErrContextLength, contextLength)
	}

	ids := make([]int32, len(texts)*contextLength)
	for i, text := range texts {
		row := ids[i*contextLength : (i+1)*contextLength]

		enc := t.Encode(text)
		if len(enc) > contextLength-2 {
			enc = enc[:contextLength-2]
		}

		row[0] = t.cls
		n := 1 + copy(row[1:], enc)
		row[n] = t.sep
		for j := n + 1; j < contextLength; j++ {
			row[j] = t.pad
		}
	}

	return tensor.New(tensor.WithShape(len(texts), contextLength), tensor.WithBacking(ids)), nil
}
