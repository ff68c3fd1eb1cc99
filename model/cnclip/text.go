// Modul: text.go
// Beschreibung: BERT Text-Encoder (RoBERTa-wwm-ext Gewichte).
// Enthält: TextModel, Embeddings, BertLayer und deren Forward-Methoden.

package cnclip

import (
	"fmt"

	"github.com/ollama/cnclip/nn"
)

// maskBias ist der additive Attention-Bias fuer [PAD]-Positionen
const maskBias = -10000

// TextModel is the BERT tower; the pooler is loaded but not used
type TextModel struct {
	Embeddings *Embeddings  `weight:"embeddings"`
	Layers     []*BertLayer `weight:"encoder.layer"`
	Pooler     *nn.Linear   `weight:"pooler.dense"`

	heads int
	act   func([]float32)
}

// Embeddings sums word, position and token type embeddings
type Embeddings struct {
	Word      *nn.Embedding `weight:"word_embeddings"`
	Position  *nn.Embedding `weight:"position_embeddings"`
	TokenType *nn.Embedding `weight:"token_type_embeddings"`
	Norm      *nn.LayerNorm `weight:"LayerNorm"`
}

// BertLayer is one post-norm transformer layer
type BertLayer struct {
	Query        *nn.Linear    `weight:"attention.self.query"`
	Key          *nn.Linear    `weight:"attention.self.key"`
	Value        *nn.Linear    `weight:"attention.self.value"`
	AttnOut      *nn.Linear    `weight:"attention.output.dense"`
	AttnNorm     *nn.LayerNorm `weight:"attention.output.LayerNorm"`
	Intermediate *nn.Linear    `weight:"intermediate.dense"`
	Output       *nn.Linear    `weight:"output.dense"`
	OutputNorm   *nn.LayerNorm `weight:"output.LayerNorm"`
}

func activation(name string) (func([]float32), bool) {
	return nn.Activation(name)
}

func newTextModel(c Config) *TextModel {
	h := c.TextHiddenSize
	act, _ := activation(c.TextHiddenAct)

	m := &TextModel{
		Embeddings: &Embeddings{
			Word:      nn.NewEmbedding(c.VocabSize, h),
			Position:  nn.NewEmbedding(c.TextMaxPositions, h),
			TokenType: nn.NewEmbedding(c.TextTypeVocab, h),
			Norm:      nn.NewLayerNorm(h, c.TextLayerNormEps),
		},
		Layers: make([]*BertLayer, c.TextLayers),
		Pooler: nn.NewLinear(h, h, true),
		heads:  c.TextHeads,
		act:    act,
	}

	for i := range m.Layers {
		m.Layers[i] = &BertLayer{
			Query:        nn.NewLinear(h, h, true),
			Key:          nn.NewLinear(h, h, true),
			Value:        nn.NewLinear(h, h, true),
			AttnOut:      nn.NewLinear(h, h, true),
			AttnNorm:     nn.NewLayerNorm(h, c.TextLayerNormEps),
			Intermediate: nn.NewLinear(h, c.TextIntermediate, true),
			Output:       nn.NewLinear(c.TextIntermediate, h, true),
			OutputNorm:   nn.NewLayerNorm(h, c.TextLayerNormEps),
		}
	}
	return m
}

// Forward encodes one sequence of ids. Positions equal to pad are masked.
// The result is the last hidden state [len(ids), hidden].
func (m *TextModel) Forward(ids []int32, pad int32) ([]float32, error) {
	seq := len(ids)
	if maxPos := m.Embeddings.Position.Weight.Shape[0]; seq > maxPos {
		return nil, fmt.Errorf("sequence length %d exceeds %d position embeddings", seq, maxPos)
	}

	x, err := m.Embeddings.Forward(ids)
	if err != nil {
		return nil, err
	}

	mask := make([]float32, seq)
	for i, id := range ids {
		if id == pad {
			mask[i] = maskBias
		}
	}

	for i, l := range m.Layers {
		if x, err = l.Forward(x, seq, m.heads, mask, m.act); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return x, nil
}

func (e *Embeddings) Forward(ids []int32) ([]float32, error) {
	x, err := e.Word.Forward(ids)
	if err != nil {
		return nil, err
	}

	dim := e.Word.Dim()
	tokenType := e.TokenType.Row(0)
	for i := range ids {
		row := x[i*dim : (i+1)*dim]
		pos := e.Position.Row(i)
		for j := range row {
			row[j] += pos[j] + tokenType[j]
		}
	}
	return e.Norm.Forward(x), nil
}

func (l *BertLayer) Forward(x []float32, seq, heads int, mask []float32, act func([]float32)) ([]float32, error) {
	ctx, err := nn.Attention(l.Query.Forward(x), l.Key.Forward(x), l.Value.Forward(x), seq, heads, mask)
	if err != nil {
		return nil, err
	}

	attn := l.AttnOut.Forward(ctx)
	addInto(attn, x)
	x = l.AttnNorm.Forward(attn)

	inter := l.Intermediate.Forward(x)
	act(inter)
	out := l.Output.Forward(inter)
	addInto(out, x)
	return l.OutputNorm.Forward(out), nil
}

// addInto addiert src elementweise auf dst
func addInto(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}
