// Modul: vision.go
// Beschreibung: ViT Vision-Encoder (OpenAI-CLIP-Layout mit QuickGELU).
// Enthält: VisionModel, ResidualBlock und deren Forward-Methoden.

package cnclip

import (
	"fmt"

	"github.com/ollama/cnclip/nn"
)

// clipLayerNormEps ist der torch-Default fuer die Vision-LayerNorms
const clipLayerNormEps = 1e-5

// VisionModel is the visual transformer
type VisionModel struct {
	ClassEmbedding      *nn.Parameter    `weight:"class_embedding"`
	PositionalEmbedding *nn.Parameter    `weight:"positional_embedding"`
	Proj                *nn.Parameter    `weight:"proj"`
	Conv1               *nn.Conv2D       `weight:"conv1"`
	LnPre               *nn.LayerNorm    `weight:"ln_pre"`
	Blocks              []*ResidualBlock `weight:"transformer.resblocks"`
	LnPost              *nn.LayerNorm    `weight:"ln_post"`

	heads      int
	resolution int
}

// ResidualBlock is one pre-norm transformer block
type ResidualBlock struct {
	InProjWeight *nn.Parameter `weight:"attn.in_proj_weight"`
	InProjBias   *nn.Parameter `weight:"attn.in_proj_bias"`
	OutProj      *nn.Linear    `weight:"attn.out_proj"`
	Ln1          *nn.LayerNorm `weight:"ln_1"`
	Fc           *nn.Linear    `weight:"mlp.c_fc"`
	Proj         *nn.Linear    `weight:"mlp.c_proj"`
	Ln2          *nn.LayerNorm `weight:"ln_2"`
}

func newVisionModel(c Config) *VisionModel {
	w := c.VisionWidth
	grid := c.GridSize()

	m := &VisionModel{
		ClassEmbedding:      nn.NewParameter(w),
		PositionalEmbedding: nn.NewParameter(grid*grid+1, w),
		Proj:                nn.NewParameter(w, c.EmbedDim),
		Conv1:               nn.NewConv2D(3, w, c.VisionPatchSize, false),
		LnPre:               nn.NewLayerNorm(w, clipLayerNormEps),
		Blocks:              make([]*ResidualBlock, c.VisionLayers),
		LnPost:              nn.NewLayerNorm(w, clipLayerNormEps),
		heads:               c.VisionHeads(),
		resolution:          c.ImageResolution,
	}

	for i := range m.Blocks {
		m.Blocks[i] = &ResidualBlock{
			InProjWeight: nn.NewParameter(3*w, w),
			InProjBias:   nn.NewParameter(3 * w),
			OutProj:      nn.NewLinear(w, w, true),
			Ln1:          nn.NewLayerNorm(w, clipLayerNormEps),
			Fc:           nn.NewLinear(w, 4*w, true),
			Proj:         nn.NewLinear(4*w, w, true),
			Ln2:          nn.NewLayerNorm(w, clipLayerNormEps),
		}
	}
	return m
}

// Forward encodes one CHW image [3, R, R] into [embed_dim]
func (m *VisionModel) Forward(pixels []float32) ([]float32, error) {
	patches, err := m.Conv1.Forward(pixels, m.resolution, m.resolution)
	if err != nil {
		return nil, err
	}

	w := len(m.ClassEmbedding.Data)
	seq := len(patches)/w + 1
	if seq != m.PositionalEmbedding.Shape[0] {
		return nil, fmt.Errorf("%d patches do not match %d positions", seq-1, m.PositionalEmbedding.Shape[0]-1)
	}

	x := make([]float32, seq*w)
	copy(x, m.ClassEmbedding.Data)
	copy(x[w:], patches)
	addInto(x, m.PositionalEmbedding.Data)
	x = m.LnPre.Forward(x)

	for i, b := range m.Blocks {
		if x, err = b.Forward(x, seq, m.heads); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
	}

	cls := m.LnPost.Forward(x[:w])
	return nn.MatMul(cls, 1, w, m.Proj.Data, m.Proj.Shape[1]), nil
}

func (b *ResidualBlock) Forward(x []float32, seq, heads int) ([]float32, error) {
	w := len(x) / seq

	inProj := nn.Linear{Weight: b.InProjWeight, Bias: b.InProjBias}
	qkv := inProj.Forward(b.Ln1.Forward(x))

	q, k, v := make([]float32, seq*w), make([]float32, seq*w), make([]float32, seq*w)
	for i := range seq {
		row := qkv[i*3*w : (i+1)*3*w]
		copy(q[i*w:], row[:w])
		copy(k[i*w:], row[w:2*w])
		copy(v[i*w:], row[2*w:])
	}

	ctx, err := nn.Attention(q, k, v, seq, heads, nil)
	if err != nil {
		return nil, err
	}
	attn := b.OutProj.Forward(ctx)
	addInto(attn, x)
	x = attn

	h := b.Fc.Forward(b.Ln2.Forward(x))
	nn.QuickGELU(h)
	out := b.Proj.Forward(h)
	addInto(out, x)
	return out, nil
}
