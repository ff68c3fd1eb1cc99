// Modul: layers.go
// Beschreibung: Grundlegende Layer auf zeilenweisen float32-Daten.
// Enthält: LayerNorm, Linear, Embedding, Conv2D.
//
// Alle Forward-Methoden erwarten flache Row-Major-Daten, deren Laenge ein
// Vielfaches der Eingabebreite ist, und liefern neue Slices zurueck.

package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// LayerNorm normalizes over the last axis with eps inside the square root
// and the population variance, then applies Weight and Bias.
type LayerNorm struct {
	Weight *Parameter `weight:"weight"`
	Bias   *Parameter `weight:"bias"`
	Eps    float32
}

// NewLayerNorm creates a LayerNorm with weight=1 and bias=0.
func NewLayerNorm(dim int, eps float32) *LayerNorm {
	return &LayerNorm{
		Weight: Full(1, dim),
		Bias:   NewParameter(dim),
		Eps:    eps,
	}
}

// Dim is the normalized width.
func (ln *LayerNorm) Dim() int {
	return len(ln.Weight.Data)
}

func (ln *LayerNorm) Forward(x []float32) []float32 {
	dim := ln.Dim()
	out := make([]float32, len(x))
	for r := 0; r+dim <= len(x); r += dim {
		row, dst := x[r:r+dim], out[r:r+dim]

		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(dim)

		var variance float64
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(dim)

		inv := 1 / math32.Sqrt(float32(variance)+ln.Eps)
		for i, v := range row {
			dst[i] = (v-float32(mean))*inv*ln.Weight.Data[i] + ln.Bias.Data[i]
		}
	}
	return out
}

// Linear computes y = x Wᵀ + b with W shaped [out, in].
type Linear struct {
	Weight *Parameter `weight:"weight"`
	Bias   *Parameter `weight:"bias"`
}

// NewLinear creates a zero-initialized Linear layer.
func NewLinear(in, out int, bias bool) *Linear {
	l := &Linear{Weight: NewParameter(out, in)}
	if bias {
		l.Bias = NewParameter(out)
	}
	return l
}

// Init draws weight and bias from U(-1/sqrt(in), 1/sqrt(in)).
func (l *Linear) Init(rng *rand.Rand) {
	bound := 1 / math32.Sqrt(float32(l.In()))
	l.Weight.Uniform(rng, bound)
	if l.Bias != nil {
		l.Bias.Uniform(rng, bound)
	}
}

func (l *Linear) In() int  { return l.Weight.Shape[1] }
func (l *Linear) Out() int { return l.Weight.Shape[0] }

func (l *Linear) Forward(x []float32) []float32 {
	in, out := l.In(), l.Out()
	rows := len(x) / in

	y := make([]float32, rows*out)
	var beta float32
	if l.Bias != nil {
		for r := range rows {
			copy(y[r*out:(r+1)*out], l.Bias.Data)
		}
		beta = 1
	}

	if rows == 0 {
		return y
	}

	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: rows, Cols: in, Stride: in, Data: x},
		blas32.General{Rows: out, Cols: in, Stride: in, Data: l.Weight.Data},
		beta,
		blas32.General{Rows: rows, Cols: out, Stride: out, Data: y})
	return y
}

// MatMul multiplies a [m, k] by b [k, n].
func MatMul(a []float32, m, k int, b []float32, n int) []float32 {
	c := make([]float32, m*n)
	if m == 0 || n == 0 || k == 0 {
		return c
	}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c})
	return c
}

// Embedding is a lookup table shaped [num, dim].
type Embedding struct {
	Weight *Parameter `weight:"weight"`
}

func NewEmbedding(num, dim int) *Embedding {
	return &Embedding{Weight: NewParameter(num, dim)}
}

func (e *Embedding) Dim() int { return e.Weight.Shape[1] }

// Row returns the embedding for id without copying.
func (e *Embedding) Row(id int) []float32 {
	dim := e.Dim()
	return e.Weight.Data[id*dim : (id+1)*dim]
}

func (e *Embedding) Forward(ids []int32) ([]float32, error) {
	num, dim := e.Weight.Shape[0], e.Dim()
	out := make([]float32, len(ids)*dim)
	for i, id := range ids {
		if id < 0 || int(id) >= num {
			return nil, fmt.Errorf("embedding index %d out of range [0, %d)", id, num)
		}
		copy(out[i*dim:], e.Row(int(id)))
	}
	return out, nil
}

// Conv2D is a non-overlapping patch convolution (kernel == stride), as
// used for ViT patch embeddings. Weight is [out, in, k, k].
type Conv2D struct {
	Weight *Parameter `weight:"weight"`
	Bias   *Parameter `weight:"bias"`
}

func NewConv2D(in, out, kernel int, bias bool) *Conv2D {
	c := &Conv2D{Weight: NewParameter(out, in, kernel, kernel)}
	if bias {
		c.Bias = NewParameter(out)
	}
	return c
}

// Forward takes a CHW image [in, h, w] and returns [patches, out] with
// patches in row-major grid order.
func (c *Conv2D) Forward(x []float32, h, w int) ([]float32, error) {
	out, in, k := c.Weight.Shape[0], c.Weight.Shape[1], c.Weight.Shape[2]
	if len(x) != in*h*w {
		return nil, fmt.Errorf("conv2d input has %d values, expected %dx%dx%d", len(x), in, h, w)
	}
	if h%k != 0 || w%k != 0 {
		return nil, fmt.Errorf("conv2d input %dx%d is not divisible by kernel %d", h, w, k)
	}

	gh, gw := h/k, w/k
	cols := in * k * k
	patches := make([]float32, gh*gw*cols)
	for py := range gh {
		for px := range gw {
			dst := patches[(py*gw+px)*cols:]
			i := 0
			for ch := range in {
				for ky := range k {
					row := x[ch*h*w+(py*k+ky)*w+px*k:]
					copy(dst[i:i+k], row[:k])
					i += k
				}
			}
		}
	}

	lin := Linear{
		Weight: &Parameter{Shape: []int{out, cols}, Data: c.Weight.Data},
		Bias:   c.Bias,
	}
	return lin.Forward(patches), nil
}
