// Modul: activations.go
// Beschreibung: Aktivierungen und Softmax, jeweils in-place.

package nn

import (
	"math"

	"github.com/chewxy/math32"
)

// GELU is the exact erf formulation used by BERT.
func GELU(x []float32) {
	for i, v := range x {
		x[i] = float32(0.5 * float64(v) * (1 + math.Erf(float64(v)/math.Sqrt2)))
	}
}

// GELUTanh is the tanh approximation ("gelu_new").
func GELUTanh(x []float32) {
	const c = 0.7978845608028654 // sqrt(2/pi)
	for i, v := range x {
		f := float64(v)
		x[i] = float32(0.5 * f * (1 + math.Tanh(c*(f+0.044715*f*f*f))))
	}
}

// QuickGELU is x * sigmoid(1.702 x) as used by CLIP.
func QuickGELU(x []float32) {
	for i, v := range x {
		x[i] = v / (1 + math32.Exp(-1.702*v))
	}
}

// Activation returns the in-place activation for a config name.
func Activation(name string) (func([]float32), bool) {
	switch name {
	case "gelu", "":
		return GELU, true
	case "gelu_new", "gelu_pytorch_tanh":
		return GELUTanh, true
	case "quick_gelu":
		return QuickGELU, true
	case "relu":
		return func(x []float32) {
			for i, v := range x {
				x[i] = max(v, 0)
			}
		}, true
	default:
		return nil, false
	}
}

// Softmax normalizes x in-place. A row of -Inf yields zeros.
func Softmax(x []float32) {
	m := math32.Inf(-1)
	for _, v := range x {
		m = max(m, v)
	}
	if math32.IsInf(m, -1) {
		clear(x)
		return
	}

	var sum float32
	for i, v := range x {
		e := math32.Exp(v - m)
		x[i] = e
		sum += e
	}
	for i := range x {
		x[i] /= sum
	}
}
