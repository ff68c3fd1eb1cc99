// Modul: attention.go
// Beschreibung: Multi-Head Scaled-Dot-Product-Attention fuer eine Sequenz.

package nn

import (
	"fmt"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Attention computes softmax(q kᵀ / sqrt(d) + mask) v per head. q, k and v
// are [seq, heads*headDim]; mask is nil or an additive bias per key
// position of length seq. The result has the layout of q.
func Attention(q, k, v []float32, seq, heads int, mask []float32) ([]float32, error) {
	hidden := len(q) / max(seq, 1)
	if seq == 0 || hidden%heads != 0 || len(k) != len(q) || len(v) != len(q) {
		return nil, fmt.Errorf("attention: invalid shapes q=%d k=%d v=%d seq=%d heads=%d", len(q), len(k), len(v), seq, heads)
	}
	if mask != nil && len(mask) != seq {
		return nil, fmt.Errorf("attention: mask length %d, expected %d", len(mask), seq)
	}

	headDim := hidden / heads
	scale := 1 / math32.Sqrt(float32(headDim))

	out := make([]float32, len(q))
	scores := make([]float32, seq*seq)
	for h := range heads {
		off := h * headDim
		view := func(x []float32) blas32.General {
			return blas32.General{Rows: seq, Cols: headDim, Stride: hidden, Data: x[off:]}
		}

		blas32.Gemm(blas.NoTrans, blas.Trans, scale, view(q), view(k), 0,
			blas32.General{Rows: seq, Cols: seq, Stride: seq, Data: scores})

		for i := range seq {
			row := scores[i*seq : (i+1)*seq]
			for j := range mask {
				row[j] += mask[j]
			}
			Softmax(row)
		}

		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			blas32.General{Rows: seq, Cols: seq, Stride: seq, Data: scores},
			view(v), 0, view(out))
	}
	return out, nil
}
