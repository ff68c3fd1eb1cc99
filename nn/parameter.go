// Modul: parameter.go
// Beschreibung: Dichte float32-Parameter und benannte Parameter-Listen.
// Enthält: Parameter, NewParameter, Full, Named, Source.

package nn

import (
	"fmt"
	"math/rand/v2"
)

// Parameter is a dense row-major float32 weight.
type Parameter struct {
	Shape []int
	Data  []float32
}

// NewParameter allocates a zero-filled parameter.
func NewParameter(shape ...int) *Parameter {
	p := &Parameter{Shape: shape}
	p.Data = make([]float32, p.Numel())
	return p
}

// Full allocates a parameter filled with v.
func Full(v float32, shape ...int) *Parameter {
	p := NewParameter(shape...)
	for i := range p.Data {
		p.Data[i] = v
	}
	return p
}

// Numel is the element count implied by Shape.
func (p *Parameter) Numel() int {
	n := 1
	for _, d := range p.Shape {
		n *= d
	}
	return n
}

// Uniform fills p with samples from U(-bound, bound).
func (p *Parameter) Uniform(rng *rand.Rand, bound float32) {
	for i := range p.Data {
		p.Data[i] = (2*rng.Float32() - 1) * bound
	}
}

func (p *Parameter) String() string {
	return fmt.Sprintf("Parameter%v", p.Shape)
}

// Named pairs a parameter with its state dict name.
type Named struct {
	Name  string
	Param *Parameter
}

// Source provides named weights, e.g. a checkpoint state dict.
type Source interface {
	Keys() []string
	Tensor(name string) (shape []int, data []float32, ok bool)
}
