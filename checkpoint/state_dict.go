// state_dict.go - Geordnete Map von Parameter-Namen zu Tensoren
package checkpoint

import (
	"fmt"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Tensor - Dichte float32-Daten in Row-Major-Reihenfolge
type Tensor struct {
	Shape []int
	Data  []float32
}

// Numel - Anzahl der Elemente laut Shape
func (t *Tensor) Numel() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}

// StateDict - Parameter-Map mit stabiler Reihenfolge
type StateDict struct {
	m *orderedmap.OrderedMap[string, *Tensor]
}

// NewStateDict - Erstellt eine leere StateDict
func NewStateDict() *StateDict {
	return &StateDict{m: orderedmap.New[string, *Tensor]()}
}

// Set - Fuegt einen Tensor hinzu oder ersetzt ihn
func (sd *StateDict) Set(name string, t *Tensor) {
	sd.m.Set(name, t)
}

// Get - Gibt einen Tensor zurueck
func (sd *StateDict) Get(name string) (*Tensor, bool) {
	return sd.m.Get(name)
}

// Tensor - Liefert Shape und Daten, erfuellt nn.Source
func (sd *StateDict) Tensor(name string) ([]int, []float32, bool) {
	t, ok := sd.m.Get(name)
	if !ok {
		return nil, nil, false
	}
	return slices.Clone(t.Shape), t.Data, true
}

// Keys - Schluessel in Einfuege-Reihenfolge
func (sd *StateDict) Keys() []string {
	keys := make([]string, 0, sd.m.Len())
	for pair := sd.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len - Anzahl der Tensoren
func (sd *StateDict) Len() int {
	return sd.m.Len()
}

// Params - Gesamtzahl der Elemente ueber alle Tensoren
func (sd *StateDict) Params() int {
	var n int
	for pair := sd.m.Oldest(); pair != nil; pair = pair.Next() {
		n += pair.Value.Numel()
	}
	return n
}
