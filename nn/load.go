// Modul: load.go
// Beschreibung: Tag-basiertes Laden von Gewichten in Modul-Structs.
// Enthält: Walk, Parameters, LoadModule, LoadError.
//
// Felder mit `weight:"name"` werden rekursiv besucht. Slices haengen den
// Index an den Namen an (encoder.layer.0.attention...). Der Tag "" fuegt
// die Felder eines eingebetteten Moduls ohne eigenen Namensteil ein.

package nn

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// ErrStateDict wraps all strict loading failures.
var ErrStateDict = errors.New("nn: state dict does not match module")

// LoadError lists every key that prevented a strict load.
type LoadError struct {
	Missing    []string
	Unexpected []string
	Mismatched []string
}

func (e *LoadError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing keys: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, fmt.Sprintf("unexpected keys: %s", strings.Join(e.Unexpected, ", ")))
	}
	if len(e.Mismatched) > 0 {
		parts = append(parts, fmt.Sprintf("size mismatch: %s", strings.Join(e.Mismatched, "; ")))
	}
	return ErrStateDict.Error() + ": " + strings.Join(parts, "; ")
}

func (e *LoadError) Unwrap() error {
	return ErrStateDict
}

// Walk visits every *Parameter reachable through weight tags.
func Walk(module any, prefix string, fn func(name string, p *Parameter) error) error {
	return walk(reflect.ValueOf(module), prefix, fn)
}

func walk(v reflect.Value, name string, fn func(string, *Parameter) error) error {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		if p, ok := v.Interface().(*Parameter); ok {
			return fn(name, p)
		}
		return walk(v.Elem(), name, fn)
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			tag, ok := f.Tag.Lookup("weight")
			if !ok || tag == "-" || !f.IsExported() {
				continue
			}
			if err := walk(v.Field(i), join(name, tag), fn); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			if err := walk(v.Index(i), join(name, strconv.Itoa(i)), fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func join(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "." + name
	}
}

// Parameters lists the named parameters of module in declaration order.
func Parameters(module any, prefix string) []Named {
	var ps []Named
	_ = Walk(module, prefix, func(name string, p *Parameter) error {
		ps = append(ps, Named{Name: name, Param: p})
		return nil
	})
	return ps
}

// LoadModule copies every tensor of src into module. All keys must match
// exactly in name and shape, otherwise nothing is written and a *LoadError
// is returned.
func LoadModule(module any, src Source, prefix string) error {
	params := Parameters(module, prefix)

	expected := make(map[string]struct{}, len(params))
	lerr := &LoadError{}
	for _, np := range params {
		expected[np.Name] = struct{}{}

		shape, data, ok := src.Tensor(np.Name)
		switch {
		case !ok:
			lerr.Missing = append(lerr.Missing, np.Name)
		case !slices.Equal(shape, np.Param.Shape) || len(data) != np.Param.Numel():
			lerr.Mismatched = append(lerr.Mismatched,
				fmt.Sprintf("%s: checkpoint %v, module %v", np.Name, shape, np.Param.Shape))
		}
	}

	for _, k := range src.Keys() {
		if _, ok := expected[k]; !ok {
			lerr.Unexpected = append(lerr.Unexpected, k)
		}
	}

	if len(lerr.Missing)+len(lerr.Unexpected)+len(lerr.Mismatched) > 0 {
		return lerr
	}

	for _, np := range params {
		_, data, _ := src.Tensor(np.Name)
		copy(np.Param.Data, data)
	}
	return nil
}

// MapSource is an in-memory Source, mostly useful for tests and for
// re-keying subsets of a larger state dict.
type MapSource struct {
	names   []string
	tensors map[string]*Parameter
}

// NewMapSource creates an empty MapSource.
func NewMapSource() *MapSource {
	return &MapSource{tensors: make(map[string]*Parameter)}
}

// Set adds or replaces a tensor, keeping first-insertion order.
func (m *MapSource) Set(name string, p *Parameter) {
	if _, ok := m.tensors[name]; !ok {
		m.names = append(m.names, name)
	}
	m.tensors[name] = p
}

func (m *MapSource) Keys() []string {
	return slices.Clone(m.names)
}

func (m *MapSource) Tensor(name string) ([]int, []float32, bool) {
	p, ok := m.tensors[name]
	if !ok {
		return nil, nil, false
	}
	return slices.Clone(p.Shape), p.Data, true
}
