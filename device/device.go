// MODUL: device
// ZWECK: Device-Bezeichner parsen und auf ein ausfuehrbares Backend abbilden
// INPUT: Strings wie "cpu", "cuda", "cuda:1", "mps"
// OUTPUT: Device{Backend, Index}
// NEBENEFFEKTE: Warn-Log wenn ein Beschleuniger nicht verfuegbar ist
// ABHAENGIGKEITEN: log/slog
// HINWEISE: Nur das CPU-Backend rechnet, Tensoren bleiben im Host-Speicher

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// ============================================================================
// Backend-Typ Definition
// ============================================================================

// Backend repraesentiert ein Compute-Backend.
type Backend string

const (
	BackendCPU   Backend = "cpu"
	BackendCUDA  Backend = "cuda"
	BackendMetal Backend = "metal"
)

// aliases bildet torch-Schreibweisen auf Backends ab
var aliases = map[string]Backend{
	"cpu":   BackendCPU,
	"cuda":  BackendCUDA,
	"gpu":   BackendCUDA,
	"metal": BackendMetal,
	"mps":   BackendMetal,
}

var ErrInvalidDevice = errors.New("device: invalid device")

// ============================================================================
// Device
// ============================================================================

// Device is a backend plus device index, e.g. cuda:1.
type Device struct {
	Backend Backend
	Index   int
}

// CPU is the host device.
var CPU = Device{Backend: BackendCPU}

func (d Device) String() string {
	if d.Backend == BackendCPU || d.Index == 0 {
		return string(d.Backend)
	}
	return fmt.Sprintf("%s:%d", d.Backend, d.Index)
}

// Parse liest "backend[:index]". Leere Strings ergeben CPU.
func Parse(s string) (Device, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CPU, nil
	}

	name, index, hasIndex := strings.Cut(s, ":")
	b, ok := aliases[name]
	if !ok {
		return Device{}, fmt.Errorf("%w: %q", ErrInvalidDevice, s)
	}

	d := Device{Backend: b}
	if hasIndex {
		n, err := strconv.Atoi(index)
		if err != nil || n < 0 {
			return Device{}, fmt.Errorf("%w: index in %q", ErrInvalidDevice, s)
		}
		d.Index = n
	}
	return d, nil
}

// ============================================================================
// Verfuegbarkeit
// ============================================================================

// Available listet die Backends, die in diesem Build rechnen koennen.
func Available() []Backend {
	return []Backend{BackendCPU}
}

// IsAvailable prueft ob ein Backend verfuegbar ist.
func IsAvailable(b Backend) bool {
	for _, a := range Available() {
		if a == b {
			return true
		}
	}
	return false
}

// Resolve faellt fuer nicht verfuegbare Backends auf CPU zurueck.
func Resolve(d Device) Device {
	if IsAvailable(d.Backend) {
		return d
	}
	slog.Warn("device not available, using cpu", "requested", d.String())
	return CPU
}

// ParseAndResolve kombiniert Parse und Resolve.
func ParseAndResolve(s string) (Device, error) {
	d, err := Parse(s)
	if err != nil {
		return Device{}, err
	}
	return Resolve(d), nil
}
