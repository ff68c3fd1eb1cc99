// MODUL: device_test
// ZWECK: Unit-Tests fuer Device-Parsing und Fallback
// HINWEISE: Tests laufen auf jeder Plattform (CPU immer verfuegbar)

package device

import (
	"errors"
	"testing"
)

// ============================================================================
// Parse Tests
// ============================================================================

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Device
	}{
		{"", CPU},
		{"cpu", CPU},
		{" CPU ", CPU},
		{"cuda", Device{Backend: BackendCUDA}},
		{"cuda:1", Device{Backend: BackendCUDA, Index: 1}},
		{"gpu:2", Device{Backend: BackendCUDA, Index: 2}},
		{"mps", Device{Backend: BackendMetal}},
	}

	for _, tt := range cases {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): unerwarteter Fehler %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q): erwartet %v, bekommen %v", tt.in, tt.want, got)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"tpu", "cuda:x", "cuda:-1", "cuda:"} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("Parse(%q): erwartet ErrInvalidDevice, bekommen %v", in, err)
		}
	}
}

func TestString(t *testing.T) {
	cases := map[Device]string{
		CPU:                               "cpu",
		{Backend: BackendCUDA}:            "cuda",
		{Backend: BackendCUDA, Index: 3}:  "cuda:3",
		{Backend: BackendMetal, Index: 0}: "metal",
	}
	for d, want := range cases {
		if got := d.String(); got != want {
			t.Errorf("String: erwartet %q, bekommen %q", want, got)
		}
	}
}

// ============================================================================
// Resolve Tests
// ============================================================================

func TestResolve(t *testing.T) {
	if !IsAvailable(BackendCPU) {
		t.Fatal("CPU muss immer verfuegbar sein")
	}

	if got := Resolve(CPU); got != CPU {
		t.Errorf("Resolve(cpu): erwartet cpu, bekommen %v", got)
	}

	got, err := ParseAndResolve("cuda:1")
	if err != nil {
		t.Fatal(err)
	}
	if got != CPU {
		t.Errorf("Resolve(cuda:1): erwartet cpu Fallback, bekommen %v", got)
	}

	if _, err := ParseAndResolve("npu"); err == nil {
		t.Error("ParseAndResolve(npu): erwartet Fehler")
	}
}
