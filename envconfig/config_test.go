package envconfig

import (
	"log/slog"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ollama/cnclip/logutil"
)

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"true":  slog.LevelDebug,
		"1":     slog.LevelDebug,
		"2":     logutil.LevelTrace,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("CNCLIP_DEBUG", k)
			if i := LogLevel(); i != v {
				t.Errorf("LogLevel() = %v, erwartet %v", i, v)
			}
		})
	}
}

func TestDevice(t *testing.T) {
	cases := map[string]string{
		"":          "cpu",
		"cuda":      "cuda",
		" CUDA:1 ":  "cuda:1",
		"\"metal\"": "metal",
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("CNCLIP_DEVICE", k)
			if d := Device(); d != v {
				t.Errorf("Device() = %q, erwartet %q", d, v)
			}
		})
	}
}

func TestMaxLength(t *testing.T) {
	cases := map[string]uint{
		"":      77,
		"52":    52,
		"-1":    77,
		"abc":   77,
		" 128 ": 128,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("CNCLIP_MAX_LENGTH", k)
			if n := MaxLength(); n != v {
				t.Errorf("MaxLength() = %d, erwartet %d", n, v)
			}
		})
	}
}

func TestNumThreads(t *testing.T) {
	t.Setenv("CNCLIP_NUM_THREADS", "")
	if n := NumThreads(); n != runtime.NumCPU() {
		t.Errorf("NumThreads() = %d, erwartet %d", n, runtime.NumCPU())
	}

	t.Setenv("CNCLIP_NUM_THREADS", "0")
	if n := NumThreads(); n != runtime.NumCPU() {
		t.Errorf("NumThreads() = %d, erwartet %d", n, runtime.NumCPU())
	}

	t.Setenv("CNCLIP_NUM_THREADS", "3")
	if n := NumThreads(); n != 3 {
		t.Errorf("NumThreads() = %d, erwartet 3", n)
	}
}

func TestVar(t *testing.T) {
	t.Setenv("CNCLIP_CHECKPOINT", " '/models/clip_cn_vit-l-14.pt' ")
	if diff := cmp.Diff("/models/clip_cn_vit-l-14.pt", Checkpoint()); diff != "" {
		t.Errorf("Checkpoint() mismatch (-want +got):\n%s", diff)
	}
}

func TestValues(t *testing.T) {
	t.Setenv("CNCLIP_DEVICE", "cuda")
	vals := Values()
	if vals["CNCLIP_DEVICE"] != "cuda" {
		t.Errorf("Values()[CNCLIP_DEVICE] = %q, erwartet cuda", vals["CNCLIP_DEVICE"])
	}
	if len(vals) != len(AsMap()) {
		t.Errorf("Values() hat %d Eintraege, erwartet %d", len(vals), len(AsMap()))
	}
}

func TestHost(t *testing.T) {
	cases := map[string]string{
		"":                      "127.0.0.1:11500",
		"0.0.0.0":               "0.0.0.0:11500",
		":9000":                 ":9000",
		"example.com":           "example.com:11500",
		"http://10.0.0.1":       "10.0.0.1:80",
		"https://example.com":   "example.com:443",
		"127.0.0.1:99999":       "127.0.0.1:11500",
		"http://[::1]:8080/api": "[::1]:8080",
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("CNCLIP_HOST", k)
			if h := Host().Host; h != v {
				t.Errorf("Host() = %q, erwartet %q", h, v)
			}
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("CNCLIP_ORIGINS", "")
	defaults := AllowedOrigins()
	if len(defaults) != 12 {
		t.Fatalf("AllowedOrigins() hat %d Eintraege, erwartet 12", len(defaults))
	}

	t.Setenv("CNCLIP_ORIGINS", "http://10.0.0.1,https://example.com")
	origins := AllowedOrigins()
	if diff := cmp.Diff([]string{"http://10.0.0.1", "https://example.com"}, origins[:2]); diff != "" {
		t.Errorf("AllowedOrigins() mismatch (-want +got):\n%s", diff)
	}
	if len(origins) != len(defaults)+2 {
		t.Errorf("AllowedOrigins() hat %d Eintraege, erwartet %d", len(origins), len(defaults)+2)
	}
}
