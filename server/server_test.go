package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pdevine/tensor"

	"github.com/ollama/cnclip/vision"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeConditioner struct{ calls [][]string }

func (f *fakeConditioner) Encode(texts ...string) (*tensor.Dense, error) {
	f.calls = append(f.calls, texts)
	data := make([]float32, len(texts)*4)
	for i, text := range texts {
		if text == "fail" {
			return nil, errors.New("boom")
		}
		for j := range 4 {
			data[i*4+j] = float32(i)
		}
	}
	return tensor.New(tensor.WithShape(len(texts), 1, 4), tensor.WithBacking(data)), nil
}

type fakeTokenizer struct{ contexts []int }

func (f *fakeTokenizer) Tokenize(texts []string, contextLength int) (*tensor.Dense, error) {
	f.contexts = append(f.contexts, contextLength)
	ids := make([]int32, len(texts)*contextLength)
	for i, text := range texts {
		ids[i*contextLength] = int32(len(text))
	}
	return tensor.New(tensor.WithShape(len(texts), contextLength), tensor.WithBacking(ids)), nil
}

// fakeCLIP bildet Texte auf [len, 0] und Bilder auf [0, mean] ab
type fakeCLIP struct{}

func (fakeCLIP) EncodeText(ids *tensor.Dense) (*tensor.Dense, error) {
	shape := ids.Shape()
	data := ids.Data().([]int32)
	out := make([]float32, shape[0]*2)
	for i := range shape[0] {
		out[i*2] = float32(data[i*shape[1]])
	}
	return tensor.New(tensor.WithShape(shape[0], 2), tensor.WithBacking(out)), nil
}

func (fakeCLIP) EncodeImage(pixels *tensor.Dense) (*tensor.Dense, error) {
	shape := pixels.Shape()
	data := pixels.Data().([]float32)
	size := shape[1] * shape[2] * shape[3]
	out := make([]float32, shape[0]*2)
	for i := range shape[0] {
		var sum float32
		for _, v := range data[i*size : (i+1)*size] {
			sum += v
		}
		out[i*2+1] = sum / float32(size)
	}
	return tensor.New(tensor.WithShape(shape[0], 2), tensor.WithBacking(out)), nil
}

func (fakeCLIP) Similarity(images, texts *tensor.Dense) (*tensor.Dense, error) {
	ni, nt := images.Shape()[0], texts.Shape()[0]
	out := make([]float32, ni*nt)
	for i := range ni {
		for j := range nt {
			out[i*nt+j] = float32(10*i + j)
		}
	}
	return tensor.New(tensor.WithShape(ni, nt), tensor.WithBacking(out)), nil
}

// ============================================================================
// Hilfsfunktionen
// ============================================================================

func newTestServer(opts ...Option) (*Server, *fakeTokenizer) {
	tok := &fakeTokenizer{}
	defaults := []Option{
		WithConditioner(&fakeConditioner{}),
		WithCLIP(fakeCLIP{}, tok, vision.NewPreprocessor(2), 52),
		WithMaxBatch(3),
	}
	return New(append(defaults, opts...)...), tok
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Antwort ist kein JSON: %v\n%s", err, w.Body.String())
	}
	return v
}

func pngBase64(t *testing.T, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 4 {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// ============================================================================
// Tests
// ============================================================================

func TestHealth(t *testing.T) {
	s, _ := newTestServer()
	w := do(t, s.GenerateRoutes(), http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, erwartet 200", w.Code)
	}
	if diff := cmp.Diff(HealthResponse{Status: "ok", Conditioner: true, CLIP: true}, decode[HealthResponse](t, w)); diff != "" {
		t.Errorf("health mismatch (-want +got):\n%s", diff)
	}

	w = do(t, New().GenerateRoutes(), http.MethodGet, "/api/health", nil)
	if diff := cmp.Diff(HealthResponse{Status: "ok"}, decode[HealthResponse](t, w)); diff != "" {
		t.Errorf("health mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestID(t *testing.T) {
	s, _ := newTestServer()
	h := s.GenerateRoutes()

	w := do(t, h, http.MethodGet, "/", nil)
	if id := w.Header().Get(RequestIDHeader); len(id) != 36 {
		t.Errorf("Request-ID = %q, erwartet UUID", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if id := rec.Header().Get(RequestIDHeader); id != "abc" {
		t.Errorf("Request-ID = %q, erwartet abc", id)
	}
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(WithOrigins([]string{"http://app.test"}))
	h := s.GenerateRoutes()

	cases := []struct {
		origin string
		status int
		allow  string
	}{
		{"http://app.test", http.StatusOK, "http://app.test"},
		{"http://evil.test", http.StatusForbidden, ""},
	}

	for _, tt := range cases {
		t.Run(tt.origin, func(t *testing.T) {
			// Host unterscheidet sich von allen Origins, sonst gilt der Request als same-origin
			req := httptest.NewRequest(http.MethodGet, "http://api.test/api/health", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("Status = %d, erwartet %d", w.Code, tt.status)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.allow {
				t.Errorf("Access-Control-Allow-Origin = %q, erwartet %q", got, tt.allow)
			}
		})
	}
}

func TestCondition(t *testing.T) {
	s, _ := newTestServer()
	h := s.GenerateRoutes()

	w := do(t, h, http.MethodPost, "/api/condition", ConditionRequest{Input: []string{"一只猫", "a dog"}})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, erwartet 200: %s", w.Code, w.Body.String())
	}

	want := ConditionResponse{
		Shape: []int{2, 1, 4},
		Embeddings: [][][]float32{
			{{0, 0, 0, 0}},
			{{1, 1, 1, 1}},
		},
	}
	if diff := cmp.Diff(want, decode[ConditionResponse](t, w)); diff != "" {
		t.Errorf("condition mismatch (-want +got):\n%s", diff)
	}

	w = do(t, h, http.MethodPost, "/api/condition", ConditionRequest{Input: "一只猫"})
	if got := decode[ConditionResponse](t, w); len(got.Embeddings) != 1 {
		t.Errorf("%d Embeddings, erwartet 1", len(got.Embeddings))
	}
}

func TestConditionErrors(t *testing.T) {
	s, _ := newTestServer()
	h := s.GenerateRoutes()

	cases := []struct {
		name   string
		server http.Handler
		body   any
		status int
		code   string
	}{
		{"no body", h, nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad json", h, "{", http.StatusBadRequest, "INVALID_REQUEST"},
		{"number", h, map[string]any{"input": 3}, http.StatusBadRequest, "INVALID_INPUT"},
		{"mixed", h, map[string]any{"input": []any{"a", 1}}, http.StatusBadRequest, "INVALID_INPUT"},
		{"empty", h, map[string]any{"input": []string{}}, http.StatusBadRequest, "EMPTY_BATCH"},
		{"missing", h, map[string]any{}, http.StatusBadRequest, "EMPTY_BATCH"},
		{"too many", h, ConditionRequest{Input: []string{"a", "b", "c", "d"}}, http.StatusBadRequest, "BATCH_TOO_LARGE"},
		{"encode", h, ConditionRequest{Input: "fail"}, http.StatusInternalServerError, "ENCODING_ERROR"},
		{"not loaded", New().GenerateRoutes(), ConditionRequest{Input: "a"}, http.StatusServiceUnavailable, "MODEL_NOT_LOADED"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, tt.server, http.MethodPost, "/api/condition", tt.body)
			if w.Code != tt.status {
				t.Errorf("Status = %d, erwartet %d", w.Code, tt.status)
			}
			if got := decode[APIError](t, w); got.Code != tt.code {
				t.Errorf("Code = %q, erwartet %q (%s)", got.Code, tt.code, got.Message)
			}
		})
	}
}

func TestConditionCache(t *testing.T) {
	cond := &fakeConditioner{}
	h := New(WithConditioner(cond)).GenerateRoutes()

	do(t, h, http.MethodPost, "/api/condition", ConditionRequest{Input: []string{"a", "b"}})
	w := do(t, h, http.MethodPost, "/api/condition", ConditionRequest{Input: []string{"b", "c", "a"}})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, erwartet 200: %s", w.Code, w.Body.String())
	}

	// Nur "c" ist neu
	if diff := cmp.Diff([][]string{{"a", "b"}, {"c"}}, cond.calls); diff != "" {
		t.Errorf("Encode-Aufrufe mismatch (-want +got):\n%s", diff)
	}

	got := decode[ConditionResponse](t, w)
	want := [][][]float32{{{1, 1, 1, 1}}, {{0, 0, 0, 0}}, {{0, 0, 0, 0}}}
	if diff := cmp.Diff(want, got.Embeddings); diff != "" {
		t.Errorf("embeddings mismatch (-want +got):\n%s", diff)
	}

	cond = &fakeConditioner{}
	h = New(WithConditioner(cond), WithCacheSize(0)).GenerateRoutes()
	do(t, h, http.MethodPost, "/api/condition", ConditionRequest{Input: "a"})
	do(t, h, http.MethodPost, "/api/condition", ConditionRequest{Input: "a"})
	if len(cond.calls) != 2 {
		t.Errorf("%d Encode-Aufrufe ohne Cache, erwartet 2", len(cond.calls))
	}
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer()
	h := s.GenerateRoutes()

	do(t, h, http.MethodPost, "/api/condition", ConditionRequest{Input: []string{"a", "a"}})
	do(t, h, http.MethodGet, "/api/missing", nil)

	w := do(t, h, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, erwartet 200", w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		`cnclip_http_requests_total{method="POST",path="/api/condition",status="200"} 1`,
		`cnclip_http_requests_total{method="GET",path="unmatched",status="404"} 1`,
		`cnclip_encoded_inputs_total{kind="text"} 2`,
		`cnclip_condition_cache_misses_total 2`,
		`cnclip_condition_cache_hits_total 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics enthaelt nicht %q", want)
		}
	}
}

func TestEmbedText(t *testing.T) {
	s, tok := newTestServer()
	w := do(t, s.GenerateRoutes(), http.MethodPost, "/api/embed/text", EmbedTextRequest{Input: []string{"ab", "abc"}})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, erwartet 200: %s", w.Code, w.Body.String())
	}

	want := EmbedResponse{Embeddings: [][]float32{{2, 0}, {3, 0}}, Dimensions: 2}
	if diff := cmp.Diff(want, decode[EmbedResponse](t, w)); diff != "" {
		t.Errorf("embed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{52}, tok.contexts); diff != "" {
		t.Errorf("context length mismatch (-want +got):\n%s", diff)
	}
}

func TestEmbedImage(t *testing.T) {
	s, _ := newTestServer()
	h := s.GenerateRoutes()

	white, black := pngBase64(t, color.White), pngBase64(t, color.Black)
	w := do(t, h, http.MethodPost, "/api/embed/image", EmbedImageRequest{Images: []string{white, black}})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, erwartet 200: %s", w.Code, w.Body.String())
	}

	got := decode[EmbedResponse](t, w)
	if got.Dimensions != 2 || len(got.Embeddings) != 2 {
		t.Fatalf("Antwort = %+v, erwartet 2x2", got)
	}
	if got.Embeddings[0][1] <= got.Embeddings[1][1] {
		t.Errorf("weiss (%v) sollte heller als schwarz (%v) sein", got.Embeddings[0][1], got.Embeddings[1][1])
	}

	cases := []struct {
		name   string
		images []string
		code   string
	}{
		{"base64", []string{"!!"}, "INVALID_BASE64"},
		{"format", []string{base64.StdEncoding.EncodeToString([]byte("not an image"))}, "UNSUPPORTED_FORMAT"},
		{"empty", nil, "EMPTY_BATCH"},
		{"too many", []string{white, white, white, white}, "BATCH_TOO_LARGE"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/embed/image", EmbedImageRequest{Images: tt.images})
			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, erwartet 400", w.Code)
			}
			if got := decode[APIError](t, w); got.Code != tt.code {
				t.Errorf("Code = %q, erwartet %q (%s)", got.Code, tt.code, got.Message)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	s, _ := newTestServer()
	h := s.GenerateRoutes()
	white := pngBase64(t, color.White)

	w := do(t, h, http.MethodPost, "/api/similarity", SimilarityRequest{
		Images: []string{white, white},
		Texts:  []string{"猫", "狗", "鸟"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, erwartet 200: %s", w.Code, w.Body.String())
	}

	want := SimilarityResponse{Logits: [][]float32{{0, 1, 2}, {10, 11, 12}}}
	if diff := cmp.Diff(want, decode[SimilarityResponse](t, w)); diff != "" {
		t.Errorf("similarity mismatch (-want +got):\n%s", diff)
	}

	w = do(t, h, http.MethodPost, "/api/similarity", SimilarityRequest{Images: []string{white}})
	if got := decode[APIError](t, w); got.Code != "EMPTY_BATCH" {
		t.Errorf("Code = %q, erwartet EMPTY_BATCH", got.Code)
	}

	w = do(t, New(WithConditioner(&fakeConditioner{})).GenerateRoutes(), http.MethodPost, "/api/similarity", SimilarityRequest{})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, erwartet 503", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	s, _ := newTestServer()
	w := do(t, s.GenerateRoutes(), http.MethodGet, "/api/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, erwartet 404", w.Code)
	}
	if got := decode[APIError](t, w); got.Code != "NOT_FOUND" {
		t.Errorf("Code = %q, erwartet NOT_FOUND", got.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer()
	w := do(t, s.GenerateRoutes(), http.MethodGet, "/api/condition", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, erwartet 405", w.Code)
	}
	if got := decode[APIError](t, w); got.Code != "METHOD_NOT_ALLOWED" {
		t.Errorf("Code = %q, erwartet METHOD_NOT_ALLOWED", got.Code)
	}
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	s, _ := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, erwartet 200", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Serve() = %v, erwartet nil", err)
	}
}
