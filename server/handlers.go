// MODUL: handlers
// ZWECK: Handler fuer Conditioning, Text-/Bild-Embeddings und Similarity
// INPUT: JSON-Requests mit Texten oder Base64-Bildern
// OUTPUT: JSON-Responses mit Tensoren als verschachtelte Listen
// NEBENEFFEKTE: Modell-Aufrufe unter s.mu
// ABHAENGIGKEITEN: github.com/gin-gonic/gin, github.com/pdevine/tensor
// HINWEISE: Leere Eingaben liefern EMPTY_BATCH, nicht eine leere Liste.
//           Der Cache wird ausserhalb von s.mu gelesen, lru ist threadsicher.

package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pdevine/tensor"

	"github.com/ollama/cnclip/vision"
)

// ============================================================================
// GET /api/health
// ============================================================================

// HealthHandler meldet welche Modelle geladen sind
func (s *Server) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Conditioner: s.cond != nil,
		CLIP:        s.clip != nil,
	})
}

// ============================================================================
// POST /api/condition
// ============================================================================

// ConditionHandler liefert [B, 1, 768] pro Text
func (s *Server) ConditionHandler(c *gin.Context) {
	if s.cond == nil {
		writeError(c, http.StatusServiceUnavailable, fmt.Errorf("%w: conditioner", ErrModelNotLoaded))
		return
	}

	var req ConditionRequest
	if !bindJSON(c, &req) {
		return
	}

	texts, err := s.inputs(req.Input)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	embeddings, err := s.condition(texts)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Errorf("%w: %w", ErrEncodingFailed, err))
		return
	}

	c.JSON(http.StatusOK, ConditionResponse{
		Shape:      []int{len(embeddings), len(embeddings[0]), len(embeddings[0][0])},
		Embeddings: embeddings,
	})
}

// condition liest Treffer aus dem Cache und encodiert nur den Rest
func (s *Server) condition(texts []string) ([][][]float32, error) {
	out := make([][][]float32, len(texts))
	var missing []string
	var index []int
	for i, text := range texts {
		if s.cache != nil {
			if rows, ok := s.cache.Get(text); ok {
				out[i] = rows
				continue
			}
		}
		missing = append(missing, text)
		index = append(index, i)
	}
	s.metrics.cacheHits.Add(float64(len(texts) - len(missing)))
	s.metrics.cacheMisses.Add(float64(len(missing)))

	if len(missing) == 0 {
		return out, nil
	}

	s.mu.Lock()
	z, err := s.cond.Encode(missing...)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.metrics.inputs.WithLabelValues("text").Add(float64(len(missing)))

	for j, rows := range rank3(z) {
		out[index[j]] = rows
		if s.cache != nil {
			s.cache.Add(missing[j], rows)
		}
	}
	return out, nil
}

// ============================================================================
// POST /api/embed/text und /api/embed/image
// ============================================================================

// EmbedTextHandler liefert projizierte CLIP-Textfeatures
func (s *Server) EmbedTextHandler(c *gin.Context) {
	if !s.requireCLIP(c) {
		return
	}

	var req EmbedTextRequest
	if !bindJSON(c, &req) {
		return
	}

	texts, err := s.inputs(req.Input)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	features, err := s.encodeTexts(texts)
	s.mu.Unlock()
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Errorf("%w: %w", ErrEncodingFailed, err))
		return
	}

	writeEmbeddings(c, features)
}

// EmbedImageHandler liefert projizierte CLIP-Bildfeatures
func (s *Server) EmbedImageHandler(c *gin.Context) {
	if !s.requireCLIP(c) {
		return
	}

	var req EmbedImageRequest
	if !bindJSON(c, &req) {
		return
	}

	pixels, err := s.pixels(req.Images)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	features, err := s.clip.EncodeImage(pixels)
	s.mu.Unlock()
	s.metrics.inputs.WithLabelValues("image").Add(float64(len(req.Images)))
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Errorf("%w: %w", ErrEncodingFailed, err))
		return
	}

	writeEmbeddings(c, features)
}

// ============================================================================
// POST /api/similarity
// ============================================================================

// SimilarityHandler liefert logit_scale * cos fuer alle Bild-Text-Paare
func (s *Server) SimilarityHandler(c *gin.Context) {
	if !s.requireCLIP(c) {
		return
	}

	var req SimilarityRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := s.checkBatch(len(req.Texts)); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("texts: %w", err))
		return
	}

	pixels, err := s.pixels(req.Images)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	logits, err := s.similarity(pixels, req.Texts)
	s.mu.Unlock()
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Errorf("%w: %w", ErrEncodingFailed, err))
		return
	}

	c.JSON(http.StatusOK, SimilarityResponse{Logits: rows(logits)})
}

func (s *Server) similarity(pixels *tensor.Dense, texts []string) (*tensor.Dense, error) {
	images, err := s.clip.EncodeImage(pixels)
	if err != nil {
		return nil, err
	}
	s.metrics.inputs.WithLabelValues("image").Add(float64(images.Shape()[0]))
	features, err := s.encodeTexts(texts)
	if err != nil {
		return nil, err
	}
	return s.clip.Similarity(images, features)
}

// ============================================================================
// Hilfsfunktionen
// ============================================================================

func (s *Server) requireCLIP(c *gin.Context) bool {
	if s.clip == nil || s.tok == nil || s.pre == nil {
		writeError(c, http.StatusServiceUnavailable, fmt.Errorf("%w: clip", ErrModelNotLoaded))
		return false
	}
	return true
}

func (s *Server) encodeTexts(texts []string) (*tensor.Dense, error) {
	s.metrics.inputs.WithLabelValues("text").Add(float64(len(texts)))
	ids, err := s.tok.Tokenize(texts, s.contextLength)
	if err != nil {
		return nil, err
	}
	return s.clip.EncodeText(ids)
}

// bindJSON dekodiert den Body, bei Fehlern ist die Antwort bereits geschrieben
func bindJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	switch {
	case errors.Is(err, io.EOF):
		writeError(c, http.StatusBadRequest, fmt.Errorf("%w: missing request body", ErrInvalidRequest))
		return false
	case err != nil:
		writeError(c, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return false
	}
	return true
}

func (s *Server) checkBatch(n int) error {
	switch {
	case n == 0:
		return ErrEmptyBatch
	case n > s.maxBatch:
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, n, s.maxBatch)
	}
	return nil
}

// inputs normalisiert "input" auf eine Liste von Texten
func (s *Server) inputs(input any) ([]string, error) {
	var texts []string
	switch i := input.(type) {
	case string:
		texts = []string{i}
	case []any:
		for _, v := range i {
			text, ok := v.(string)
			if !ok {
				return nil, ErrInvalidInput
			}
			texts = append(texts, text)
		}
	case nil:
	default:
		return nil, ErrInvalidInput
	}

	if err := s.checkBatch(len(texts)); err != nil {
		return nil, err
	}
	return texts, nil
}

// pixels dekodiert Base64-Bilder und stapelt sie zu [B, 3, R, R]
func (s *Server) pixels(encoded []string) (*tensor.Dense, error) {
	if err := s.checkBatch(len(encoded)); err != nil {
		return nil, fmt.Errorf("images: %w", err)
	}

	imgs := make([]*vision.Image, len(encoded))
	for i, e := range encoded {
		data, err := base64.StdEncoding.DecodeString(e)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d: %w", ErrInvalidBase64, i, err)
		}
		if imgs[i], err = vision.DecodeBytes(data); err != nil {
			return nil, fmt.Errorf("%w: image %d: %w", ErrInvalidImage, i, err)
		}
	}

	pixels, err := s.pre.Batch(imgs...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return pixels, nil
}

func writeEmbeddings(c *gin.Context, t *tensor.Dense) {
	embeddings := rows(t)
	dim := 0
	if len(embeddings) > 0 {
		dim = len(embeddings[0])
	}
	c.JSON(http.StatusOK, EmbedResponse{Embeddings: embeddings, Dimensions: dim})
}

// rows zerlegt einen float32-Tensor [N, D] in Zeilen
func rows(t *tensor.Dense) [][]float32 {
	shape := t.Shape()
	data := t.Data().([]float32)
	n, d := shape[0], shape[1]
	out := make([][]float32, n)
	for i := range n {
		out[i] = data[i*d : (i+1)*d]
	}
	return out
}

// rank3 zerlegt einen float32-Tensor [B, S, D]
func rank3(t *tensor.Dense) [][][]float32 {
	shape := t.Shape()
	data := t.Data().([]float32)
	b, seq, d := shape[0], shape[1], shape[2]
	out := make([][][]float32, b)
	for i := range b {
		out[i] = make([][]float32, seq)
		for j := range seq {
			off := (i*seq + j) * d
			out[i][j] = data[off : off+d]
		}
	}
	return out
}
