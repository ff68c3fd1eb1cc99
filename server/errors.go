// MODUL: errors
// ZWECK: Fehler-Definitionen und JSON-Fehlerantworten der HTTP-API
// INPUT: Fehler, gin.Context, Status-Code
// OUTPUT: JSON-formatierte Fehler-Responses
// NEBENEFFEKTE: bricht die gin-Handlerkette ab
// ABHAENGIGKEITEN: github.com/gin-gonic/gin
// HINWEISE: Codes werden ueber errors.Is auch fuer gewrappte Fehler gefunden

package server

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/ollama/cnclip/vision"
)

var (
	ErrModelNotLoaded   = errors.New("model not loaded")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidInput     = errors.New("invalid input type")
	ErrInvalidBase64    = errors.New("invalid base64 encoding")
	ErrInvalidImage     = errors.New("invalid image data")
	ErrBatchTooLarge    = errors.New("batch size exceeds limit")
	ErrEncodingFailed   = errors.New("encoding failed")
	ErrEmptyBatch       = errors.New("no inputs")
	ErrNotFound         = errors.New("not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrUnsupportedType  = vision.ErrUnknownFormat
)

// APIError ist die JSON-Form jedes Fehlers.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e APIError) Error() string {
	return e.Message
}

// ============================================================================
// Fehler-Code Mapping
// ============================================================================

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrModelNotLoaded, "MODEL_NOT_LOADED"},
	{ErrInvalidRequest, "INVALID_REQUEST"},
	{ErrInvalidInput, "INVALID_INPUT"},
	{ErrInvalidBase64, "INVALID_BASE64"},
	{ErrUnsupportedType, "UNSUPPORTED_FORMAT"},
	{ErrInvalidImage, "INVALID_IMAGE"},
	{ErrBatchTooLarge, "BATCH_TOO_LARGE"},
	{ErrEmptyBatch, "EMPTY_BATCH"},
	{ErrEncodingFailed, "ENCODING_ERROR"},
	{ErrNotFound, "NOT_FOUND"},
	{ErrMethodNotAllowed, "METHOD_NOT_ALLOWED"},
}

// errorCode gibt den API-Code fuer einen Fehler zurueck
func errorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "INTERNAL_ERROR"
}

// writeError schreibt err als APIError und bricht die Kette ab
func writeError(c *gin.Context, status int, err error) {
	apiErr := APIError{Code: errorCode(err), Message: err.Error()}

	var e APIError
	if errors.As(err, &e) {
		apiErr = e
	}

	c.AbortWithStatusJSON(status, apiErr)
}
