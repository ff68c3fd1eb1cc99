// MODUL: types
// ZWECK: Request- und Response-Typen der HTTP-API
// INPUT: JSON Request-Bodies
// OUTPUT: JSON Response-Bodies
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine
// HINWEISE: "input" akzeptiert einen String oder eine Liste von Strings

package server

// ConditionRequest ist der Body fuer POST /api/condition
type ConditionRequest struct {
	Input any `json:"input"`
}

// ConditionResponse enthaelt die Conditioning-Tensoren [B, 1, 768]
type ConditionResponse struct {
	Shape      []int         `json:"shape"`
	Embeddings [][][]float32 `json:"embeddings"`
}

// EmbedTextRequest ist der Body fuer POST /api/embed/text
type EmbedTextRequest struct {
	Input any `json:"input"`
}

// EmbedImageRequest ist der Body fuer POST /api/embed/image
type EmbedImageRequest struct {
	// Base64-kodierte Bilder (PNG, JPEG, GIF, WebP)
	Images []string `json:"images"`
}

// EmbedResponse enthaelt CLIP-Features
type EmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
}

// SimilarityRequest ist der Body fuer POST /api/similarity
type SimilarityRequest struct {
	Images []string `json:"images"`
	Texts  []string `json:"texts"`
}

// SimilarityResponse enthaelt skalierte Cosinus-Logits [Bilder][Texte]
type SimilarityResponse struct {
	Logits [][]float32 `json:"logits"`
}

// HealthResponse ist die Antwort von GET /api/health
type HealthResponse struct {
	Status      string `json:"status"`
	Conditioner bool   `json:"conditioner"`
	CLIP        bool   `json:"clip"`
}
