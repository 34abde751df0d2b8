package model

import "time"

// InputKind is the form a submission arrives in
type InputKind string

const (
	KindText  InputKind = "text"
	KindURL   InputKind = "url"
	KindImage InputKind = "image"
)

// RawInput is what an adapter hands to the pipeline
type RawInput struct {
	Kind  InputKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	URL   string    `json:"url,omitempty"`
	Image []byte    `json:"-"`
}

// AnalysisRequest is a normalized submission. It is not modified after
// normalization.
type AnalysisRequest struct {
	ID          string    `json:"id"`                  // Per-request identifier for logs
	Fingerprint string    `json:"fingerprint"`         // Hex SHA-256 of Text
	Kind        InputKind `json:"kind"`                // Original input kind
	Origin      string    `json:"origin,omitempty"`    // URL for url inputs
	Text        string    `json:"text"`                // Normalized, bounded text
	ActorID     string    `json:"actor_id"`            // Submitting user
	SubmittedAt time.Time `json:"submitted_at"`        // Admission time
	Truncated   bool      `json:"truncated,omitempty"` // Derived text was cut to the bound
	Notes       []string  `json:"notes,omitempty"`     // Normalization remarks surfaced as caveats
}
