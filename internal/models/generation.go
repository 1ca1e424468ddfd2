package models

import (
	"time"

	"github.com/google/uuid"
)

// Generation pipelines. Each has its own prompt template and pricing row.
const (
	GenTypeSketch   = "sketch"
	GenTypeConcept  = "concept"
	GenTypeLookbook = "lookbook"
	GenTypeTryOn    = "tryon"
)

// Resolution tiers, in ascending order of quality and price.
const (
	Resolution1K = "1K"
	Resolution2K = "2K"
	Resolution4K = "4K"
)

var AllGenTypes = []string{GenTypeSketch, GenTypeConcept, GenTypeLookbook, GenTypeTryOn}

var AllResolutions = []string{Resolution1K, Resolution2K, Resolution4K}

var AllAspectRatios = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}

// IsGenType reports whether s names a known generation pipeline.
func IsGenType(s string) bool {
	for _, t := range AllGenTypes {
		if t == s {
			return true
		}
	}
	return false
}

// IsResolution reports whether s names a known resolution tier.
func IsResolution(s string) bool {
	for _, r := range AllResolutions {
		if r == s {
			return true
		}
	}
	return false
}

// IsAspectRatio reports whether s names a supported aspect ratio.
func IsAspectRatio(s string) bool {
	for _, a := range AllAspectRatios {
		if a == s {
			return true
		}
	}
	return false
}

// InlineData carries one base64-encoded image part on the wire.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one element of the ordered parts list sent to the model.
// Exactly one of InlineData or Text is set.
type Part struct {
	InlineData *InlineData `json:"inlineData,omitempty"`
	Text       string      `json:"text,omitempty"`
}

type Contents struct {
	Parts []Part `json:"parts"`
}

type GenerationConfig struct {
	Count       int    `json:"count"`
	Resolution  string `json:"resolution"`
	AspectRatio string `json:"aspectRatio"`
}

// GenerationRequest is the wire shape accepted by POST /v1/generations.
// Count is fixed at 1 per call; batching is the client's concern.
type GenerationRequest struct {
	Model    string           `json:"model"`
	Contents Contents         `json:"contents"`
	Type     string           `json:"type"`
	Config   GenerationConfig `json:"config"`
}

// Usage is per-call token and image accounting.
type Usage struct {
	PromptTokens   int `json:"promptTokens"`
	ResponseTokens int `json:"responseTokens"`
	TotalTokens    int `json:"totalTokens"`
}

// Add returns the element-wise sum of two usage records.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:   u.PromptTokens + o.PromptTokens,
		ResponseTokens: u.ResponseTokens + o.ResponseTokens,
		TotalTokens:    u.TotalTokens + o.TotalTokens,
	}
}

// GenerationResponse is the success shape returned by the gateway.
// NewBalance is the authoritative post-debit balance; clients must adopt
// it verbatim rather than computing their own.
type GenerationResponse struct {
	Data       string `json:"data"`
	Usage      Usage  `json:"usage"`
	NewBalance int    `json:"newBalance"`
}

// HistoryMetadata is the per-record metadata block.
type HistoryMetadata struct {
	Resolution  string `json:"resolution"`
	AspectRatio string `json:"aspectRatio"`
}

// HistoryRecord is one persisted generation, keyed by user and retrieved
// newest first. Blob is omitted from list views.
type HistoryRecord struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"userId"`
	Blob      []byte          `json:"blob,omitempty"`
	Type      string          `json:"type"`
	Prompt    string          `json:"prompt"`
	CreatedAt time.Time       `json:"createdAt"`
	Metadata  HistoryMetadata `json:"metadata"`
}
