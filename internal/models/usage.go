package models

import (
	"time"

	"github.com/google/uuid"
)

// Usage log actions. A regeneration of a single slot is logged under
// ActionRegeneration so analytics can separate it from first-pass runs.
const (
	ActionGeneration   = "generation"
	ActionRegeneration = "regeneration"
)

// UsageLog is an immutable record written once per successful generation.
type UsageLog struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Action         string    `json:"action"`
	GenType        string    `json:"gen_type"`
	Resolution     string    `json:"resolution"`
	PromptTokens   int       `json:"prompt_tokens"`
	ResponseTokens int       `json:"response_tokens"`
	TotalTokens    int       `json:"total_tokens"`
	ImageCount     int       `json:"image_count"`
	Cost           int       `json:"cost"`
	CreatedAt      time.Time `json:"created_at"`
}
