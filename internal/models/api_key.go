package models

import (
	"github.com/google/uuid"
)

// APIKey authenticates programmatic clients (the studio CLI and design
// tool integrations) against the /v1 generation API.
type APIKey struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	KeyHash   string    `json:"-"`
	KeyPrefix string    `json:"key_prefix"`
	IsActive  bool      `json:"is_active"`
}
