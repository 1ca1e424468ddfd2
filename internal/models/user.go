package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RoleDesigner = "designer"
	RoleAdmin    = "admin"
)

// SignupGrantCredits is the starting balance granted on registration.
const SignupGrantCredits = 20

type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	CreditBalance int       `json:"credit_balance"`
	Resolutions   []string  `json:"resolutions"`
	Features      []string  `json:"features"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AllowsResolution reports whether the user's tier entitles them to the
// given resolution.
func (u *User) AllowsResolution(resolution string) bool {
	for _, r := range u.Resolutions {
		if r == resolution {
			return true
		}
	}
	return false
}

// AllowsFeature reports whether the named generation pipeline is enabled
// for this user.
func (u *User) AllowsFeature(genType string) bool {
	for _, f := range u.Features {
		if f == genType {
			return true
		}
	}
	return false
}

// BestAllowedResolution returns the highest entitled resolution, used by
// clients to auto-correct a disallowed tier selection. Falls back to 1K.
func (u *User) BestAllowedResolution() string {
	best := ""
	for _, r := range AllResolutions {
		if u.AllowsResolution(r) {
			best = r
		}
	}
	if best == "" {
		return Resolution1K
	}
	return best
}
