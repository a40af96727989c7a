package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the per-user entitlement record. The id comes from the
// identity provider.
type Profile struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Email        string     `json:"email" gorm:"uniqueIndex;not null"`
	Credits      int        `json:"credits" gorm:"not null"`
	IsPro        bool       `json:"is_pro" gorm:"not null"`
	ProExpiresAt *time.Time `json:"pro_expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsActivePro is derived, never stored: the flag alone is not enough once
// the paid period has run out.
func (p *Profile) IsActivePro(now time.Time) bool {
	return p.IsPro && p.ProExpiresAt != nil && p.ProExpiresAt.After(now)
}

type ProfileResponse struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	Credits      int        `json:"credits"`
	IsPro        bool       `json:"is_pro"`
	IsActivePro  bool       `json:"is_active_pro"`
	ProExpiresAt *time.Time `json:"pro_expires_at"`
}

func NewProfileResponse(p *Profile, now time.Time) ProfileResponse {
	return ProfileResponse{
		ID:           p.ID,
		Email:        p.Email,
		Credits:      p.Credits,
		IsPro:        p.IsPro,
		IsActivePro:  p.IsActivePro(now),
		ProExpiresAt: p.ProExpiresAt,
	}
}
