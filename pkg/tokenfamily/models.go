package tokenfamily

import (
	"time"

	"github.com/google/uuid"
)

// RevokeReason explains why a refresh token record was revoked
type RevokeReason string

const (
	RevokeReasonRotated       RevokeReason = "rotated"
	RevokeReasonExpired       RevokeReason = "expired"
	RevokeReasonReuseDetected RevokeReason = "reuse_detected"
	RevokeReasonFamilyAge     RevokeReason = "family_age_exceeded"
	RevokeReasonRotationLimit RevokeReason = "rotation_limit_exceeded"
	RevokeReasonLogout        RevokeReason = "logout"
	RevokeReasonAdmin         RevokeReason = "admin_revoked"
)

// RefreshTokenRecord is one issued refresh token. Records descended from the
// same login event share a family_id and family_created_at; each rotation
// links the new record to its predecessor through parent_jti.
type RefreshTokenRecord struct {
	JTI             string       `json:"jti"`
	UserID          uuid.UUID    `json:"user_id"`
	FamilyID        uuid.UUID    `json:"family_id"`
	ParentJTI       *string      `json:"parent_jti,omitempty"`
	FamilyCreatedAt time.Time    `json:"family_created_at"`
	RotationCounter int          `json:"rotation_counter"`
	IssuedAt        time.Time    `json:"issued_at"`
	ExpiresAt       time.Time    `json:"expires_at"`
	Revoked         bool         `json:"revoked"`
	RevokedAt       *time.Time   `json:"revoked_at,omitempty"`
	RevokedReason   RevokeReason `json:"revoked_reason,omitempty"`
}

// IsExpired reports whether the record's own validity window has passed
func (r *RefreshTokenRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// CreateTokenRequest carries the fields for inserting a new token record
type CreateTokenRequest struct {
	JTI             string    `json:"jti"`
	UserID          uuid.UUID `json:"user_id"`
	FamilyID        uuid.UUID `json:"family_id"`
	ParentJTI       *string   `json:"parent_jti,omitempty"`
	FamilyCreatedAt time.Time `json:"family_created_at"`
	RotationCounter int       `json:"rotation_counter"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// TokenPair is the result of a successful login or rotation
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	JTI              string    `json:"jti"`
	FamilyID         uuid.UUID `json:"family_id"`
}
