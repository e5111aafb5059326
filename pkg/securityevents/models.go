package securityevents

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of security-relevant occurrences
type EventType string

const (
	EventSuspiciousRotation EventType = "SUSPICIOUS_ROTATION"
	EventFamilyRevoked      EventType = "FAMILY_REVOKED"
	EventMultipleIPs        EventType = "MULTIPLE_IPS"
	EventPasswordReset      EventType = "PASSWORD_RESET"
	EventLoginSuccess       EventType = "LOGIN_SUCCESS"
	EventLoginFailed        EventType = "LOGIN_FAILED"
	EventLogout             EventType = "LOGOUT"
	EventTokenRefresh       EventType = "TOKEN_REFRESH"
	EventTokenRevoked       EventType = "TOKEN_REVOKED"
)

// Event is one append-only audit log entry. Events are never mutated or
// deleted by request-serving code.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	FamilyID  *uuid.UUID     `json:"family_id,omitempty"`
	EventType EventType      `json:"event_type"`
	Details   map[string]any `json:"details,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
