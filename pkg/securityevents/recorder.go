package securityevents

import (
	"context"

	"github.com/google/uuid"
)

// Store defines durable storage for security events
type Store interface {
	// Append writes one event
	Append(ctx context.Context, event Event) error

	// ListByUserID returns a user's most recent events, newest first
	ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]Event, error)
}

// Recorder is the interface the rotation engine records through. Record
// must never block the caller and must never surface a write failure as a
// refresh failure; an audit outage degrades observability, not enforcement.
type Recorder interface {
	Record(ctx context.Context, event Event)
}
