package securityevents

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SyncRecorder writes events to the store inline. Write failures are logged
// and swallowed, keeping the Recorder contract that audit problems never
// reach the caller. Tests use this to observe events deterministically.
type SyncRecorder struct {
	store Store
}

// NewSyncRecorder creates a recorder that appends synchronously
func NewSyncRecorder(store Store) *SyncRecorder {
	return &SyncRecorder{store: store}
}

// Record appends the event, filling in id and created_at when unset
func (r *SyncRecorder) Record(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	if err := r.store.Append(ctx, event); err != nil {
		slog.Error("Failed to append security event",
			"event_type", event.EventType,
			"user_id", event.UserID,
			"err", err)
	}
}
