package tokenfamily

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// DefaultPurgeRetention keeps revoked, expired records around for a while
// for audit correlation before the reaper deletes them
const DefaultPurgeRetention = 30 * 24 * time.Hour

// Reaper periodically purges token records that are both revoked and long
// expired. It never touches unrevoked or unexpired rows; request-serving
// code never deletes.
type Reaper struct {
	repo      TokenRepository
	retention time.Duration
	scheduler *gocron.Scheduler
}

// NewReaper creates a reaper with the given retention period
func NewReaper(repo TokenRepository, retention time.Duration) *Reaper {
	if retention <= 0 {
		retention = DefaultPurgeRetention
	}
	return &Reaper{
		repo:      repo,
		retention: retention,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the purge job
func (r *Reaper) Start() {
	r.scheduler.Every(1).Hour().Do(r.purge)
	r.scheduler.StartAsync()
}

// Stop halts the scheduler
func (r *Reaper) Stop() {
	r.scheduler.Stop()
}

func (r *Reaper) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-r.retention)
	count, err := r.repo.PurgeExpired(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to purge expired token records", "err", err)
		return
	}

	if count > 0 {
		slog.Info("Purged expired token records", "count", count, "older_than", cutoff)
	}
}
