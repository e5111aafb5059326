package tokenfamily

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaperPurge(t *testing.T) {
	repo := NewInMemoryTokenRepository()
	now := time.Now()

	stale := newTestRecord(t, repo, uuid.New(), 0, now.Add(-60*24*time.Hour))
	_, err := repo.CompareAndRevoke(context.Background(), stale.JTI, RevokeReasonExpired)
	require.NoError(t, err)

	live := newTestRecord(t, repo, uuid.New(), 0, now.Add(time.Hour))

	reaper := NewReaper(repo, DefaultPurgeRetention)
	reaper.purge()

	_, err = repo.GetByJTI(context.Background(), stale.JTI)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, err = repo.GetByJTI(context.Background(), live.JTI)
	assert.NoError(t, err)
}

func TestReaperStartStop(t *testing.T) {
	reaper := NewReaper(NewInMemoryTokenRepository(), time.Hour)
	reaper.Start()
	reaper.Stop()
}
