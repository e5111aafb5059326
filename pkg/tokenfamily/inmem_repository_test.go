package tokenfamily

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(t *testing.T, repo TokenRepository, familyID uuid.UUID, counter int, expiresAt time.Time) *RefreshTokenRecord {
	t.Helper()

	record, err := repo.Create(context.Background(), CreateTokenRequest{
		JTI:             uuid.New().String(),
		UserID:          uuid.New(),
		FamilyID:        familyID,
		FamilyCreatedAt: time.Now().UTC(),
		RotationCounter: counter,
		ExpiresAt:       expiresAt,
	})
	require.NoError(t, err)
	return record
}

func TestInMemoryCreateAndGet(t *testing.T) {
	repo := NewInMemoryTokenRepository()
	record := newTestRecord(t, repo, uuid.New(), 0, time.Now().Add(time.Hour))

	got, err := repo.GetByJTI(context.Background(), record.JTI)
	require.NoError(t, err)
	assert.Equal(t, record.JTI, got.JTI)
	assert.False(t, got.Revoked)

	_, err = repo.GetByJTI(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestInMemoryCompareAndRevoke(t *testing.T) {
	repo := NewInMemoryTokenRepository()
	record := newTestRecord(t, repo, uuid.New(), 0, time.Now().Add(time.Hour))

	performed, err := repo.CompareAndRevoke(context.Background(), record.JTI, RevokeReasonRotated)
	require.NoError(t, err)
	assert.True(t, performed)

	// second transition on the same jti must report not performed
	performed, err = repo.CompareAndRevoke(context.Background(), record.JTI, RevokeReasonRotated)
	require.NoError(t, err)
	assert.False(t, performed)

	got, err := repo.GetByJTI(context.Background(), record.JTI)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.Equal(t, RevokeReasonRotated, got.RevokedReason)
	assert.NotNil(t, got.RevokedAt)
}

func TestInMemoryCompareAndRevokeConcurrent(t *testing.T) {
	repo := NewInMemoryTokenRepository()
	record := newTestRecord(t, repo, uuid.New(), 0, time.Now().Add(time.Hour))

	const attempts = 50
	var wg sync.WaitGroup
	wins := make([]bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			performed, err := repo.CompareAndRevoke(context.Background(), record.JTI, RevokeReasonRotated)
			assert.NoError(t, err)
			wins[i] = performed
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestInMemoryRevokeFamily(t *testing.T) {
	repo := NewInMemoryTokenRepository()
	familyID := uuid.New()
	otherFamilyID := uuid.New()

	newTestRecord(t, repo, familyID, 0, time.Now().Add(time.Hour))
	newTestRecord(t, repo, familyID, 1, time.Now().Add(time.Hour))
	other := newTestRecord(t, repo, otherFamilyID, 0, time.Now().Add(time.Hour))

	count, err := repo.RevokeFamily(context.Background(), familyID, RevokeReasonReuseDetected)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	active, err := repo.CountActiveByFamilyID(context.Background(), familyID)
	require.NoError(t, err)
	assert.Equal(t, 0, active)

	// the other family is untouched
	got, err := repo.GetByJTI(context.Background(), other.JTI)
	require.NoError(t, err)
	assert.False(t, got.Revoked)

	// idempotent
	count, err = repo.RevokeFamily(context.Background(), familyID, RevokeReasonReuseDetected)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestInMemoryListByFamilyID(t *testing.T) {
	repo := NewInMemoryTokenRepository()
	familyID := uuid.New()

	newTestRecord(t, repo, familyID, 2, time.Now().Add(time.Hour))
	newTestRecord(t, repo, familyID, 0, time.Now().Add(time.Hour))
	newTestRecord(t, repo, familyID, 1, time.Now().Add(time.Hour))

	records, err := repo.ListByFamilyID(context.Background(), familyID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, record := range records {
		assert.Equal(t, i, record.RotationCounter)
	}
}

func TestInMemoryPurgeExpired(t *testing.T) {
	repo := NewInMemoryTokenRepository()
	familyID := uuid.New()
	now := time.Now()

	stale := newTestRecord(t, repo, familyID, 0, now.Add(-48*time.Hour))
	fresh := newTestRecord(t, repo, familyID, 1, now.Add(time.Hour))
	_, err := repo.CompareAndRevoke(context.Background(), stale.JTI, RevokeReasonRotated)
	require.NoError(t, err)

	// unrevoked records are never purged regardless of age
	unrevokedStale := newTestRecord(t, repo, familyID, 2, now.Add(-48*time.Hour))

	count, err := repo.PurgeExpired(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = repo.GetByJTI(context.Background(), stale.JTI)
	require.ErrorIs(t, err, ErrRecordNotFound)
	_, err = repo.GetByJTI(context.Background(), fresh.JTI)
	require.NoError(t, err)
	_, err = repo.GetByJTI(context.Background(), unrevokedStale.JTI)
	require.NoError(t, err)
}
