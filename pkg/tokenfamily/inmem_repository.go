package tokenfamily

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryTokenRepository implements TokenRepository using in-memory storage.
// The mutex stands in for the storage layer's atomic conditional update, so
// CompareAndRevoke keeps its exactly-one-winner guarantee under concurrency.
// Useful for tests, demos, and single-node development setups.
type InMemoryTokenRepository struct {
	mu      sync.Mutex
	records map[string]*RefreshTokenRecord

	now func() time.Time
}

// NewInMemoryTokenRepository creates a new in-memory token repository
func NewInMemoryTokenRepository() *InMemoryTokenRepository {
	return &InMemoryTokenRepository{
		records: make(map[string]*RefreshTokenRecord),
		now:     time.Now,
	}
}

// SetNowFunc overrides the clock, for tests
func (r *InMemoryTokenRepository) SetNowFunc(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Create inserts a new token record
func (r *InMemoryTokenRepository) Create(ctx context.Context, req CreateTokenRequest) (*RefreshTokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := &RefreshTokenRecord{
		JTI:             req.JTI,
		UserID:          req.UserID,
		FamilyID:        req.FamilyID,
		ParentJTI:       req.ParentJTI,
		FamilyCreatedAt: req.FamilyCreatedAt,
		RotationCounter: req.RotationCounter,
		IssuedAt:        r.now(),
		ExpiresAt:       req.ExpiresAt,
	}
	r.records[req.JTI] = record

	out := *record
	return &out, nil
}

// GetByJTI returns the record for a jti, or ErrRecordNotFound
func (r *InMemoryTokenRepository) GetByJTI(ctx context.Context, jti string) (*RefreshTokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[jti]
	if !ok {
		return nil, ErrRecordNotFound
	}

	out := *record
	return &out, nil
}

// CompareAndRevoke atomically transitions revoked false -> true
func (r *InMemoryTokenRepository) CompareAndRevoke(ctx context.Context, jti string, reason RevokeReason) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[jti]
	if !ok {
		return false, ErrRecordNotFound
	}
	if record.Revoked {
		return false, nil
	}

	now := r.now()
	record.Revoked = true
	record.RevokedAt = &now
	record.RevokedReason = reason
	return true, nil
}

// RevokeFamily revokes every unrevoked record in a family
func (r *InMemoryTokenRepository) RevokeFamily(ctx context.Context, familyID uuid.UUID, reason RevokeReason) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	now := r.now()
	for _, record := range r.records {
		if record.FamilyID == familyID && !record.Revoked {
			record.Revoked = true
			record.RevokedAt = &now
			record.RevokedReason = reason
			count++
		}
	}

	return count, nil
}

// ListByFamilyID lists all records in a family ordered by rotation counter
func (r *InMemoryTokenRepository) ListByFamilyID(ctx context.Context, familyID uuid.UUID) ([]RefreshTokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var records []RefreshTokenRecord
	for _, record := range r.records {
		if record.FamilyID == familyID {
			records = append(records, *record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].RotationCounter < records[j].RotationCounter
	})

	return records, nil
}

// ListActiveByUserID lists a user's unrevoked, unexpired records
func (r *InMemoryTokenRepository) ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]RefreshTokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var records []RefreshTokenRecord
	for _, record := range r.records {
		if record.UserID == userID && !record.Revoked && record.ExpiresAt.After(now) {
			records = append(records, *record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].IssuedAt.After(records[j].IssuedAt)
	})

	return records, nil
}

// CountActiveByFamilyID counts unrevoked records in a family
func (r *InMemoryTokenRepository) CountActiveByFamilyID(ctx context.Context, familyID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, record := range r.records {
		if record.FamilyID == familyID && !record.Revoked {
			count++
		}
	}

	return count, nil
}

// PurgeExpired deletes records that are both revoked and expired before the cutoff
func (r *InMemoryTokenRepository) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for jti, record := range r.records {
		if record.Revoked && record.ExpiresAt.Before(olderThan) {
			delete(r.records, jti)
			count++
		}
	}

	return count, nil
}
