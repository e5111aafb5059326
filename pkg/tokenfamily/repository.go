package tokenfamily

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenRepository defines the interface for refresh token record storage.
//
// CompareAndRevoke is the single atomicity-critical operation: it must
// transition revoked from false to true only if the record was still
// unrevoked at the moment of the attempt, and report whether this caller
// performed the transition. Everything else may be eventually consistent.
type TokenRepository interface {
	// Create inserts a new token record
	Create(ctx context.Context, req CreateTokenRequest) (*RefreshTokenRecord, error)

	// GetByJTI returns the record for a jti, or ErrRecordNotFound
	GetByJTI(ctx context.Context, jti string) (*RefreshTokenRecord, error)

	// CompareAndRevoke atomically transitions revoked false -> true.
	// Returns true only if this call performed the transition; false means
	// another caller already revoked the record.
	CompareAndRevoke(ctx context.Context, jti string, reason RevokeReason) (bool, error)

	// RevokeFamily revokes every unrevoked record in a family and returns
	// the number of records it transitioned. Idempotent.
	RevokeFamily(ctx context.Context, familyID uuid.UUID, reason RevokeReason) (int64, error)

	// ListByFamilyID returns all records in a family, oldest first
	ListByFamilyID(ctx context.Context, familyID uuid.UUID) ([]RefreshTokenRecord, error)

	// ListActiveByUserID returns a user's unrevoked, unexpired records
	ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]RefreshTokenRecord, error)

	// CountActiveByFamilyID counts unrevoked records in a family
	CountActiveByFamilyID(ctx context.Context, familyID uuid.UUID) (int, error)

	// PurgeExpired deletes records that are both revoked and expired before
	// the given cutoff. Returns the number of records deleted.
	PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error)
}
