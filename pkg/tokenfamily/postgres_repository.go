package tokenfamily

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements TokenRepository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL token repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{
		pool: pool,
	}
}

const recordColumns = `
	jti, user_id, family_id, parent_jti, family_created_at, rotation_counter,
	issued_at, expires_at, revoked, revoked_at, revoked_reason
`

func scanRecord(row pgx.Row) (*RefreshTokenRecord, error) {
	record := &RefreshTokenRecord{}
	var parentJTI sql.NullString
	var revokedAt sql.NullTime
	var revokedReason sql.NullString

	err := row.Scan(
		&record.JTI,
		&record.UserID,
		&record.FamilyID,
		&parentJTI,
		&record.FamilyCreatedAt,
		&record.RotationCounter,
		&record.IssuedAt,
		&record.ExpiresAt,
		&record.Revoked,
		&revokedAt,
		&revokedReason,
	)
	if err != nil {
		return nil, err
	}

	if parentJTI.Valid {
		record.ParentJTI = &parentJTI.String
	}
	if revokedAt.Valid {
		record.RevokedAt = &revokedAt.Time
	}
	if revokedReason.Valid {
		record.RevokedReason = RevokeReason(revokedReason.String)
	}

	return record, nil
}

// Create inserts a new token record
func (r *PostgresRepository) Create(ctx context.Context, req CreateTokenRequest) (*RefreshTokenRecord, error) {
	query := `
		INSERT INTO refresh_tokens (
			jti, user_id, family_id, parent_jti, family_created_at,
			rotation_counter, issued_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), $7
		) RETURNING` + recordColumns

	record, err := scanRecord(r.pool.QueryRow(ctx, query,
		req.JTI,
		req.UserID,
		req.FamilyID,
		req.ParentJTI,
		req.FamilyCreatedAt,
		req.RotationCounter,
		req.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create token record: %w", err)
	}

	return record, nil
}

// GetByJTI retrieves a token record by its jti
func (r *PostgresRepository) GetByJTI(ctx context.Context, jti string) (*RefreshTokenRecord, error) {
	query := `
		SELECT` + recordColumns + `
		FROM refresh_tokens
		WHERE jti = $1
	`

	record, err := scanRecord(r.pool.QueryRow(ctx, query, jti))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get token record by jti: %w", err)
	}

	return record, nil
}

// CompareAndRevoke atomically transitions revoked false -> true. The
// revoked = false predicate makes the UPDATE the compare-and-swap: rows
// affected is 1 only for the caller that performed the transition.
func (r *PostgresRepository) CompareAndRevoke(ctx context.Context, jti string, reason RevokeReason) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE,
		    revoked_at = NOW(),
		    revoked_reason = $2
		WHERE jti = $1
		  AND revoked = FALSE
	`

	result, err := r.pool.Exec(ctx, query, jti, string(reason))
	if err != nil {
		return false, fmt.Errorf("failed to revoke token record: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// RevokeFamily revokes every unrevoked record in a family
func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID uuid.UUID, reason RevokeReason) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE,
		    revoked_at = NOW(),
		    revoked_reason = $2
		WHERE family_id = $1
		  AND revoked = FALSE
	`

	result, err := r.pool.Exec(ctx, query, familyID, string(reason))
	if err != nil {
		return 0, fmt.Errorf("failed to revoke token family: %w", err)
	}

	return result.RowsAffected(), nil
}

// ListByFamilyID lists all records in a family, oldest first
func (r *PostgresRepository) ListByFamilyID(ctx context.Context, familyID uuid.UUID) ([]RefreshTokenRecord, error) {
	query := `
		SELECT` + recordColumns + `
		FROM refresh_tokens
		WHERE family_id = $1
		ORDER BY rotation_counter ASC
	`

	rows, err := r.pool.Query(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list token family: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListActiveByUserID lists a user's unrevoked, unexpired records
func (r *PostgresRepository) ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]RefreshTokenRecord, error) {
	query := `
		SELECT` + recordColumns + `
		FROM refresh_tokens
		WHERE user_id = $1
		  AND revoked = FALSE
		  AND expires_at > NOW()
		ORDER BY issued_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active token records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// CountActiveByFamilyID counts unrevoked records in a family
func (r *PostgresRepository) CountActiveByFamilyID(ctx context.Context, familyID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM refresh_tokens
		WHERE family_id = $1
		  AND revoked = FALSE
	`

	var count int
	err := r.pool.QueryRow(ctx, query, familyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active token records: %w", err)
	}

	return count, nil
}

// PurgeExpired deletes records that are both revoked and expired before the
// cutoff. Request-serving paths never delete; only the reaper calls this.
func (r *PostgresRepository) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE revoked = TRUE
		  AND expires_at < $1
	`

	result, err := r.pool.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired token records: %w", err)
	}

	return result.RowsAffected(), nil
}

func collectRecords(rows pgx.Rows) ([]RefreshTokenRecord, error) {
	var records []RefreshTokenRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token record: %w", err)
		}
		records = append(records, *record)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating token records: %w", rows.Err())
	}

	return records, nil
}
