package securityevents

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL event store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
	}
}

// Append writes one event row. Details are stored as JSONB.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO security_events (
			id, user_id, family_id, event_type, details,
			ip_address, user_agent, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := s.pool.Exec(ctx, query,
		event.ID,
		event.UserID,
		event.FamilyID,
		string(event.EventType),
		event.Details,
		event.IPAddress,
		event.UserAgent,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append security event: %w", err)
	}

	return nil
}

// ListByUserID returns a user's most recent events, newest first
func (s *PostgresStore) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]Event, error) {
	query := `
		SELECT id, user_id, family_id, event_type, details,
		       ip_address, user_agent, created_at
		FROM security_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var familyID uuid.NullUUID
		var ipAddress, userAgent sql.NullString

		err := rows.Scan(
			&event.ID,
			&event.UserID,
			&familyID,
			&event.EventType,
			&event.Details,
			&ipAddress,
			&userAgent,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}

		if familyID.Valid {
			event.FamilyID = &familyID.UUID
		}
		event.IPAddress = ipAddress.String
		event.UserAgent = userAgent.String

		events = append(events, event)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating security events: %w", rows.Err())
	}

	return events, nil
}
