package tokenfamily

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const refreshTokensSchema = `
CREATE TABLE refresh_tokens (
    jti               VARCHAR(64) PRIMARY KEY,
    user_id           UUID NOT NULL,
    family_id         UUID NOT NULL,
    parent_jti        VARCHAR(64),
    family_created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    rotation_counter  INTEGER NOT NULL DEFAULT 0,
    issued_at         TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    expires_at        TIMESTAMP WITH TIME ZONE NOT NULL,
    revoked           BOOLEAN NOT NULL DEFAULT FALSE,
    revoked_at        TIMESTAMP WITH TIME ZONE,
    revoked_reason    VARCHAR(64)
)`

func setupPostgresRepository(t *testing.T) *PostgresRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, refreshTokensSchema)
	require.NoError(t, err)

	return NewPostgresRepository(pool)
}

func TestPostgresRepository(t *testing.T) {
	repo := setupPostgresRepository(t)
	ctx := context.Background()

	userID := uuid.New()
	familyID := uuid.New()
	familyCreatedAt := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("CreateAndGet", func(t *testing.T) {
		record, err := repo.Create(ctx, CreateTokenRequest{
			JTI:             uuid.New().String(),
			UserID:          userID,
			FamilyID:        familyID,
			FamilyCreatedAt: familyCreatedAt,
			RotationCounter: 0,
			ExpiresAt:       time.Now().Add(time.Hour).UTC(),
		})
		require.NoError(t, err)
		assert.Equal(t, userID, record.UserID)
		assert.Equal(t, familyID, record.FamilyID)
		assert.Nil(t, record.ParentJTI)
		assert.False(t, record.Revoked)

		got, err := repo.GetByJTI(ctx, record.JTI)
		require.NoError(t, err)
		assert.Equal(t, record.JTI, got.JTI)
		assert.Equal(t, 0, got.RotationCounter)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.GetByJTI(ctx, "no-such-jti")
		require.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("LinkedSuccessor", func(t *testing.T) {
		parent, err := repo.Create(ctx, CreateTokenRequest{
			JTI:             uuid.New().String(),
			UserID:          userID,
			FamilyID:        familyID,
			FamilyCreatedAt: familyCreatedAt,
			RotationCounter: 1,
			ExpiresAt:       time.Now().Add(time.Hour).UTC(),
		})
		require.NoError(t, err)

		parentJTI := parent.JTI
		child, err := repo.Create(ctx, CreateTokenRequest{
			JTI:             uuid.New().String(),
			UserID:          userID,
			FamilyID:        familyID,
			ParentJTI:       &parentJTI,
			FamilyCreatedAt: familyCreatedAt,
			RotationCounter: 2,
			ExpiresAt:       time.Now().Add(time.Hour).UTC(),
		})
		require.NoError(t, err)
		require.NotNil(t, child.ParentJTI)
		assert.Equal(t, parent.JTI, *child.ParentJTI)
	})

	t.Run("CompareAndRevoke", func(t *testing.T) {
		record, err := repo.Create(ctx, CreateTokenRequest{
			JTI:             uuid.New().String(),
			UserID:          userID,
			FamilyID:        uuid.New(),
			FamilyCreatedAt: familyCreatedAt,
			ExpiresAt:       time.Now().Add(time.Hour).UTC(),
		})
		require.NoError(t, err)

		performed, err := repo.CompareAndRevoke(ctx, record.JTI, RevokeReasonRotated)
		require.NoError(t, err)
		assert.True(t, performed)

		performed, err = repo.CompareAndRevoke(ctx, record.JTI, RevokeReasonRotated)
		require.NoError(t, err)
		assert.False(t, performed)

		got, err := repo.GetByJTI(ctx, record.JTI)
		require.NoError(t, err)
		assert.True(t, got.Revoked)
		assert.Equal(t, RevokeReasonRotated, got.RevokedReason)
		assert.NotNil(t, got.RevokedAt)
	})

	t.Run("RevokeFamily", func(t *testing.T) {
		targetFamily := uuid.New()
		for i := 0; i < 3; i++ {
			_, err := repo.Create(ctx, CreateTokenRequest{
				JTI:             uuid.New().String(),
				UserID:          userID,
				FamilyID:        targetFamily,
				FamilyCreatedAt: familyCreatedAt,
				RotationCounter: i,
				ExpiresAt:       time.Now().Add(time.Hour).UTC(),
			})
			require.NoError(t, err)
		}

		count, err := repo.RevokeFamily(ctx, targetFamily, RevokeReasonReuseDetected)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		active, err := repo.CountActiveByFamilyID(ctx, targetFamily)
		require.NoError(t, err)
		assert.Equal(t, 0, active)

		count, err = repo.RevokeFamily(ctx, targetFamily, RevokeReasonReuseDetected)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)

		records, err := repo.ListByFamilyID(ctx, targetFamily)
		require.NoError(t, err)
		require.Len(t, records, 3)
		for i, record := range records {
			assert.Equal(t, i, record.RotationCounter)
			assert.True(t, record.Revoked)
		}
	})

	t.Run("PurgeExpired", func(t *testing.T) {
		purgeFamily := uuid.New()
		stale, err := repo.Create(ctx, CreateTokenRequest{
			JTI:             uuid.New().String(),
			UserID:          userID,
			FamilyID:        purgeFamily,
			FamilyCreatedAt: familyCreatedAt,
			ExpiresAt:       time.Now().Add(-48 * time.Hour).UTC(),
		})
		require.NoError(t, err)
		_, err = repo.CompareAndRevoke(ctx, stale.JTI, RevokeReasonExpired)
		require.NoError(t, err)

		// revoked but not yet past the cutoff
		recent, err := repo.Create(ctx, CreateTokenRequest{
			JTI:             uuid.New().String(),
			UserID:          userID,
			FamilyID:        purgeFamily,
			FamilyCreatedAt: familyCreatedAt,
			ExpiresAt:       time.Now().Add(time.Hour).UTC(),
		})
		require.NoError(t, err)
		_, err = repo.CompareAndRevoke(ctx, recent.JTI, RevokeReasonRotated)
		require.NoError(t, err)

		count, err := repo.PurgeExpired(ctx, time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		_, err = repo.GetByJTI(ctx, stale.JTI)
		require.ErrorIs(t, err, ErrRecordNotFound)
		_, err = repo.GetByJTI(ctx, recent.JTI)
		require.NoError(t, err)
	})
}
