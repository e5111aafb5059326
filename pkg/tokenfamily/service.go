package tokenfamily

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-token/pkg/securityevents"
	"github.com/tendant/simple-token/pkg/tokengenerator"
)

// Policy defaults
const (
	DefaultMaxFamilyAge       = 7 * 24 * time.Hour
	DefaultMaxRotations       = 100
	DefaultRefreshTokenExpiry = 24 * time.Hour
)

// Policy holds the externally supplied rotation ceilings. The engine never
// re-derives these.
type Policy struct {
	// MaxFamilyAge is the maximum time since the family's root token was
	// issued before re-authentication is forced
	MaxFamilyAge time.Duration

	// MaxRotations is the maximum rotation counter value a presented token
	// may carry
	MaxRotations int

	// RefreshTokenExpiry is the validity window of each issued refresh token
	RefreshTokenExpiry time.Duration
}

// DefaultPolicy returns the default rotation policy
func DefaultPolicy() Policy {
	return Policy{
		MaxFamilyAge:       DefaultMaxFamilyAge,
		MaxRotations:       DefaultMaxRotations,
		RefreshTokenExpiry: DefaultRefreshTokenExpiry,
	}
}

// Service is the rotation engine: it validates an incoming refresh token,
// makes the accept/reject decision, performs the atomic rotation or family
// revocation, and records security events.
type Service struct {
	repo   TokenRepository
	issuer tokengenerator.CredentialIssuer
	events securityevents.Recorder
	policy Policy

	now func() time.Time
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithPolicy overrides the default rotation policy
func WithPolicy(policy Policy) ServiceOption {
	return func(s *Service) {
		if policy.MaxFamilyAge > 0 {
			s.policy.MaxFamilyAge = policy.MaxFamilyAge
		}
		if policy.MaxRotations > 0 {
			s.policy.MaxRotations = policy.MaxRotations
		}
		if policy.RefreshTokenExpiry > 0 {
			s.policy.RefreshTokenExpiry = policy.RefreshTokenExpiry
		}
	}
}

// WithNowFunc overrides the clock, for tests
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new rotation service
func NewService(repo TokenRepository, issuer tokengenerator.CredentialIssuer, events securityevents.Recorder, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		issuer: issuer,
		events: events,
		policy: DefaultPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login creates a new token family for a freshly authenticated user and
// returns the initial token pair. Verifying the user's credentials is the
// caller's responsibility.
func (s *Service) Login(ctx context.Context, userID uuid.UUID, clientIP, userAgent string) (*TokenPair, error) {
	now := s.now()
	familyID := uuid.New()

	record, err := s.repo.Create(ctx, CreateTokenRequest{
		JTI:             uuid.New().String(),
		UserID:          userID,
		FamilyID:        familyID,
		ParentJTI:       nil,
		FamilyCreatedAt: now.UTC(),
		RotationCounter: 0,
		ExpiresAt:       now.Add(s.policy.RefreshTokenExpiry).UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	pair, err := s.mintPair(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.events.Record(ctx, securityevents.Event{
		UserID:    userID,
		FamilyID:  &familyID,
		EventType: securityevents.EventLoginSuccess,
		Details:   map[string]any{"jti": record.JTI},
		IPAddress: clientIP,
		UserAgent: userAgent,
	})

	slog.Info("Token family created", "user_id", userID, "family_id", familyID)
	return pair, nil
}

// Refresh rotates a refresh token. On success the presented token is
// atomically revoked, a linked successor record is inserted, and a new
// token pair is returned. Any anomaly revokes the whole family.
func (s *Service) Refresh(ctx context.Context, rawToken, clientIP, userAgent string) (*TokenPair, error) {
	// 1. Signature and claim structure
	claims, err := s.issuer.VerifyAndDecode(rawToken)
	if err != nil {
		slog.Warn("Refresh token failed verification", "ip", clientIP, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject claim", ErrInvalidToken)
	}

	// 2. Record lookup
	record, err := s.repo.GetByJTI(ctx, claims.JTI)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			// Valid signature with no backing record is worth flagging:
			// either the record was purged or the token was forged from a
			// leaked signing key.
			s.events.Record(ctx, securityevents.Event{
				UserID:    userID,
				EventType: securityevents.EventSuspiciousRotation,
				Details:   map[string]any{"reason": "unknown_jti", "jti": claims.JTI},
				IPAddress: clientIP,
				UserAgent: userAgent,
			})
			return nil, fmt.Errorf("%w: unknown jti", ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	now := s.now()

	// 3. Already revoked: this token was consumed by a prior rotation or is
	// being replayed after theft. No partial trust even though the
	// signature checked out.
	if record.Revoked {
		return nil, s.handleReuse(ctx, record, "revoked_token_presented", clientIP, userAgent)
	}

	// 4. The record's own validity window
	if record.IsExpired(now) {
		if _, err := s.repo.CompareAndRevoke(ctx, record.JTI, RevokeReasonExpired); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		s.events.Record(ctx, securityevents.Event{
			UserID:    record.UserID,
			FamilyID:  &record.FamilyID,
			EventType: securityevents.EventTokenRevoked,
			Details:   map[string]any{"reason": string(RevokeReasonExpired), "jti": record.JTI},
			IPAddress: clientIP,
			UserAgent: userAgent,
		})
		return nil, ErrExpiredToken
	}

	// 5. Family age ceiling
	if now.Sub(record.FamilyCreatedAt) > s.policy.MaxFamilyAge {
		s.revokeFamilyWithEvent(ctx, record, RevokeReasonFamilyAge, clientIP, userAgent)
		return nil, ErrReauthRequired
	}

	// 6. Rotation count ceiling
	if record.RotationCounter >= s.policy.MaxRotations {
		s.revokeFamilyWithEvent(ctx, record, RevokeReasonRotationLimit, clientIP, userAgent)
		return nil, ErrReauthRequired
	}

	// 7. The atomic conditional transition. Losing it means a concurrent
	// request rotated or revoked this exact token since step 2; duplicate
	// submission and theft are indistinguishable here, so both are treated
	// as reuse.
	performed, err := s.repo.CompareAndRevoke(ctx, record.JTI, RevokeReasonRotated)
	if err != nil {
		// Unknown outcome is failed-safe: deny rather than issue tokens
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !performed {
		return nil, s.handleReuse(ctx, record, "concurrent_rotation", clientIP, userAgent)
	}

	// 8. Insert the linked successor record
	parentJTI := record.JTI
	successor, err := s.repo.Create(ctx, CreateTokenRequest{
		JTI:             uuid.New().String(),
		UserID:          record.UserID,
		FamilyID:        record.FamilyID,
		ParentJTI:       &parentJTI,
		FamilyCreatedAt: record.FamilyCreatedAt,
		RotationCounter: record.RotationCounter + 1,
		ExpiresAt:       now.Add(s.policy.RefreshTokenExpiry).UTC(),
	})
	if err != nil {
		// The old record is already revoked; denying here forces a fresh
		// login instead of guessing at partial success.
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// 9. New signed token material
	pair, err := s.mintPair(successor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// 10. Audit
	s.events.Record(ctx, securityevents.Event{
		UserID:    record.UserID,
		FamilyID:  &record.FamilyID,
		EventType: securityevents.EventTokenRefresh,
		Details: map[string]any{
			"old_jti":          record.JTI,
			"new_jti":          successor.JTI,
			"rotation_counter": successor.RotationCounter,
		},
		IPAddress: clientIP,
		UserAgent: userAgent,
	})

	return pair, nil
}

// Logout revokes the family of the presented refresh token
func (s *Service) Logout(ctx context.Context, rawToken, clientIP, userAgent string) error {
	claims, err := s.issuer.VerifyAndDecode(rawToken)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	record, err := s.repo.GetByJTI(ctx, claims.JTI)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return fmt.Errorf("%w: unknown jti", ErrInvalidToken)
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	count, err := s.repo.RevokeFamily(ctx, record.FamilyID, RevokeReasonLogout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.events.Record(ctx, securityevents.Event{
		UserID:    record.UserID,
		FamilyID:  &record.FamilyID,
		EventType: securityevents.EventLogout,
		Details:   map[string]any{"revoked_count": count},
		IPAddress: clientIP,
		UserAgent: userAgent,
	})

	slog.Info("Token family revoked on logout", "family_id", record.FamilyID, "revoked_count", count)
	return nil
}

// RevokeFamily force-revokes every unrevoked record in a family. Idempotent;
// revoking a fully revoked family is a no-op with count zero.
func (s *Service) RevokeFamily(ctx context.Context, familyID uuid.UUID, reason RevokeReason, clientIP, userAgent string) (int64, error) {
	records, err := s.repo.ListByFamilyID(ctx, familyID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if len(records) == 0 {
		return 0, ErrRecordNotFound
	}

	count, err := s.repo.RevokeFamily(ctx, familyID, reason)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if count > 0 {
		s.events.Record(ctx, securityevents.Event{
			UserID:    records[0].UserID,
			FamilyID:  &familyID,
			EventType: securityevents.EventFamilyRevoked,
			Details:   map[string]any{"reason": string(reason), "revoked_count": count},
			IPAddress: clientIP,
			UserAgent: userAgent,
		})
	}

	return count, nil
}

// ListFamilyRecords returns every record in a family, oldest first
func (s *Service) ListFamilyRecords(ctx context.Context, familyID uuid.UUID) ([]RefreshTokenRecord, error) {
	records, err := s.repo.ListByFamilyID(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return records, nil
}

// ListActiveRecords returns a user's unrevoked, unexpired token records
func (s *Service) ListActiveRecords(ctx context.Context, userID uuid.UUID) ([]RefreshTokenRecord, error) {
	records, err := s.repo.ListActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return records, nil
}

// handleReuse contains a detected reuse: the whole family is destroyed so
// that neither the attacker's copy nor the legitimate successor survives.
// Containment is best-effort; a leftover unrevoked record is caught and
// revoked on its next use.
func (s *Service) handleReuse(ctx context.Context, record *RefreshTokenRecord, detail, clientIP, userAgent string) error {
	count, err := s.repo.RevokeFamily(ctx, record.FamilyID, RevokeReasonReuseDetected)
	if err != nil {
		slog.Error("Failed to revoke family after reuse detection",
			"family_id", record.FamilyID, "jti", record.JTI, "err", err)
	}

	s.events.Record(ctx, securityevents.Event{
		UserID:    record.UserID,
		FamilyID:  &record.FamilyID,
		EventType: securityevents.EventSuspiciousRotation,
		Details: map[string]any{
			"reason":           detail,
			"jti":              record.JTI,
			"rotation_counter": record.RotationCounter,
		},
		IPAddress: clientIP,
		UserAgent: userAgent,
	})
	s.events.Record(ctx, securityevents.Event{
		UserID:    record.UserID,
		FamilyID:  &record.FamilyID,
		EventType: securityevents.EventFamilyRevoked,
		Details: map[string]any{
			"reason":        string(RevokeReasonReuseDetected),
			"revoked_count": count,
		},
		IPAddress: clientIP,
		UserAgent: userAgent,
	})

	slog.Warn("Refresh token reuse detected, family revoked",
		"family_id", record.FamilyID, "jti", record.JTI, "revoked_count", count, "ip", clientIP)

	return ErrTokenReuseDetected
}

func (s *Service) revokeFamilyWithEvent(ctx context.Context, record *RefreshTokenRecord, reason RevokeReason, clientIP, userAgent string) {
	count, err := s.repo.RevokeFamily(ctx, record.FamilyID, reason)
	if err != nil {
		slog.Error("Failed to revoke family", "family_id", record.FamilyID, "reason", reason, "err", err)
	}

	s.events.Record(ctx, securityevents.Event{
		UserID:    record.UserID,
		FamilyID:  &record.FamilyID,
		EventType: securityevents.EventFamilyRevoked,
		Details: map[string]any{
			"reason":        string(reason),
			"revoked_count": count,
		},
		IPAddress: clientIP,
		UserAgent: userAgent,
	})

	slog.Info("Token family revoked by policy",
		"family_id", record.FamilyID, "reason", reason, "revoked_count", count)
}

func (s *Service) mintPair(record *RefreshTokenRecord) (*TokenPair, error) {
	accessToken, accessExpiresAt, err := s.issuer.IssueAccessToken(record.UserID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refreshToken, err := s.issuer.IssueRefreshToken(
		record.UserID.String(),
		record.JTI,
		record.FamilyID.String(),
		record.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: record.ExpiresAt,
		JTI:              record.JTI,
		FamilyID:         record.FamilyID,
	}, nil
}
