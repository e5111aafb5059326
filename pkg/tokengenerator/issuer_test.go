package tokengenerator

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(opts ...IssuerOption) *JwtCredentialIssuer {
	return NewJwtCredentialIssuer("test-secret", "test-issuer", "test-audience", opts...)
}

func TestIssueAndVerifyRefreshToken(t *testing.T) {
	issuer := newTestIssuer()
	userID := uuid.New().String()
	jti := uuid.New().String()
	familyID := uuid.New().String()
	expiresAt := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)

	raw, err := issuer.IssueRefreshToken(userID, jti, familyID, expiresAt)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := issuer.VerifyAndDecode(raw)
	require.NoError(t, err)
	assert.Equal(t, jti, claims.JTI)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, familyID, claims.FamilyID)
	assert.True(t, expiresAt.Equal(claims.ExpiresAt))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := newTestIssuer()
	other := NewJwtCredentialIssuer("other-secret", "test-issuer", "test-audience")

	raw, err := other.IssueRefreshToken(uuid.New().String(), uuid.New().String(), uuid.New().String(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = issuer.VerifyAndDecode(raw)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	issuer := newTestIssuer()
	other := NewJwtCredentialIssuer("test-secret", "other-issuer", "test-audience")

	raw, err := other.IssueRefreshToken(uuid.New().String(), uuid.New().String(), uuid.New().String(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = issuer.VerifyAndDecode(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issuer")
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	issuer := newTestIssuer()
	other := NewJwtCredentialIssuer("test-secret", "test-issuer", "other-audience")

	raw, err := other.IssueRefreshToken(uuid.New().String(), uuid.New().String(), uuid.New().String(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = issuer.VerifyAndDecode(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audience")
}

func TestVerifyRejectsAccessToken(t *testing.T) {
	issuer := newTestIssuer()

	raw, _, err := issuer.IssueAccessToken(uuid.New().String())
	require.NoError(t, err)

	_, err = issuer.VerifyAndDecode(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a refresh token")
}

func TestVerifyAcceptsExpiredToken(t *testing.T) {
	issuer := newTestIssuer()
	jti := uuid.New().String()

	// expiry freshness is the rotation engine's decision against the stored
	// record, so decoding an expired token must still succeed
	raw, err := issuer.IssueRefreshToken(uuid.New().String(), jti, uuid.New().String(), time.Now().Add(-time.Hour))
	require.NoError(t, err)

	claims, err := issuer.VerifyAndDecode(raw)
	require.NoError(t, err)
	assert.Equal(t, jti, claims.JTI)
	assert.True(t, claims.ExpiresAt.Before(time.Now()))
}

func TestVerifyRejectsMissingClaims(t *testing.T) {
	issuer := newTestIssuer()

	mint := func(mutate func(*Claims)) string {
		claims := &Claims{
			TokenType: TokenTypeRefresh,
			FamilyID:  uuid.New().String(),
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				Issuer:    "test-issuer",
				Subject:   uuid.New().String(),
				ID:        uuid.New().String(),
				Audience:  jwt.ClaimStrings{"test-audience"},
			},
		}
		mutate(claims)
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		raw, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)
		return raw
	}

	tests := []struct {
		name   string
		mutate func(*Claims)
	}{
		{"missing jti", func(c *Claims) { c.ID = "" }},
		{"missing subject", func(c *Claims) { c.Subject = "" }},
		{"missing expiry", func(c *Claims) { c.ExpiresAt = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.VerifyAndDecode(mint(tt.mutate))
			assert.Error(t, err)
		})
	}
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	issuer := newTestIssuer()

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": uuid.New().String(),
		"jti": uuid.New().String(),
	})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.VerifyAndDecode(raw)
	assert.Error(t, err)
}

func TestIssueAccessToken(t *testing.T) {
	issuer := newTestIssuer(WithAccessTokenExpiry(5 * time.Minute))
	userID := uuid.New().String()

	raw, expiresAt, err := issuer.IssueAccessToken(userID)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, 5*time.Second)

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.Equal(t, userID, claims.Subject)
}
