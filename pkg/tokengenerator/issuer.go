package tokengenerator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token cookie names
const (
	ACCESS_TOKEN_NAME  = "access_token"
	REFRESH_TOKEN_NAME = "refresh_token"
)

// Token type claim values
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// DefaultAccessTokenExpiry is used when no expiry option is supplied
const DefaultAccessTokenExpiry = 15 * time.Minute

// RefreshClaims is the decoded payload of a verified refresh token
type RefreshClaims struct {
	JTI       string
	UserID    string
	FamilyID  string
	ExpiresAt time.Time
}

// CredentialIssuer mints signed access/refresh token payloads and verifies
// inbound refresh tokens. The rotation engine consumes this interface; it
// never signs or parses tokens itself.
type CredentialIssuer interface {
	// IssueAccessToken mints a short-lived access token for a user
	IssueAccessToken(userID string) (string, time.Time, error)

	// IssueRefreshToken mints a refresh token bound to a jti and family
	IssueRefreshToken(userID, jti, familyID string, expiresAt time.Time) (string, error)

	// VerifyAndDecode checks the signature and claim structure of a raw
	// refresh token. Expiry freshness is the caller's decision; only the
	// presence of the expiry claim is enforced here.
	VerifyAndDecode(rawToken string) (*RefreshClaims, error)
}

// Claims extends the registered JWT claims with family binding
type Claims struct {
	TokenType string `json:"token_type,omitempty"`
	FamilyID  string `json:"family_id,omitempty"`
	jwt.RegisteredClaims
}

// JwtCredentialIssuer implements CredentialIssuer with HS256 signing
type JwtCredentialIssuer struct {
	Secret            string
	Issuer            string
	Audience          string
	AccessTokenExpiry time.Duration
}

// IssuerOption configures a JwtCredentialIssuer
type IssuerOption func(*JwtCredentialIssuer)

// WithAccessTokenExpiry sets the access token expiry duration
func WithAccessTokenExpiry(expiry time.Duration) IssuerOption {
	return func(i *JwtCredentialIssuer) {
		if expiry > 0 {
			i.AccessTokenExpiry = expiry
		}
	}
}

// NewJwtCredentialIssuer creates a new JwtCredentialIssuer
func NewJwtCredentialIssuer(secret, issuer, audience string, opts ...IssuerOption) *JwtCredentialIssuer {
	i := &JwtCredentialIssuer{
		Secret:            secret,
		Issuer:            issuer,
		Audience:          audience,
		AccessTokenExpiry: DefaultAccessTokenExpiry,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IssueAccessToken mints a short-lived access token for a user
func (i *JwtCredentialIssuer) IssueAccessToken(userID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(i.AccessTokenExpiry)

	claims := Claims{
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Minute)),
			Issuer:    i.Issuer,
			Subject:   userID,
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{i.Audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(i.Secret))
	if err != nil {
		slog.Error("Failed to sign access token", "err", err)
		return "", time.Time{}, err
	}

	return ss, expiresAt, nil
}

// IssueRefreshToken mints a refresh token bound to a jti and family
func (i *JwtCredentialIssuer) IssueRefreshToken(userID, jti, familyID string, expiresAt time.Time) (string, error) {
	now := time.Now().UTC()

	claims := Claims{
		TokenType: TokenTypeRefresh,
		FamilyID:  familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Minute)),
			Issuer:    i.Issuer,
			Subject:   userID,
			ID:        jti,
			Audience:  jwt.ClaimStrings{i.Audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(i.Secret))
	if err != nil {
		slog.Error("Failed to sign refresh token", "err", err)
		return "", err
	}

	return ss, nil
}

// VerifyAndDecode checks the signature and claim structure of a raw refresh
// token. Freshness of the expiry claim is deliberately not checked here:
// the rotation engine decides expiry against the stored record so that an
// expired token still reaches its revocation path.
func (i *JwtCredentialIssuer) VerifyAndDecode(rawToken string) (*RefreshClaims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(i.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse refresh token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("refresh token signature invalid")
	}

	// WithoutClaimsValidation skips issuer/audience checks, so apply them here
	if claims.Issuer != i.Issuer {
		return nil, fmt.Errorf("refresh token issuer mismatch")
	}
	if !containsAudience(claims.Audience, i.Audience) {
		return nil, fmt.Errorf("refresh token audience mismatch")
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, fmt.Errorf("not a refresh token")
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("refresh token missing jti claim")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("refresh token missing subject claim")
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("refresh token missing expiry claim")
	}

	return &RefreshClaims{
		JTI:       claims.ID,
		UserID:    claims.Subject,
		FamilyID:  claims.FamilyID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
