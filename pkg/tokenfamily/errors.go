package tokenfamily

import "errors"

// Errors returned by the rotation service. Handlers map these onto HTTP
// status codes with errors.Is.
var (
	// ErrRecordNotFound is returned by repositories when no record matches
	ErrRecordNotFound = errors.New("token record not found")

	// ErrInvalidToken covers malformed, unsigned, or unknown-jti tokens
	ErrInvalidToken = errors.New("invalid refresh token")

	// ErrExpiredToken means the presented token's own validity window passed
	ErrExpiredToken = errors.New("refresh token expired")

	// ErrTokenReuseDetected means an already-rotated token was presented
	// again. The whole family is revoked before this is returned.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")

	// ErrReauthRequired means a policy ceiling (family age or rotation
	// count) was reached and the family was revoked.
	ErrReauthRequired = errors.New("re-authentication required")

	// ErrStorage wraps repository failures. The engine never issues tokens
	// when the outcome of the conditional revoke is unknown.
	ErrStorage = errors.New("token storage failure")
)
