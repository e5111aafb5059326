package config

import (
	"fmt"

	"github.com/tendant/simple-token/pkg/tokenfamily"
)

// RotationConfig holds the externally supplied rotation policy. The engine
// consumes these values; it never re-derives them.
type RotationConfig struct {
	MaxFamilyAge       string `env:"ROTATION_MAX_FAMILY_AGE" env-default:"168h"`
	MaxRotations       int    `env:"ROTATION_MAX_ROTATIONS" env-default:"100"`
	RefreshTokenExpiry string `env:"REFRESH_TOKEN_EXPIRY" env-default:"24h"`
	PurgeRetention     string `env:"ROTATION_PURGE_RETENTION" env-default:"720h"`
}

// ToPolicy parses the duration fields into a rotation policy
func (r RotationConfig) ToPolicy() (tokenfamily.Policy, error) {
	maxFamilyAge, err := ParseDuration(r.MaxFamilyAge)
	if err != nil {
		return tokenfamily.Policy{}, fmt.Errorf("invalid max family age: %w", err)
	}

	refreshExpiry, err := ParseDuration(r.RefreshTokenExpiry)
	if err != nil {
		return tokenfamily.Policy{}, fmt.Errorf("invalid refresh token expiry: %w", err)
	}

	return tokenfamily.Policy{
		MaxFamilyAge:       maxFamilyAge,
		MaxRotations:       r.MaxRotations,
		RefreshTokenExpiry: refreshExpiry,
	}, nil
}
