package config

import (
	"time"

	"github.com/sosodev/duration"
)

// ParseDuration tries to parse a duration as ISO8601 first (e.g. "P7D"),
// then falls back to Go duration syntax (e.g. "168h")
func ParseDuration(s string) (time.Duration, error) {
	isoDuration, err := duration.Parse(s)
	if err == nil {
		return isoDuration.ToTimeDuration(), nil
	}

	return time.ParseDuration(s)
}
