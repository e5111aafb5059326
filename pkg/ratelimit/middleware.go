package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Middleware applies a per-client-IP limiter to a route. It runs strictly
// before the rotation engine so request volume cannot be used to force
// races against token state.
type Middleware struct {
	limiter    Limiter
	windowSize time.Duration
}

// NewMiddleware creates a rate limiting middleware around a limiter
func NewMiddleware(limiter Limiter, windowSize time.Duration) *Middleware {
	return &Middleware{
		limiter:    limiter,
		windowSize: windowSize,
	}
}

// Handler returns the rate limiting middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		allowed, err := m.limiter.Allow(r.Context(), ip)
		if err != nil {
			// A counter-store outage degrades throttling, not availability
			slog.Error("Rate limiter check failed, admitting request", "ip", ip, "err", err)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			slog.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path, "method", r.Method)

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(m.windowSize.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"rate_limit_exceeded","message":"Too many requests. Please try again later."}`)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the client IP address from the request
func ClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "IP:port", keep only the IP
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}

	return addr
}
