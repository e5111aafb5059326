// Package main runs the token rotation service without a database using
// in-memory repositories. Useful for:
// - Quick development and testing
// - Demo/prototype environments
// - Learning the API without database setup
//
// Note: All state is lost when the server stops. For production, use
// cmd/token with PostgreSQL.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/tendant/chi-demo/app"

	"github.com/tendant/simple-token/pkg/ratelimit"
	"github.com/tendant/simple-token/pkg/securityevents"
	"github.com/tendant/simple-token/pkg/tokenfamily"
	"github.com/tendant/simple-token/pkg/tokenfamily/api"
	"github.com/tendant/simple-token/pkg/tokengenerator"
)

const (
	jwtSecret = "inmem-dev-secret-change-in-production"
	issuer    = "inmem-token"
	audience  = "inmem-token"

	demoUsername = "admin@example.com"
	demoPassword = "password123"
)

type staticVerifier struct {
	username string
	password string
	userID   uuid.UUID
}

func (v *staticVerifier) Verify(ctx context.Context, username, password string) (uuid.UUID, error) {
	if username != v.username || password != v.password {
		return uuid.Nil, fmt.Errorf("invalid credentials")
	}
	return v.userID, nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting In-Memory Token Rotation Service (no database required)")
	slog.Info(strings.Repeat("=", 60))

	tokenRepo := tokenfamily.NewInMemoryTokenRepository()
	eventStore := securityevents.NewInMemoryStore()
	dispatcher := securityevents.NewDispatcher(eventStore, 256)
	defer dispatcher.Close()

	credentialIssuer := tokengenerator.NewJwtCredentialIssuer(jwtSecret, issuer, audience)
	rotationService := tokenfamily.NewService(tokenRepo, credentialIssuer, dispatcher)

	limiter := ratelimit.NewFixedWindowLimiter(15*time.Minute, 30)
	rateLimitMiddleware := ratelimit.NewMiddleware(limiter, 15*time.Minute)

	cookieSetter := tokengenerator.NewCookieSetter(true, false)
	tokenAuth := jwtauth.New("HS256", []byte(jwtSecret), nil)

	verifier := &staticVerifier{
		username: demoUsername,
		password: demoPassword,
		userID:   uuid.New(),
	}

	handle := api.NewHandle(rotationService, verifier, dispatcher, eventStore, cookieSetter)

	server := app.NewApp(app.WithPort(4000))
	app.RegisterHealthzRoutes(server.R)
	server.R.Route("/api/v1", func(r chi.Router) {
		handle.Routes(r, rateLimitMiddleware.Handler, tokenAuth)
	})

	slog.Info(strings.Repeat("=", 60))
	slog.Info("In-Memory Token Rotation Service Ready")
	slog.Info("")
	slog.Info("Test credentials:")
	slog.Info("  Username: " + demoUsername)
	slog.Info("  Password: " + demoPassword)
	slog.Info("")
	slog.Info("API Endpoints:")
	slog.Info("  POST /api/v1/auth/login       - Login, sets refresh cookie")
	slog.Info("  POST /api/v1/token/refresh    - Rotate refresh token (rate limited)")
	slog.Info("  POST /api/v1/auth/logout      - Revoke current family")
	slog.Info("  GET  /api/v1/families         - List token families (auth required)")
	slog.Info("  POST /api/v1/families/revoke  - Revoke a family (auth required)")
	slog.Info("  GET  /api/v1/security-events  - Recent security events (auth required)")
	slog.Info(strings.Repeat("=", 60))

	server.Run()
}
