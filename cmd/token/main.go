package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"

	"github.com/tendant/simple-token/pkg/config"
	"github.com/tendant/simple-token/pkg/ratelimit"
	"github.com/tendant/simple-token/pkg/securityevents"
	"github.com/tendant/simple-token/pkg/tokenfamily"
	"github.com/tendant/simple-token/pkg/tokenfamily/api"
	"github.com/tendant/simple-token/pkg/tokengenerator"
)

// DemoVerifierConfig stands in for the surrounding identity service, which
// owns password hashing and verification. It accepts exactly one
// env-configured user.
type DemoVerifierConfig struct {
	Username string `env:"DEMO_USERNAME" env-default:"admin@example.com"`
	Password string `env:"DEMO_PASSWORD" env-default:"password123"`
	UserID   string `env:"DEMO_USER_ID" env-default:"6fa459ea-ee8a-3ca4-894e-db77e160355e"`
}

type Config struct {
	DbConfig        config.DatabaseConfig
	JwtConfig       config.JWTConfig
	RotationConfig  config.RotationConfig
	RateLimitConfig config.RateLimitConfig
	VerifierConfig  DemoVerifierConfig
	AppConfig       app.AppConfig
}

type demoVerifier struct {
	username string
	password string
	userID   uuid.UUID
}

func (v *demoVerifier) Verify(ctx context.Context, username, password string) (uuid.UUID, error) {
	if username != v.username || password != v.password {
		return uuid.Nil, fmt.Errorf("invalid credentials")
	}
	return v.userID, nil
}

func main() {
	cfg := Config{}
	cleanenv.ReadEnv(&cfg)

	server := app.DefaultApp()
	app.RegisterHealthzRoutes(server.R)

	dbConfig := cfg.DbConfig.ToDbConfig()
	pool, err := dbutils.NewDbPool(context.Background(), dbConfig)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "err", err)
		os.Exit(-1)
	}

	// Security event recording: durable store behind an async dispatcher so
	// audit writes never block a refresh response
	eventStore := securityevents.NewPostgresStore(pool)
	dispatcher := securityevents.NewDispatcher(eventStore, 1024)
	defer dispatcher.Close()

	// Credential issuer
	accessExpiry, err := cfg.JwtConfig.ParseAccessTokenExpiry()
	if err != nil {
		slog.Error("Invalid access token expiry", "err", err)
		os.Exit(-1)
	}
	issuer := tokengenerator.NewJwtCredentialIssuer(
		cfg.JwtConfig.Secret,
		cfg.JwtConfig.Issuer,
		cfg.JwtConfig.Audience,
		tokengenerator.WithAccessTokenExpiry(accessExpiry),
	)

	// Rotation engine
	policy, err := cfg.RotationConfig.ToPolicy()
	if err != nil {
		slog.Error("Invalid rotation policy", "err", err)
		os.Exit(-1)
	}
	tokenRepo := tokenfamily.NewPostgresRepository(pool)
	rotationService := tokenfamily.NewService(tokenRepo, issuer, dispatcher,
		tokenfamily.WithPolicy(policy))

	// Refresh endpoint rate limiter, per client IP. A Redis address makes
	// the window counters shared across instances.
	window, err := cfg.RateLimitConfig.ParseWindow()
	if err != nil {
		slog.Error("Invalid rate limit window", "err", err)
		os.Exit(-1)
	}
	var limiter ratelimit.Limiter
	if cfg.RateLimitConfig.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimitConfig.RedisAddr,
			Password: cfg.RateLimitConfig.RedisPassword,
			DB:       cfg.RateLimitConfig.RedisDB,
		})
		limiter = ratelimit.NewRedisWindowLimiter(redisClient, window, cfg.RateLimitConfig.MaxRequests)
		slog.Info("Using Redis rate limiter", "addr", cfg.RateLimitConfig.RedisAddr)
	} else {
		limiter = ratelimit.NewFixedWindowLimiter(window, cfg.RateLimitConfig.MaxRequests)
		slog.Info("Using in-memory rate limiter; not safe across multiple instances")
	}
	rateLimitMiddleware := ratelimit.NewMiddleware(limiter, window)

	// Cookies and protected-route verification
	cookieSetter := &tokengenerator.BaseCookieSetter{
		Path:     "/",
		HttpOnly: cfg.JwtConfig.CookieHttpOnly,
		Secure:   cfg.JwtConfig.CookieSecure,
		SameSite: cfg.JwtConfig.CookieSameSite(),
	}
	tokenAuth := jwtauth.New("HS256", []byte(cfg.JwtConfig.Secret), nil)

	demoUserID, err := uuid.Parse(cfg.VerifierConfig.UserID)
	if err != nil {
		slog.Error("Invalid demo user id", "err", err)
		os.Exit(-1)
	}
	verifier := &demoVerifier{
		username: cfg.VerifierConfig.Username,
		password: cfg.VerifierConfig.Password,
		userID:   demoUserID,
	}

	handle := api.NewHandle(rotationService, verifier, dispatcher, eventStore, cookieSetter)
	server.R.Route("/api/v1", func(r chi.Router) {
		handle.Routes(r, rateLimitMiddleware.Handler, tokenAuth)
	})

	// Background purge of long-expired, already-revoked records
	retention, err := config.ParseDuration(cfg.RotationConfig.PurgeRetention)
	if err != nil {
		slog.Error("Invalid purge retention", "err", err)
		os.Exit(-1)
	}
	reaper := tokenfamily.NewReaper(tokenRepo, retention)
	reaper.Start()
	defer reaper.Stop()

	server.Run()
}
