package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/tendant/simple-token/pkg/ratelimit"
	"github.com/tendant/simple-token/pkg/securityevents"
	"github.com/tendant/simple-token/pkg/tokenfamily"
	tg "github.com/tendant/simple-token/pkg/tokengenerator"
)

// CredentialVerifier checks a user's login credentials. Password hashing
// and verification live in the surrounding identity layer; this handler
// only consumes the result.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (uuid.UUID, error)
}

// Handle handles HTTP requests for token rotation and family management
type Handle struct {
	service  *tokenfamily.Service
	verifier CredentialVerifier
	recorder securityevents.Recorder
	events   securityevents.Store
	cookies  tg.CookieSetter
}

// NewHandle creates a new token API handler
func NewHandle(service *tokenfamily.Service, verifier CredentialVerifier, recorder securityevents.Recorder, events securityevents.Store, cookies tg.CookieSetter) *Handle {
	return &Handle{
		service:  service,
		verifier: verifier,
		recorder: recorder,
		events:   events,
		cookies:  cookies,
	}
}

// Routes registers the token API routes. The rate limit middleware guards
// the refresh endpoint and runs before any token state is consulted;
// tokenAuth protects the family-management group.
func (h *Handle) Routes(r chi.Router, rateLimitMiddleware func(http.Handler) http.Handler, tokenAuth *jwtauth.JWTAuth) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)
	r.With(rateLimitMiddleware).Post("/token/refresh", h.Refresh)

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator(tokenAuth))
		r.Get("/families", h.ListFamilies)
		r.Post("/families/revoke", h.RevokeFamily)
		r.Get("/security-events", h.ListSecurityEvents)
	})
}

// LoginRequest is the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries a new access token; the refresh token travels only
// in the http-only cookie
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Login handles POST /auth/login - verify credentials, create a new token
// family, and return the initial token pair
func (h *Handle) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "invalid_request", Message: "Unable to parse request body"})
		return
	}

	ip := ratelimit.ClientIP(r)
	userAgent := r.UserAgent()

	userID, err := h.verifier.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		slog.Warn("Login failed", "username", req.Username, "ip", ip)
		h.recorder.Record(r.Context(), securityevents.Event{
			UserID:    userID,
			EventType: securityevents.EventLoginFailed,
			Details:   map[string]any{"username": req.Username},
			IPAddress: ip,
			UserAgent: userAgent,
		})
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "invalid_credentials"})
		return
	}

	pair, err := h.service.Login(r.Context(), userID, ip, userAgent)
	if err != nil {
		slog.Error("Failed to create token family", "user_id", userID, "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "internal_error"})
		return
	}

	h.cookies.SetCookie(w, tg.REFRESH_TOKEN_NAME, pair.RefreshToken, pair.RefreshExpiresAt)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, TokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   pair.AccessExpiresAt,
	})
}

// Refresh handles POST /token/refresh - rotate the refresh token presented
// in the http-only cookie
func (h *Handle) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(tg.REFRESH_TOKEN_NAME)
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "invalid_token", Message: "No refresh token cookie"})
		return
	}

	pair, err := h.service.Refresh(r.Context(), cookie.Value, ratelimit.ClientIP(r), r.UserAgent())
	if err != nil {
		h.respondRefreshError(w, r, err)
		return
	}

	h.cookies.SetCookie(w, tg.REFRESH_TOKEN_NAME, pair.RefreshToken, pair.RefreshExpiresAt)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, TokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   pair.AccessExpiresAt,
	})
}

// respondRefreshError maps engine errors onto status codes. Every 401-class
// failure terminates the session: the refresh cookie is cleared and the
// client must authenticate from scratch.
func (h *Handle) respondRefreshError(w http.ResponseWriter, r *http.Request, err error) {
	var code string
	switch {
	case errors.Is(err, tokenfamily.ErrTokenReuseDetected):
		code = "token_reuse_detected"
	case errors.Is(err, tokenfamily.ErrReauthRequired):
		code = "reauth_required"
	case errors.Is(err, tokenfamily.ErrExpiredToken):
		code = "expired"
	case errors.Is(err, tokenfamily.ErrInvalidToken):
		code = "invalid_token"
	default:
		slog.Error("Refresh failed", "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "internal_error"})
		return
	}

	h.cookies.ClearCookie(w, tg.REFRESH_TOKEN_NAME)
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, ErrorResponse{Error: code})
}

// Logout handles POST /auth/logout - revoke the presented token's family
// and clear the cookie
func (h *Handle) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(tg.REFRESH_TOKEN_NAME)
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "invalid_token", Message: "No refresh token cookie"})
		return
	}

	// Clear the cookie regardless of the outcome below
	h.cookies.ClearCookie(w, tg.REFRESH_TOKEN_NAME)

	err = h.service.Logout(r.Context(), cookie.Value, ratelimit.ClientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, tokenfamily.ErrInvalidToken) {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, ErrorResponse{Error: "invalid_token"})
			return
		}
		slog.Error("Logout failed", "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "internal_error"})
		return
	}

	render.JSON(w, r, map[string]string{"message": "Logged out"})
}

// TokenRecordSummary is a simplified token record view for listing
type TokenRecordSummary struct {
	JTI             string    `json:"jti"`
	FamilyID        uuid.UUID `json:"family_id"`
	ParentJTI       *string   `json:"parent_jti,omitempty"`
	RotationCounter int       `json:"rotation_counter"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// FamilyListResponse is the response for listing active token records
type FamilyListResponse struct {
	Records []TokenRecordSummary `json:"records"`
	Total   int                  `json:"total"`
}

// ListFamilies handles GET /families - list the authenticated user's
// active token records
func (h *Handle) ListFamilies(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "unauthorized"})
		return
	}

	records, err := h.service.ListActiveRecords(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list token records", "user_id", userID, "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "internal_error"})
		return
	}

	summaries := make([]TokenRecordSummary, 0, len(records))
	if err := copier.Copy(&summaries, &records); err != nil {
		slog.Error("Failed to map token records", "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "internal_error"})
		return
	}

	render.JSON(w, r, FamilyListResponse{Records: summaries, Total: len(summaries)})
}

// RevokeFamilyRequest is the request to force-revoke a token family
type RevokeFamilyRequest struct {
	FamilyID uuid.UUID `json:"family_id"`
}

// RevokeFamily handles POST /families/revoke - force-revoke one of the
// authenticated user's token families
func (h *Handle) RevokeFamily(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req RevokeFamilyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "invalid_request", Message: "Unable to parse request body"})
		return
	}

	records, err := h.service.ListFamilyRecords(r.Context(), req.FamilyID)
	if err != nil {
		slog.Error("Failed to load token family", "family_id", req.FamilyID, "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "internal_error"})
		return
	}
	if len(records) == 0 {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{Error: "family_not_found"})
		return
	}

	if records[0].UserID != userID {
		slog.Warn("Attempted to revoke family of different user",
			"requester", userID, "owner", records[0].UserID, "family_id", req.FamilyID)
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, ErrorResponse{Error: "forbidden"})
		return
	}

	count, err := h.service.RevokeFamily(r.Context(), req.FamilyID, tokenfamily.RevokeReasonAdmin, ratelimit.ClientIP(r), r.UserAgent())
	if err != nil && !errors.Is(err, tokenfamily.ErrRecordNotFound) {
		slog.Error("Failed to revoke family", "family_id", req.FamilyID, "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "internal_error"})
		return
	}

	render.JSON(w, r, map[string]any{"message": "Family revoked", "revoked_count": count})
}

// ListSecurityEvents handles GET /security-events - the authenticated
// user's recent security events, newest first
func (h *Handle) ListSecurityEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "unauthorized"})
		return
	}

	events, err := h.events.ListByUserID(r.Context(), userID, 50)
	if err != nil {
		slog.Error("Failed to list security events", "user_id", userID, "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "internal_error"})
		return
	}

	render.JSON(w, r, map[string]any{"events": events, "total": len(events)})
}

// authenticatedUserID extracts the user id from the verified JWT claims
func authenticatedUserID(r *http.Request) (uuid.UUID, bool) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return uuid.Nil, false
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, false
	}

	return userID, true
}
