package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/newtube/newtube/internal/database"
	"github.com/newtube/newtube/internal/httputil"
	"github.com/newtube/newtube/internal/validate"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const userIDKey contextKey = "userID"

const refreshCookieName = "refresh_token"

type Handler struct {
	db            database.DBTX
	jwtSecret     string
	secureCookies bool
}

func NewHandler(db database.DBTX, jwtSecret string, secureCookies bool) *Handler {
	return &Handler{db: db, jwtSecret: jwtSecret, secureCookies: secureCookies}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
}

type meResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	ImageURL  *string   `json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Password == "" || req.Name == "" {
		httputil.WriteError(w, http.StatusBadRequest, "email, password, and name are required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if msg := validate.Name(req.Name); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	// bcrypt ignores input past 72 bytes.
	if len(req.Password) < 8 || len(req.Password) > 72 {
		httputil.WriteError(w, http.StatusBadRequest, "password must be between 8 and 72 characters")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	var userID string
	err = h.db.QueryRow(r.Context(),
		"INSERT INTO users (email, password, name) VALUES ($1, $2, $3) RETURNING id",
		req.Email, string(hashed), req.Name,
	).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			httputil.WriteError(w, http.StatusConflict, "could not create account")
			return
		}
		slog.Error("register: insert user", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.respondWithTokens(w, r, http.StatusCreated, userID)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		httputil.WriteError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	var userID, hashed string
	err := h.db.QueryRow(r.Context(),
		"SELECT id, password FROM users WHERE email = $1", req.Email,
	).Scan(&userID, &hashed)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			slog.Error("login: lookup user", "error", err)
		}
		httputil.WriteError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(req.Password)); err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	h.respondWithTokens(w, r, http.StatusOK, userID)
}

// Refresh rotates the refresh token: the presented one is revoked and a new
// pair is issued.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "refresh token not found")
		return
	}

	claims, err := ValidateToken(h.jwtSecret, cookie.Value)
	if err != nil || claims.TokenType != tokenTypeRefresh || claims.ID == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	var revoked bool
	var expiresAt time.Time
	err = h.db.QueryRow(r.Context(),
		"SELECT revoked, expires_at FROM refresh_tokens WHERE token_id = $1 AND user_id = $2",
		claims.ID, claims.UserID,
	).Scan(&revoked, &expiresAt)
	if err != nil || revoked || time.Now().After(expiresAt) {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	if err := h.revokeRefreshToken(r.Context(), claims.ID); err != nil {
		slog.Error("refresh: revoke token", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to revoke refresh token")
		return
	}

	h.respondWithTokens(w, r, http.StatusOK, claims.UserID)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		if claims, err := ValidateToken(h.jwtSecret, cookie.Value); err == nil && claims.TokenType == tokenTypeRefresh && claims.ID != "" {
			if err := h.revokeRefreshToken(r.Context(), claims.ID); err != nil {
				slog.Warn("logout: revoke token", "error", err)
			}
		}
	}
	h.setRefreshCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var resp meResponse
	err := h.db.QueryRow(r.Context(),
		"SELECT id, email, name, image_url, created_at FROM users WHERE id = $1", userID,
	).Scan(&resp.ID, &resp.Email, &resp.Name, &resp.ImageURL, &resp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httputil.WriteError(w, http.StatusNotFound, "user not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "could not fetch user")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Middleware rejects requests without a valid access token.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := ResolveViewer(h.jwtSecret, r.Header.Get("Authorization"))
		if err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, unauthorizedMessage(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
	})
}

// Optional lets anonymous requests through with an empty viewer. A header
// that is present but invalid is still a 401 so clients know to refresh.
func (h *Handler) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := ResolveViewer(h.jwtSecret, header)
		if err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, unauthorizedMessage(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
	})
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, or "" for anonymous.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrMalformedAuth), errors.Is(err, ErrWrongTokenUse):
		return err.Error()
	default:
		return "invalid token"
	}
}

func (h *Handler) respondWithTokens(w http.ResponseWriter, r *http.Request, status int, userID string) {
	tokenID := uuid.NewString()
	expiresAt := time.Now().Add(RefreshTokenDuration)
	if _, err := h.db.Exec(r.Context(),
		"INSERT INTO refresh_tokens (token_id, user_id, expires_at) VALUES ($1, $2, $3)",
		tokenID, userID, expiresAt,
	); err != nil {
		slog.Error("store refresh token", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	accessToken, err := GenerateAccessToken(h.jwtSecret, userID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}
	refreshToken, err := GenerateRefreshToken(h.jwtSecret, userID, tokenID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	h.setRefreshCookie(w, refreshToken, int(RefreshTokenDuration/time.Second))
	httputil.WriteJSON(w, status, tokenResponse{AccessToken: accessToken, UserID: userID})
}

func (h *Handler) revokeRefreshToken(ctx context.Context, tokenID string) error {
	_, err := h.db.Exec(ctx, "UPDATE refresh_tokens SET revoked = true, revoked_at = now() WHERE token_id = $1", tokenID)
	return err
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/api/auth",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	})
}
