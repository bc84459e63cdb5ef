package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/memoist-io/idserver/internal/services"
	"github.com/memoist-io/idserver/internal/storage"
	"github.com/memoist-io/idserver/internal/store"
)

// AuthHandler provides the account and session endpoints.
type AuthHandler struct {
	userService *services.UserService
	avatars     *storage.AvatarStore
}

// NewAuthHandler constructs an AuthHandler. avatars may be nil, which
// disables the avatar endpoints.
func NewAuthHandler(userService *services.UserService, avatars *storage.AvatarStore) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		avatars:     avatars,
	}
}

// AuthRouter registers the account routes on the given router.
// Register, login and refresh are public; everything else requires a
// bearer token.
func AuthRouter(r chi.Router, userService *services.UserService, avatars *storage.AvatarStore) {
	handler := NewAuthHandler(userService, avatars)

	r.Post("/", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)

	r.Group(func(r chi.Router) {
		r.Use(handler.RequireAuth)
		r.Get("/", handler.ListUsers)
		r.Get("/stats", handler.Stats)
		r.Get("/me", handler.Me)
		r.Route("/{userID}", func(r chi.Router) {
			r.Get("/", handler.GetUser)
			r.Put("/", handler.UpdateUser)
			r.Delete("/", handler.DeleteUser)
			r.Put("/avatar", handler.UploadAvatar)
			r.Get("/avatar", handler.GetAvatar)
		})
	})
}

// RequireAuth enforces bearer-token authentication and injects the
// resolved account into the request context. Every failure path
// produces the same generic 401.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		user, err := h.userService.AuthenticateToken(r.Context(), tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		ctx := context.WithValue(r.Context(), contextUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type RegisterRequest struct {
	Email    string  `json:"email"`
	Username string  `json:"username"`
	FullName *string `json:"full_name"`
	Password string  `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Register creates a new user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	user, err := h.userService.Register(r.Context(), req.Email, req.Username, req.FullName, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "user already exists")
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "missing required fields")
		default:
			writeError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and returns an access/refresh token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "incorrect username or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	pair, err := h.userService.IssueSessionPair(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Refresh exchanges a refresh token for a fresh token pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "missing refresh token")
		return
	}

	pair, err := h.userService.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotRefreshToken):
			writeError(w, http.StatusBadRequest, "invalid refresh token")
		case errors.Is(err, services.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			writeError(w, http.StatusInternalServerError, "failed to refresh session")
		}
		return
	}

	writeJSON(w, http.StatusOK, pair)
}
