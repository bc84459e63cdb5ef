package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/memoist-io/idserver/internal/services"
	"github.com/memoist-io/idserver/internal/store"
	"github.com/memoist-io/idserver/types"
)

const maxAvatarBytes = 8 << 20

type UserListResponse struct {
	Users []types.User `json:"users"`
	Total int          `json:"total"`
	Skip  int          `json:"skip"`
	Limit int          `json:"limit"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// Me returns the authenticated caller's own account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := currentUserFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetUser returns one account by id.
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid user ID format")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to fetch user")
		}
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ListUsers returns a page of accounts, newest first, with the total
// size of the filtered set.
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	isActive, skip, limit, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, total, err := h.userService.List(r.Context(), isActive, skip, limit)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid pagination")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	if limit <= 0 {
		limit = services.DefaultListLimit
	}
	if limit > services.MaxListLimit {
		limit = services.MaxListLimit
	}
	writeJSON(w, http.StatusOK, UserListResponse{
		Users: users,
		Total: total,
		Skip:  skip,
		Limit: limit,
	})
}

// UpdateUser applies a partial update to one account.
func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req types.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.Update(r.Context(), chi.URLParam(r, "userID"), req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid user ID format")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "email or username already exists")
		default:
			writeError(w, http.StatusInternalServerError, "failed to update user")
		}
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser removes one account permanently.
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.userService.Delete(r.Context(), userID); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid user ID format")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to delete user")
		}
		return
	}

	if h.avatars != nil {
		_ = h.avatars.Delete(r.Context(), userID)
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

// Stats returns aggregate account counts.
func (h *AuthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.userService.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// UploadAvatar stores a profile image for one account in object
// storage, replacing any previous image.
func (h *AuthHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		writeError(w, http.StatusServiceUnavailable, "avatar storage is not configured")
		return
	}

	user, err := h.userService.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid user ID format")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to fetch user")
		}
		return
	}

	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing avatar file")
		return
	}
	defer file.Close()

	if header.Size > maxAvatarBytes {
		writeError(w, http.StatusBadRequest, "avatar too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if err := h.avatars.Put(r.Context(), user.ID.String(), file, header.Size, contentType); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store avatar")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetAvatar streams the stored profile image of one account.
func (h *AuthHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		writeError(w, http.StatusServiceUnavailable, "avatar storage is not configured")
		return
	}

	user, err := h.userService.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid user ID format")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to fetch user")
		}
		return
	}

	object, err := h.avatars.Get(r.Context(), user.ID.String())
	if err != nil {
		writeError(w, http.StatusNotFound, "avatar not found")
		return
	}
	defer object.Close()

	// Object backends may defer the existence check to the first read,
	// so buffer before committing a status code.
	data, err := io.ReadAll(io.LimitReader(object, maxAvatarBytes))
	if err != nil {
		writeError(w, http.StatusNotFound, "avatar not found")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
