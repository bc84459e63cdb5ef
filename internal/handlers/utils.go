package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/memoist-io/idserver/types"
)

type contextKey string

const contextUserKey contextKey = "user"

// ErrorResponse is the uniform error body shape.
type ErrorResponse struct {
	Error string `json:"error"`
}

func currentUserFromContext(ctx context.Context) (types.User, error) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok {
		return types.User{}, errors.New("no authenticated user in context")
	}
	return user, nil
}

// parseListQuery reads the is_active/skip/limit query parameters.
// Absent values select the service defaults; unparseable values are a
// bad request.
func parseListQuery(r *http.Request) (isActive *bool, skip, limit int, err error) {
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("is_active")); raw != "" {
		value, parseErr := strconv.ParseBool(raw)
		if parseErr != nil {
			return nil, 0, 0, errors.New("invalid is_active value")
		}
		isActive = &value
	}

	skip = 0
	if raw := strings.TrimSpace(query.Get("skip")); raw != "" {
		value, parseErr := strconv.Atoi(raw)
		if parseErr != nil || value < 0 {
			return nil, 0, 0, errors.New("invalid skip value")
		}
		skip = value
	}

	limit = 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		value, parseErr := strconv.Atoi(raw)
		if parseErr != nil || value < 1 {
			return nil, 0, 0, errors.New("invalid limit value")
		}
		limit = value
	}

	return isActive, skip, limit, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
