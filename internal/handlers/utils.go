package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wellspring/apiserver/internal/auth"
	"github.com/wellspring/apiserver/internal/logging"
	"github.com/wellspring/apiserver/internal/services"
	"github.com/wellspring/apiserver/internal/store"
	"github.com/wellspring/apiserver/types"
	"go.uber.org/zap"
)

const maxJSONBodyBytes = 1 << 20

const (
	msgInvalidRequest     = "Invalid request body"
	msgUnauthorized       = "Unauthorized"
	msgUserExists         = "User already exists"
	msgInvalidCredentials = "Invalid credentials"
	msgInternal           = "Internal server error"
)

// ErrorResponse is the body of every non-2xx response. Fields is set for
// validation failures only.
type ErrorResponse struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// MessageResponse is a bare confirmation body.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message})
}

// writeServiceError maps a service or store error onto the HTTP error
// taxonomy. Unexpected errors are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, notFoundMessage string) {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: verr.Error(), Fields: verr.Fields})
	case errors.Is(err, store.ErrDuplicateEmail):
		writeError(w, http.StatusBadRequest, msgUserExists)
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, msgInvalidCredentials)
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMessage)
	default:
		logging.ForRequest(logger, r).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// authenticate resolves the caller through gateway. On failure it writes the
// response and returns false; on success the returned request carries the
// user in its context.
func authenticate(w http.ResponseWriter, r *http.Request, gateway *auth.Gateway, logger *zap.Logger) (types.User, *http.Request, bool) {
	user, err := gateway.Authenticate(r)
	if err != nil {
		writeServiceError(w, r, logger, err, msgUnauthorized)
		return types.User{}, r, false
	}
	return user, r.WithContext(auth.WithUser(r.Context(), user)), true
}
