package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wellspring/apiserver/internal/auth"
	"github.com/wellspring/apiserver/internal/services"
	"github.com/wellspring/apiserver/types"
	"go.uber.org/zap"
)

// AuthHandler provides registration, login and profile endpoints.
type AuthHandler struct {
	users   *services.UserService
	tokens  *auth.TokenService
	gateway *auth.Gateway
	logger  *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(users *services.UserService, tokens *auth.TokenService, gateway *auth.Gateway, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:   users,
		tokens:  tokens,
		gateway: gateway,
		logger:  logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Get("/profile", handler.Profile)
}

// Register creates a new account and returns a bearer token for it.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	user, err := h.users.Register(r.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err, msgInvalidCredentials)
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, user)
}

// Login verifies credentials and returns a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	user, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err, msgInvalidCredentials)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, user)
}

// Profile returns the authenticated user.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, _, ok := authenticate(w, r, h.gateway, h.logger)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user types.User) {
	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, msgUnauthorized)
		return
	}
	writeJSON(w, status, AuthResponse{Token: token, User: user.Summary()})
}

type RegisterRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string            `json:"token"`
	User  types.UserSummary `json:"user"`
}
