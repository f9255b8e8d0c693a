package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wellspring/apiserver/internal/auth"
	"github.com/wellspring/apiserver/internal/services"
	"github.com/wellspring/apiserver/types"
	"go.uber.org/zap"
)

const (
	msgSessionNotFound = "Session not found"
	msgSessionDeleted  = "Session deleted successfully"
)

// SessionHandler provides the public catalogue and the owner-scoped studio
// endpoints.
type SessionHandler struct {
	sessions *services.SessionService
	gateway  *auth.Gateway
	logger   *zap.Logger
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessions *services.SessionService, gateway *auth.Gateway, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		gateway:  gateway,
		logger:   logger,
	}
}

// SessionRouter registers session routes on the given router.
func SessionRouter(r chi.Router, handler *SessionHandler) {
	r.Get("/", handler.ListPublished)
	r.Route("/my-sessions", func(r chi.Router) {
		r.Get("/", handler.ListMine)
		r.Post("/save-draft", handler.SaveDraft)
		r.Post("/publish", handler.Publish)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", handler.GetMine)
			r.Put("/", handler.Update)
			r.Delete("/", handler.Delete)
		})
	})
}

// ListPublished returns every published session. Optional query parameters
// category, difficulty and q narrow the result.
func (h *SessionHandler) ListPublished(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	list, err := h.sessions.ListPublished(r.Context(), types.SessionFilter{
		Category:   query.Get("category"),
		Difficulty: query.Get("difficulty"),
		Query:      query.Get("q"),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, msgSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *SessionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user, r, ok := authenticate(w, r, h.gateway, h.logger)
	if !ok {
		return
	}

	list, err := h.sessions.ListByOwner(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, msgSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *SessionHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	user, r, ok := authenticate(w, r, h.gateway, h.logger)
	if !ok {
		return
	}

	session, err := h.sessions.GetByOwner(r.Context(), chi.URLParam(r, "sessionID"), user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, msgSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// SaveDraft creates or updates a session and leaves it in draft.
func (h *SessionHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, types.StatusDraft)
}

// Publish creates or updates a session and publishes it.
func (h *SessionHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, types.StatusPublished)
}

func (h *SessionHandler) upsert(w http.ResponseWriter, r *http.Request, status string) {
	user, r, ok := authenticate(w, r, h.gateway, h.logger)
	if !ok {
		return
	}

	var req SessionUpsertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	session, err := h.sessions.UpsertByOwner(r.Context(), user.ID, req.SessionID(), req.SessionPatch, status)
	if err != nil {
		writeServiceError(w, r, h.logger, err, msgSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Update merges the supplied fields into an owned session.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, r, ok := authenticate(w, r, h.gateway, h.logger)
	if !ok {
		return
	}

	var patch types.SessionPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	session, err := h.sessions.UpdateFields(r.Context(), chi.URLParam(r, "sessionID"), user.ID, patch)
	if err != nil {
		writeServiceError(w, r, h.logger, err, msgSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, r, ok := authenticate(w, r, h.gateway, h.logger)
	if !ok {
		return
	}

	if err := h.sessions.DeleteByOwner(r.Context(), chi.URLParam(r, "sessionID"), user.ID); err != nil {
		writeServiceError(w, r, h.logger, err, msgSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msgSessionDeleted})
}

// SessionUpsertRequest is the body of save-draft and publish. The id may be
// sent as "id" or "_id"; any owner or status in the body is ignored.
type SessionUpsertRequest struct {
	ID       string `json:"id"`
	LegacyID string `json:"_id"`
	types.SessionPatch
}

// SessionID returns the id the client referred to, if any.
func (r SessionUpsertRequest) SessionID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.LegacyID
}
