package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Aksor9/AI-GameMaster/internal/storage"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

// SessionHandler creates sessions and serves their public state.
//
//	POST /v1/sessions
//	GET  /v1/sessions/{sessionID}
type SessionHandler struct {
	storage storage.Storage
	logger  *slog.Logger
}

func NewSessionHandler(store storage.Storage, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		storage: store,
		logger:  logger,
	}
}

type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	Phase     string `json:"game_phase"`
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.get(w, r)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed.")
	}
}

func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.New()
	gs := state.NewGameState(sessionID)

	if err := h.storage.SaveGameState(r.Context(), sessionID, gs); err != nil {
		h.logger.Error("Failed to create session", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to create session.")
		return
	}

	h.logger.Info("Session created", "session_id", sessionID.String())

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(CreateSessionResponse{
		SessionID: sessionID.String(),
		Phase:     string(gs.Phase),
	}); err != nil {
		h.logger.Error("Failed to encode session response", "error", err)
	}
}

func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromPath(r.URL.Path, "sessions")
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid path. Expected /v1/sessions/{sessionID}")
		return
	}

	gs, err := h.storage.LoadGameState(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load session", "error", err, "session_id", sessionID.String())
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load session.")
		return
	}
	if gs == nil {
		writeError(w, h.logger, http.StatusNotFound, "Session not found.")
		return
	}

	if err := json.NewEncoder(w).Encode(gs.PublicView()); err != nil {
		h.logger.Error("Failed to encode session state", "error", err)
	}
}

// sessionIDFromPath parses /v1/<segment>/{uuid} style paths.
func sessionIDFromPath(path, segment string) (uuid.UUID, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" || parts[1] != segment {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: msg}); err != nil {
		logger.Error("Failed to encode error response", "error", err)
	}
}
