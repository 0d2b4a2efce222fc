package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aksor9/AI-GameMaster/internal/storage"
	"github.com/Aksor9/AI-GameMaster/pkg/actor"
	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionHandlerCreate(t *testing.T) {
	store := storage.NewMockStorage()
	handler := NewSessionHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(state.PhaseNewGame), resp.Phase)

	sessionID, err := uuid.Parse(resp.SessionID)
	require.NoError(t, err)

	gs, err := store.LoadGameState(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, gs)
	assert.Equal(t, state.PhaseNewGame, gs.Phase)
}

func TestSessionHandlerCreateStorageFailure(t *testing.T) {
	store := storage.NewMockStorage()
	store.SetSaveError(errors.New("redis down"))
	handler := NewSessionHandler(store, testLogger())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSessionHandlerGet(t *testing.T) {
	store := storage.NewMockStorage()
	handler := NewSessionHandler(store, testLogger())

	sessionID := uuid.New()
	gs := state.NewGameState(sessionID)
	gs.MainPlot = &actor.MainPlot{Synopsis: "secret", FinalBoss: "The Usurper"}
	require.NoError(t, store.SaveGameState(context.Background(), sessionID, gs))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+sessionID.String(), nil))

	require.Equal(t, http.StatusOK, w.Code)

	var got state.GameState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, sessionID, got.SessionID)
	assert.Equal(t, state.PhaseNewGame, got.Phase)

	// The endpoint serves the public view only.
	assert.Nil(t, got.MainPlot)
}

func TestSessionHandlerGetUnknownSession(t *testing.T) {
	handler := NewSessionHandler(storage.NewMockStorage(), testLogger())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+uuid.New().String(), nil))

	require.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Session not found.", resp.Error)
}

func TestSessionHandlerGetBadPath(t *testing.T) {
	handler := NewSessionHandler(storage.NewMockStorage(), testLogger())

	for _, path := range []string{"/v1/sessions/not-a-uuid", "/v1/other/" + uuid.New().String()} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, "path %s", path)
	}
}

func TestSessionHandlerMethodNotAllowed(t *testing.T) {
	handler := NewSessionHandler(storage.NewMockStorage(), testLogger())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/sessions", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
