package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/Aksor9/AI-GameMaster/pkg/state"
)

// Storage persists session state. The game state is stored and loaded as a
// single document; there are no partial writes.
type Storage interface {
	Ping(ctx context.Context) error
	Close() error

	// SaveGameState persists the full session state, replacing any
	// previous version.
	SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error

	// LoadGameState returns nil, nil when the session does not exist.
	LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error)

	DeleteGameState(ctx context.Context, id uuid.UUID) error
}
