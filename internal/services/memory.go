package services

import (
	"context"

	"github.com/google/uuid"
)

// Memory stores past-turn narratives and retrieves the ones most relevant
// to the current action. Retrieval failures are advisory: narration
// proceeds without history.
type Memory interface {
	// AppendTurn records one turn's narrative for later retrieval.
	AppendTurn(ctx context.Context, sessionID uuid.UUID, actorName string, narrative string) error

	// History returns up to limit past snippets relevant to the query,
	// most relevant first.
	History(ctx context.Context, sessionID uuid.UUID, query string, limit int) ([]string, error)

	Close()
}

// Embedder turns text into a dense vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// NoopMemory ignores writes and returns no history. Used when no Postgres
// URL is configured.
type NoopMemory struct{}

var _ Memory = (*NoopMemory)(nil)

func (NoopMemory) AppendTurn(ctx context.Context, sessionID uuid.UUID, actorName string, narrative string) error {
	return nil
}

func (NoopMemory) History(ctx context.Context, sessionID uuid.UUID, query string, limit int) ([]string, error) {
	return nil, nil
}

func (NoopMemory) Close() {}
