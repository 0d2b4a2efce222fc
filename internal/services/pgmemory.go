package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// PostgresMemory persists turn narratives in a game_turns table with a
// pgvector embedding column and retrieves history by cosine similarity.
//
// All methods are safe for concurrent use.
type PostgresMemory struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   *slog.Logger
}

var _ Memory = (*PostgresMemory)(nil)

// NewPostgresMemory connects to Postgres and ensures the schema exists.
// The embedding column dimension follows the configured embedder.
func NewPostgresMemory(ctx context.Context, postgresURL string, embedder Embedder, logger *slog.Logger) (*PostgresMemory, error) {
	pool, err := pgxpool.New(ctx, postgresURL)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: connect: %w", err)
	}

	m := &PostgresMemory{
		pool:     pool,
		embedder: embedder,
		logger:   logger,
	}
	if err := m.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return m, nil
}

func (m *PostgresMemory) ensureSchema(ctx context.Context) error {
	dims := m.embedder.Dimensions()
	if dims <= 0 {
		return fmt.Errorf("postgres memory: embedder reports no dimensions")
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS game_turns (
			id         UUID PRIMARY KEY,
			session_id UUID NOT NULL,
			actor_name TEXT NOT NULL,
			narrative  TEXT NOT NULL,
			embedding  vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, dims),
		`CREATE INDEX IF NOT EXISTS game_turns_session_idx ON game_turns (session_id)`,
		`CREATE INDEX IF NOT EXISTS game_turns_embedding_idx ON game_turns
			USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := m.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres memory: ensure schema: %w", err)
		}
	}
	return nil
}

// AppendTurn embeds the narrative and inserts it for the session.
func (m *PostgresMemory) AppendTurn(ctx context.Context, sessionID uuid.UUID, actorName string, narrative string) error {
	vec, err := m.embedder.Embed(ctx, narrative)
	if err != nil {
		return fmt.Errorf("postgres memory: embed turn: %w", err)
	}

	const q = `
		INSERT INTO game_turns (id, session_id, actor_name, narrative, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = m.pool.Exec(ctx, q,
		uuid.New(),
		sessionID,
		actorName,
		narrative,
		pgvector.NewVector(vec),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres memory: append turn: %w", err)
	}
	return nil
}

// History returns the session's past narratives closest to the query by
// cosine distance, most similar first.
func (m *PostgresMemory) History(ctx context.Context, sessionID uuid.UUID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: embed query: %w", err)
	}

	const q = `
		SELECT narrative, embedding <=> $1 AS distance
		FROM   game_turns
		WHERE  session_id = $2
		ORDER  BY distance
		LIMIT  $3`

	rows, err := m.pool.Query(ctx, q, pgvector.NewVector(vec), sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var (
			narrative string
			distance  float64
		)
		if err := row.Scan(&narrative, &distance); err != nil {
			return "", err
		}
		return narrative, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres memory: scan rows: %w", err)
	}
	return results, nil
}

func (m *PostgresMemory) Close() {
	m.pool.Close()
}
