package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockMemory is an in-memory Memory for testing.
type MockMemory struct {
	mu sync.Mutex

	// Snippets is returned from every History call.
	Snippets []string

	// AppendErr, when set, is returned from AppendTurn.
	AppendErr error

	appended []string
}

var _ Memory = (*MockMemory)(nil)

func NewMockMemory() *MockMemory {
	return &MockMemory{}
}

func (m *MockMemory) AppendTurn(ctx context.Context, sessionID uuid.UUID, actorName string, narrative string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.appended = append(m.appended, narrative)
	return nil
}

func (m *MockMemory) History(ctx context.Context, sessionID uuid.UUID, query string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > 0 && len(m.Snippets) > limit {
		return m.Snippets[:limit], nil
	}
	return m.Snippets, nil
}

// Appended returns the narratives recorded so far.
func (m *MockMemory) Appended() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.appended))
	copy(out, m.appended)
	return out
}

func (m *MockMemory) Close() {}
