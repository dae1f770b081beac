package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory ledger for tests and dev environments. A mutex stands
// in for the database's unique constraint, so the created/already-exists
// outcome behaves exactly like the Postgres Repository within one process.
type Memory struct {
	mu      sync.Mutex
	byKey   map[memKey]Record
	ordered []memKey
}

type memKey struct {
	studentID   string
	sessionCode string
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{byKey: make(map[memKey]Record)}
}

func (m *Memory) Record(_ context.Context, studentID, sessionCode string, markedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey{studentID, sessionCode}
	if _, exists := m.byKey[key]; exists {
		return false, nil
	}
	m.byKey[key] = Record{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		SessionCode: sessionCode,
		MarkedAt:    markedAt,
		Status:      StatusPresent,
		CreatedAt:   time.Now().UTC(),
	}
	m.ordered = append(m.ordered, key)
	return true, nil
}

func (m *Memory) ListBySession(_ context.Context, sessionCode string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Record
	for _, key := range m.ordered {
		if key.sessionCode == sessionCode {
			res = append(res, m.byKey[key])
		}
	}
	return res, nil
}

// Len returns the number of records held. Test-only helper.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}
