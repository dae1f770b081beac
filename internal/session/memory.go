package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory Store for tests and dev environments. The durable
// Repository stays the source of truth in real deployments.
type Memory struct {
	// Now lets tests pin the clock; defaults to time.Now.
	Now func() time.Time

	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{Now: time.Now, sessions: make(map[string]Session)}
}

func (m *Memory) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.Code]; exists {
		return ErrDuplicateCode
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.Now().UTC()
	}
	m.sessions[s.Code] = s
	return nil
}

func (m *Memory) GetByCode(_ context.Context, code string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[code]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) Cancel(_ context.Context, code, byIssuerID string, admin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[code]
	if !ok {
		return ErrNotFound
	}
	if !admin && s.IssuerID != byIssuerID {
		return ErrForbidden
	}
	now := m.Now().UTC()
	if s.StatusAt(now) != StatusActive {
		return ErrAlreadyTerminal
	}
	s.CancelledAt = &now
	m.sessions[code] = s
	return nil
}

func (m *Memory) ListActive(_ context.Context, issuerID string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now().UTC()
	var res []Session
	for _, s := range m.sessions {
		if s.IssuerID == issuerID && s.StatusAt(now) == StatusActive {
			res = append(res, s)
		}
	}
	sortByIssuedDesc(res)
	return res, nil
}

func (m *Memory) ListHistory(_ context.Context, issuerID string, limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Session
	for _, s := range m.sessions {
		if s.IssuerID == issuerID {
			all = append(all, s)
		}
	}
	sortByIssuedDesc(all)
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func sortByIssuedDesc(ss []Session) {
	sort.Slice(ss, func(i, j int) bool { return ss[i].IssuedAt.After(ss[j].IssuedAt) })
}
