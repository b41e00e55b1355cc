package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is a Store that keeps everything in process memory.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*Session // by id
	byName   map[string]string
	hands    map[string][]Hand // by session id
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*Session),
		byName:   make(map[string]string),
		hands:    make(map[string][]Hand),
	}
}

func (m *Memory) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[s.Name]; ok {
		return fmt.Errorf("store: session %q: %w", s.Name, ErrExists)
	}
	s.Players = append([]Player(nil), s.Players...)
	m.sessions[s.ID] = &s
	m.byName[s.Name] = s.ID
	return nil
}

func (m *Memory) LookupSession(_ context.Context, name string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byName[name]
	if !ok {
		return Session{}, fmt.Errorf("store: session %q: %w", name, ErrNotFound)
	}
	return copySession(m.sessions[id]), nil
}

func (m *Memory) ListSessions(_ context.Context) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) RecordHand(_ context.Context, h Hand) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[h.SessionID]
	if !ok {
		return fmt.Errorf("store: session %q: %w", h.SessionID, ErrNotFound)
	}
	for _, c := range h.Changes {
		for i := range s.Players {
			if s.Players[i].ID == c.PlayerID {
				s.Players[i].Balance += c.Change
			}
		}
	}
	s.CurrentRound = h.NextRound
	h.Log = append([]string(nil), h.Log...)
	h.Changes = append([]Change(nil), h.Changes...)
	m.hands[h.SessionID] = append(m.hands[h.SessionID], h)
	return nil
}

func (m *Memory) SaveRoster(_ context.Context, sessionID string, players []Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("store: session %q: %w", sessionID, ErrNotFound)
	}
	s.Players = append([]Player(nil), players...)
	return nil
}

func (m *Memory) EndSession(_ context.Context, sessionID, reason string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("store: session %q: %w", sessionID, ErrNotFound)
	}
	s.Active = false
	s.EndReason = reason
	s.EndedAt = endedAt
	return nil
}

func (m *Memory) ListHands(_ context.Context, sessionID string) ([]Hand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Hand(nil), m.hands[sessionID]...), nil
}

func (m *Memory) Close() error { return nil }

func copySession(s *Session) Session {
	out := *s
	out.Players = append([]Player(nil), s.Players...)
	return out
}
