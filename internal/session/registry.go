package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/teenpatti/internal/game"
	"github.com/lox/teenpatti/internal/gameid"
	"github.com/lox/teenpatti/internal/randutil"
	"github.com/lox/teenpatti/internal/store"
)

// Config holds registry configuration. Game is the template every new
// engine is built from; its Name, SessionID, TotalRounds and Dispatch are
// set per session.
type Config struct {
	Game          game.Config
	DefaultRounds int
	Store         store.Store
	Clock         quartz.Clock
	Logger        *log.Logger
	IDs           *gameid.Generator
}

// CreateRequest describes a session an operator wants to create or rejoin.
type CreateRequest struct {
	Name        string
	TotalRounds int
	Players     []string
}

// Registry maps session names to live sessions. It is constructed once by
// the composition root and shared by reference.
type Registry struct {
	cfg    Config
	logger *log.Logger
	clock  quartz.Clock
	ids    *gameid.Generator

	mu       sync.Mutex
	sessions map[string]*Session
	ended    map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.IDs == nil {
		cfg.IDs = gameid.NewGenerator(nil, cfg.Clock)
	}
	if cfg.DefaultRounds <= 0 {
		cfg.DefaultRounds = game.DefaultTotalRounds
	}
	return &Registry{
		cfg:      cfg,
		logger:   cfg.Logger.WithPrefix("session"),
		clock:    cfg.Clock,
		ids:      cfg.IDs,
		sessions: make(map[string]*Session),
		ended:    make(map[string]struct{}),
	}
}

// Create returns the live session for req.Name, creating it if needed. The
// second return value reports whether a new durable session was created; it
// is false when an operator rejoins a live session or one rebuilt from the
// store. Ended session names are rejected with ErrSessionEnded.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*Session, bool, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, false, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[name]; ok {
		r.logger.Info("Rejoining live session", "session", name)
		return s, false, nil
	}
	if _, ok := r.ended[name]; ok {
		return nil, false, fmt.Errorf("%w: %q", ErrSessionEnded, name)
	}

	rec, err := r.cfg.Store.LookupSession(ctx, name)
	switch {
	case err == nil && !rec.Active:
		r.ended[name] = struct{}{}
		return nil, false, fmt.Errorf("%w: %q", ErrSessionEnded, name)
	case err == nil:
		s, err := r.rebuild(ctx, rec)
		return s, false, err
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, fmt.Errorf("lookup session %q: %w", name, err)
	}

	rounds := req.TotalRounds
	if rounds <= 0 {
		rounds = r.cfg.DefaultRounds
	}
	roster := make([]game.Player, 0, len(req.Players))
	for _, p := range req.Players {
		if p = strings.TrimSpace(p); p != "" {
			roster = append(roster, game.Player{Name: p})
		}
	}

	s := newSession(r.ids.New(gameid.PrefixSession), name, r.clock.Now(), r.logger.With("session", name))
	engine := r.newEngine(s, rounds, 1)
	if err := engine.SetPlayers(roster); err != nil {
		return nil, false, err
	}

	rec = store.Session{
		ID:           s.ID,
		Name:         name,
		TotalRounds:  rounds,
		CurrentRound: 1,
		Active:       true,
		CreatedAt:    s.CreatedAt,
	}
	for _, p := range engine.Players() {
		rec.Players = append(rec.Players, store.Player{ID: p.ID, Name: p.Name, Seat: p.Seat, Balance: p.Balance})
	}
	if err := r.cfg.Store.CreateSession(ctx, rec); err != nil {
		engine.Close()
		return nil, false, fmt.Errorf("create session %q: %w", name, err)
	}

	s.start(engine)
	r.sessions[name] = s
	r.logger.Info("Session created", "session", name, "id", s.ID, "rounds", rounds, "players", len(roster))
	return s, true, nil
}

// rebuild restores a live session from its durable record. Only the roster,
// balances and round counter survive; a hand that was in progress is lost.
func (r *Registry) rebuild(ctx context.Context, rec store.Session) (*Session, error) {
	s := newSession(rec.ID, rec.Name, rec.CreatedAt, r.logger.With("session", rec.Name))
	engine := r.newEngine(s, rec.TotalRounds, rec.CurrentRound)
	if !engine.IsActive() {
		engine.Close()
		r.ended[rec.Name] = struct{}{}
		if err := r.cfg.Store.EndSession(ctx, rec.ID, string(game.EndMaxRounds), r.clock.Now()); err != nil {
			r.logger.Warn("Failed to mark exhausted session ended", "session", rec.Name, "error", err)
		}
		return nil, fmt.Errorf("%w: %q", ErrSessionEnded, rec.Name)
	}

	roster := make([]game.Player, len(rec.Players))
	for i, p := range rec.Players {
		roster[i] = game.Player{ID: p.ID, Name: p.Name, Seat: p.Seat, Balance: p.Balance}
	}
	if err := engine.SetPlayers(roster); err != nil {
		return nil, err
	}

	s.start(engine)
	r.sessions[rec.Name] = s
	r.logger.Info("Session rebuilt from store", "session", rec.Name, "round", rec.CurrentRound)
	return s, nil
}

func (r *Registry) newEngine(s *Session, rounds, startRound int) *game.Engine {
	cfg := r.cfg.Game
	cfg.SessionID = s.ID
	cfg.Name = s.Name
	cfg.TotalRounds = rounds
	cfg.StartRound = startRound
	cfg.Clock = r.clock
	cfg.Logger = r.cfg.Logger
	cfg.IDs = r.ids
	cfg.Dispatch = s.post
	if cfg.Seed != 0 {
		// a fixed seed still gives each session its own deal sequence
		cfg.Seed ^= randutil.SeedFromBytes([]byte(s.Name))
	}
	return game.NewEngine(cfg)
}

// Get returns the live session with the given name.
func (r *Registry) Get(name string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[strings.TrimSpace(name)]
	return s, ok
}

// Sessions returns all live sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Remove tears down a session after it has ended. Its name can no longer be
// rejoined.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	s, ok := r.sessions[name]
	delete(r.sessions, name)
	r.ended[name] = struct{}{}
	r.mu.Unlock()

	if ok {
		s.access.clear()
		s.Stop()
		r.logger.Info("Session removed", "session", name)
	}
}

// Disconnect removes connID from every session's access lists and returns
// the sessions it belonged to.
func (r *Registry) Disconnect(connID string) []*Session {
	var touched []*Session
	for _, s := range r.Sessions() {
		wasOperator, hadPending := s.Disconnect(connID)
		if wasOperator || hadPending {
			touched = append(touched, s)
		}
		if wasOperator {
			r.logger.Info("Operator disconnected, session kept", "session", s.Name, "conn", connID)
		}
	}
	return touched
}

// Close stops every live session without marking them ended.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
