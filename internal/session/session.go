// Package session owns live sessions: one turn engine per session, driven
// from a single goroutine, plus the viewer access bookkeeping around it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/teenpatti/internal/game"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSessionEnded  = errors.New("session has ended")
	ErrInvalidName   = errors.New("invalid session name")
	ErrNotFound      = errors.New("session not found")
)

type op struct {
	fn   func(*game.Engine) error
	resp chan error
}

// Session runs a game.Engine on its own goroutine. Every mutation, including
// negotiation timeouts, is applied in arrival order on that goroutine, so the
// engine itself needs no locking.
type Session struct {
	ID        string
	Name      string
	CreatedAt time.Time

	engine *game.Engine
	logger *log.Logger
	ops    chan op
	quit   chan struct{} // stop requested
	done   chan struct{} // actor exited
	once   sync.Once

	access
}

func newSession(id, name string, createdAt time.Time, logger *log.Logger) *Session {
	return &Session{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
		logger:    logger,
		ops:       make(chan op, 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		access: access{
			pending:  make(map[string]ViewerRequest),
			approved: make(map[string]string),
		},
	}
}

func (s *Session) start(engine *game.Engine) {
	s.engine = engine
	go s.run()
}

func (s *Session) run() {
	defer func() {
		s.engine.Close()
		close(s.done)
		s.logger.Debug("Session actor stopped")
	}()

	for {
		select {
		case o := <-s.ops:
			err := o.fn(s.engine)
			// The reply goes out before a stop requested by fn takes effect,
			// so the caller sees the op's own result.
			if o.resp != nil {
				o.resp <- err
			}
		case <-s.quit:
			return
		}
	}
}

// Do runs fn against the engine on the session goroutine and waits for it.
// fn must not call back into the session.
func (s *Session) Do(ctx context.Context, fn func(*game.Engine) error) error {
	resp := make(chan error, 1)
	select {
	case s.ops <- op{fn: fn, resp: resp}:
	case <-s.quit:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-resp:
		return err
	case <-s.done:
		select {
		case err := <-resp:
			return err
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. It is the engine's dispatch hook for timer
// callbacks.
func (s *Session) post(fn func()) {
	select {
	case s.ops <- op{fn: func(*game.Engine) error { fn(); return nil }}:
	case <-s.done:
	}
}

// HandleAction applies an action to the engine.
func (s *Session) HandleAction(ctx context.Context, a game.Action) error {
	return s.Do(ctx, func(e *game.Engine) error { return e.HandleAction(a) })
}

// State returns the current public snapshot.
func (s *Session) State(ctx context.Context) (game.PublicState, error) {
	var st game.PublicState
	err := s.Do(ctx, func(e *game.Engine) error {
		st = e.PublicState()
		return nil
	})
	return st, err
}

// Subscribe registers a subscriber on the engine's event bus. Events are
// delivered on the session goroutine, so subscribers must not block or call
// Do.
func (s *Session) Subscribe(ctx context.Context, sub game.EventSubscriber) error {
	return s.Do(ctx, func(e *game.Engine) error {
		e.Events().Subscribe(sub)
		return nil
	})
}

// Stop asks the session goroutine to exit. It is safe to call from a
// subscriber and more than once; an op that calls Stop still completes and
// replies before the goroutine exits.
func (s *Session) Stop() {
	s.once.Do(func() { close(s.quit) })
}

// Done is closed once the session has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }
