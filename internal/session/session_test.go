package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/teenpatti/internal/game"
	"github.com/lox/teenpatti/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func newTestRegistry(t *testing.T, st store.Store) (*Registry, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	if st == nil {
		st = store.NewMemory()
	}
	r := NewRegistry(Config{
		Game:   game.Config{Seed: 7},
		Store:  st,
		Clock:  clock,
		Logger: testLogger(),
	})
	t.Cleanup(r.Close)
	return r, clock
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

// eventLog is a thread-safe subscriber; events arrive on the session goroutine.
type eventLog struct {
	mu     sync.Mutex
	events []game.GameEvent
}

func (l *eventLog) OnEvent(ev game.GameEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []game.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []game.EventType
	for _, ev := range l.events {
		out = append(out, ev.EventType())
	}
	return out
}

func TestCreateAndRejoin(t *testing.T) {
	st := store.NewMemory()
	r, _ := newTestRegistry(t, st)

	s, created, err := r.Create(ctx(t), CreateRequest{Name: " friday ", TotalRounds: 3, Players: []string{"Asha", "", "Bilal"}})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "friday", s.Name)

	rec, err := st.LookupSession(ctx(t), "friday")
	require.NoError(t, err)
	assert.Equal(t, s.ID, rec.ID)
	assert.Equal(t, 3, rec.TotalRounds)
	assert.True(t, rec.Active)
	require.Len(t, rec.Players, 2)
	assert.Equal(t, "Bilal", rec.Players[1].Name)

	again, created, err := r.Create(ctx(t), CreateRequest{Name: "friday"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, s, again)

	got, ok := r.Get("friday")
	assert.True(t, ok)
	assert.Same(t, s, got)
	assert.Len(t, r.Sessions(), 1)
}

func TestCreateRejectsBlankName(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	_, _, err := r.Create(ctx(t), CreateRequest{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestEndedSessionCannotBeRejoined(t *testing.T) {
	st := store.NewMemory()
	r, _ := newTestRegistry(t, st)

	s, _, err := r.Create(ctx(t), CreateRequest{Name: "done", Players: []string{"A", "B"}})
	require.NoError(t, err)
	r.Remove("done")

	<-s.Done()
	_, _, err = r.Create(ctx(t), CreateRequest{Name: "done"})
	assert.ErrorIs(t, err, ErrSessionEnded)

	err = s.HandleAction(ctx(t), game.Action{Type: game.ActionFold})
	assert.ErrorIs(t, err, ErrSessionClosed)

	// a fresh registry consults the store
	require.NoError(t, st.EndSession(ctx(t), s.ID, string(game.EndOperator), time.Now()))
	r2, _ := newTestRegistry(t, st)
	_, _, err = r2.Create(ctx(t), CreateRequest{Name: "done"})
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestStopDuringOpStillReplies(t *testing.T) {
	r, _ := newTestRegistry(t, nil)

	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("table-%d", i)
		s, _, err := r.Create(ctx(t), CreateRequest{Name: name, Players: []string{"A", "B"}})
		require.NoError(t, err)
		require.NoError(t, s.Subscribe(ctx(t), game.SubscriberFunc(func(ev game.GameEvent) {
			if ev.EventType() == game.EventTypeSessionEnded {
				r.Remove(name)
			}
		})))

		err = s.Do(ctx(t), func(e *game.Engine) error { return e.End(game.EndOperator) })
		require.NoError(t, err, "round %d", i)
		<-s.Done()
		assert.ErrorIs(t, s.HandleAction(ctx(t), game.Action{Type: game.ActionFold}), ErrSessionClosed)
	}
}

func TestRebuildFromStore(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.CreateSession(ctx(t), store.Session{
		ID:           "sess_saved",
		Name:         "saved",
		TotalRounds:  5,
		CurrentRound: 3,
		Active:       true,
		Players: []store.Player{
			{ID: "ply_a", Name: "Asha", Seat: 1, Balance: 40},
			{ID: "ply_b", Name: "Bilal", Seat: 2, Balance: -40},
		},
	}))

	r, _ := newTestRegistry(t, st)
	s, created, err := r.Create(ctx(t), CreateRequest{Name: "saved", TotalRounds: 9})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "sess_saved", s.ID)

	state, err := s.State(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, 3, state.CurrentRound)
	assert.Equal(t, 5, state.TotalRounds)
	assert.Equal(t, game.PhaseSetup, state.Phase)
	require.Len(t, state.Players, 2)
	assert.Equal(t, 40, state.Players[0].Balance)
	assert.Equal(t, "ply_b", state.Players[1].ID)
}

func TestRebuildExhaustedSessionIsEnded(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.CreateSession(ctx(t), store.Session{
		ID: "sess_x", Name: "exhausted", TotalRounds: 2, CurrentRound: 3, Active: true,
	}))

	r, _ := newTestRegistry(t, st)
	_, _, err := r.Create(ctx(t), CreateRequest{Name: "exhausted"})
	assert.ErrorIs(t, err, ErrSessionEnded)

	rec, err := st.LookupSession(ctx(t), "exhausted")
	require.NoError(t, err)
	assert.False(t, rec.Active)
	assert.Equal(t, string(game.EndMaxRounds), rec.EndReason)
}

func TestActionsRunOnSession(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	s, _, err := r.Create(ctx(t), CreateRequest{Name: "play", TotalRounds: 1, Players: []string{"A", "B"}})
	require.NoError(t, err)

	events := &eventLog{}
	require.NoError(t, s.Subscribe(ctx(t), events))

	require.NoError(t, s.Do(ctx(t), func(e *game.Engine) error { return e.StartRound() }))
	state, err := s.State(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, game.PhaseActive, state.Phase)

	err = s.HandleAction(ctx(t), game.Action{Type: game.ActionFold, PlayerID: state.Players[1].ID})
	assert.ErrorIs(t, err, game.ErrInvalidTurn)

	require.NoError(t, s.HandleAction(ctx(t), game.Action{Type: game.ActionFold, PlayerID: state.ActivePlayerID}))
	assert.Equal(t, []game.EventType{
		game.EventTypeStateChanged,
		game.EventTypeStateChanged,
		game.EventTypeHandComplete,
		game.EventTypeSessionEnded,
	}, events.types())
}

func TestRequestTimeoutRunsOnSession(t *testing.T) {
	r, clock := newTestRegistry(t, nil)
	s, _, err := r.Create(ctx(t), CreateRequest{Name: "timeout", Players: []string{"A", "B"}})
	require.NoError(t, err)

	require.NoError(t, s.Do(ctx(t), func(e *game.Engine) error { return e.StartRound() }))
	state, err := s.State(ctx(t))
	require.NoError(t, err)
	require.NoError(t, s.HandleAction(ctx(t), game.Action{Type: game.ActionShow, PlayerID: state.ActivePlayerID}))

	state, err = s.State(ctx(t))
	require.NoError(t, err)
	require.NotNil(t, state.ShowRequest)

	clock.Advance(game.DefaultRequestTimeout).MustWait(ctx(t))

	// the timeout was queued on the session before this read
	state, err = s.State(ctx(t))
	require.NoError(t, err)
	assert.Nil(t, state.ShowRequest)
}

func TestSeededSessionsDealDifferently(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	hands := func(name string) [][3]string {
		s, _, err := r.Create(ctx(t), CreateRequest{Name: name, Players: []string{"A", "B"}})
		require.NoError(t, err)
		var out [][3]string
		require.NoError(t, s.Do(ctx(t), func(e *game.Engine) error {
			if err := e.StartRound(); err != nil {
				return err
			}
			for _, p := range e.Players() {
				rank, err := e.Evaluate(p.ID)
				if err != nil {
					return err
				}
				out = append(out, [3]string{rank.Cards[0].Code(), rank.Cards[1].Code(), rank.Cards[2].Code()})
			}
			return nil
		}))
		return out
	}
	assert.NotEqual(t, hands("one"), hands("two"))
}

func TestAccessHandshake(t *testing.T) {
	r, clock := newTestRegistry(t, nil)
	s, _, err := r.Create(ctx(t), CreateRequest{Name: "watch", Players: []string{"A", "B"}})
	require.NoError(t, err)

	assert.Empty(t, s.BindOperator("conn_op"))
	assert.Equal(t, "conn_op", s.Operator())

	assert.True(t, s.RequestAccess("conn_v1", "Vik", clock.Now()))
	assert.True(t, s.RequestAccess("conn_v2", "Wen", clock.Now().Add(time.Second)))
	pending := s.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "Vik", pending[0].Name)

	req, err := s.ResolveAccess("conn_v1", true)
	require.NoError(t, err)
	assert.Equal(t, "Vik", req.Name)
	_, err = s.ResolveAccess("conn_v2", false)
	require.NoError(t, err)
	_, err = s.ResolveAccess("conn_v2", true)
	assert.ErrorIs(t, err, ErrNoSuchRequest)

	assert.True(t, s.IsApproved("conn_v1"))
	assert.False(t, s.IsApproved("conn_v2"))
	assert.Equal(t, []string{"conn_op", "conn_v1"}, s.Members())
	assert.False(t, s.RequestAccess("conn_v1", "Vik", clock.Now()), "already approved")

	// operator reconnects on a new connection
	assert.Equal(t, "conn_op", s.BindOperator("conn_op2"))
	assert.Equal(t, []string{"conn_op2", "conn_v1"}, s.Members())

	assert.True(t, s.RequestAccess("conn_v3", "Xi", clock.Now()))
	touched := r.Disconnect("conn_v3")
	assert.Len(t, touched, 1)
	assert.Empty(t, s.Pending())

	touched = r.Disconnect("conn_op2")
	assert.Len(t, touched, 1)
	assert.Empty(t, s.Operator())
	_, ok := r.Get("watch")
	assert.True(t, ok, "operator disconnect keeps the session")

	r.Disconnect("conn_v1")
	assert.Empty(t, s.Members())
}
