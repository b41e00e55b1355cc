package game

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/teenpatti/internal/deck"
	"github.com/lox/teenpatti/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

// testEventSubscriber captures events for testing
type testEventSubscriber struct {
	events []GameEvent
}

func (t *testEventSubscriber) OnEvent(event GameEvent) {
	t.events = append(t.events, event)
}

func (t *testEventSubscriber) count(et EventType) int {
	n := 0
	for _, ev := range t.events {
		if ev.EventType() == et {
			n++
		}
	}
	return n
}

func (t *testEventSubscriber) last(et EventType) GameEvent {
	for i := len(t.events) - 1; i >= 0; i-- {
		if t.events[i].EventType() == et {
			return t.events[i]
		}
	}
	return nil
}

func (t *testEventSubscriber) reset() { t.events = nil }

type fixture struct {
	engine *Engine
	events *testEventSubscriber
	clock  *quartz.Mock
}

func newFixture(t *testing.T, rounds int, names ...string) *fixture {
	t.Helper()
	clock := quartz.NewMock(t)
	e := NewEngine(Config{
		Name:        "test",
		TotalRounds: rounds,
		Seed:        42,
		Clock:       clock,
		Logger:      testLogger(),
	})
	players := make([]Player, len(names))
	for i, n := range names {
		players[i] = Player{Name: n}
	}
	require.NoError(t, e.SetPlayers(players))

	sub := &testEventSubscriber{}
	e.Events().Subscribe(sub)
	return &fixture{engine: e, events: sub, clock: clock}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.engine.StartRound())
	f.events.reset()
}

// id returns the player id of the participant at index i.
func (f *fixture) id(i int) string {
	return f.engine.participants[i].PlayerID
}

func (f *fixture) act(t *testing.T, typ ActionType, player int, opts ...func(*Action)) {
	t.Helper()
	a := Action{Type: typ, PlayerID: f.id(player)}
	for _, o := range opts {
		o(&a)
	}
	require.NoError(t, f.engine.HandleAction(a))
}

func target(id string) func(*Action) { return func(a *Action) { a.TargetID = id } }
func winner(id string) func(*Action) { return func(a *Action) { a.WinnerID = id } }

func (f *fixture) sumInvested() int {
	total := 0
	for _, p := range f.engine.participants {
		total += p.Invested
	}
	return total
}

func TestStartRoundDealsUniqueCards(t *testing.T) {
	f := newFixture(t, 3, "Asha", "Bilal", "Chen", "Dara", "Eli")
	f.start(t)

	e := f.engine
	seen := make(map[deck.Card]bool)
	for _, p := range e.participants {
		for _, c := range p.Hand {
			assert.False(t, seen[c], "card %s dealt twice", c)
			seen[c] = true
		}
		assert.Equal(t, StatusBlind, p.Status)
		assert.False(t, p.Folded)
		assert.Equal(t, DefaultBoot, p.Invested)
	}
	assert.Len(t, seen, 15)
	assert.Equal(t, 25, e.Pot())
	assert.Equal(t, DefaultInitialStake, e.Stake())
	assert.Equal(t, PhaseActive, e.Phase())
	assert.Equal(t, f.id(0), e.ActivePlayerID())
	assert.NotEmpty(t, e.PublicState().HandID)
	assert.Len(t, e.PublicState().Log, 1)
}

func TestStartRoundErrors(t *testing.T) {
	t.Run("single player", func(t *testing.T) {
		f := newFixture(t, 3, "Asha")
		assert.ErrorIs(t, f.engine.StartRound(), ErrInsufficientPlayers)
		assert.Equal(t, PhaseSetup, f.engine.Phase())
		assert.Empty(t, f.events.events)
	})

	t.Run("blank names are not dealt in", func(t *testing.T) {
		f := newFixture(t, 3, "Asha", "  ", "")
		assert.ErrorIs(t, f.engine.StartRound(), ErrInsufficientPlayers)
	})

	t.Run("hand already in progress", func(t *testing.T) {
		f := newFixture(t, 3, "Asha", "Bilal")
		f.start(t)
		pot := f.engine.Pot()
		assert.ErrorIs(t, f.engine.StartRound(), ErrHandInProgress)
		assert.Equal(t, pot, f.engine.Pot())
		assert.Empty(t, f.events.events)
	})

	t.Run("session complete", func(t *testing.T) {
		f := newFixture(t, 1, "Asha", "Bilal")
		f.start(t)
		f.act(t, ActionFold, 0)
		assert.ErrorIs(t, f.engine.StartRound(), ErrSessionComplete)
	})
}

func TestThreePlayerScenario(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C")
	f.start(t)
	e := f.engine

	require.Equal(t, 15, e.Pot())
	require.Equal(t, 20, e.Stake())

	f.act(t, ActionBet, 0)
	assert.Equal(t, 25, e.Pot())
	assert.Equal(t, 15, e.participants[0].Invested, "boot plus half stake")
	assert.Equal(t, f.id(1), e.ActivePlayerID())

	f.act(t, ActionSeen, 1)
	assert.Equal(t, f.id(1), e.ActivePlayerID(), "seen does not rotate the turn")
	f.act(t, ActionBet, 1)
	assert.Equal(t, 45, e.Pot())
	assert.Equal(t, f.id(2), e.ActivePlayerID())

	f.act(t, ActionFold, 2)
	assert.Equal(t, 45, e.Pot())
	assert.Equal(t, f.id(0), e.ActivePlayerID())

	f.act(t, ActionFold, 0)
	assert.Equal(t, PhaseShowdown, e.Phase())
	assert.Equal(t, 2, e.CurrentRound())

	balances := map[string]int{}
	for _, p := range e.Players() {
		balances[p.Name] = p.Balance
	}
	assert.Equal(t, map[string]int{"A": -15, "B": 20, "C": -5}, balances)

	ev, ok := f.events.last(EventTypeHandComplete).(HandCompleteEvent)
	require.True(t, ok)
	assert.Equal(t, "B", ev.WinnerName)
	assert.Equal(t, 45, ev.Pot)
	assert.Equal(t, 1, ev.Round)
	assert.Equal(t, 2, ev.NextRound)
	assert.False(t, ev.SessionOver)
	assert.Equal(t, 1, f.events.count(EventTypeHandComplete))
	assert.Zero(t, f.events.count(EventTypeSessionEnded))

	sum := 0
	for _, c := range ev.NetChanges {
		sum += c.Change
	}
	assert.Zero(t, sum, "net changes must balance")
}

func TestRejectedActionsDoNotMutate(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C")

	err := f.engine.HandleAction(Action{Type: ActionBet, PlayerID: "nobody"})
	assert.ErrorIs(t, err, ErrGameNotActive)

	f.start(t)
	before := f.engine.PublicState()

	tests := []struct {
		name   string
		action Action
		err    error
	}{
		{"out of turn", Action{Type: ActionBet, PlayerID: f.id(1)}, ErrInvalidTurn},
		{"unknown action", Action{Type: "DANCE", PlayerID: f.id(0)}, ErrInvalidAction},
		{"resolve without request", Action{Type: ActionSideShowResolve, PlayerID: f.id(0), WinnerID: f.id(0)}, ErrNoPendingRequest},
		{"show resolve without request", Action{Type: ActionShowResolve, PlayerID: f.id(0), WinnerID: f.id(0)}, ErrNoPendingRequest},
		{"cancel without request", Action{Type: ActionCancelSideShow}, ErrNoPendingRequest},
		{"blind side show", Action{Type: ActionSideShowRequest, PlayerID: f.id(0), TargetID: f.id(1)}, ErrInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.engine.HandleAction(tt.action), tt.err)
			assert.Equal(t, before, f.engine.PublicState())
			assert.Empty(t, f.events.events, "rejected actions must not publish")
		})
	}
}

func TestSeenTwiceRejected(t *testing.T) {
	f := newFixture(t, 3, "A", "B")
	f.start(t)
	f.act(t, ActionSeen, 0)
	err := f.engine.HandleAction(Action{Type: ActionSeen, PlayerID: f.id(0)})
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestBetStake(t *testing.T) {
	tests := []struct {
		name      string
		seen      bool
		amount    int
		double    bool
		wantStake int
		wantCost  int
	}{
		{name: "blind chaal", wantStake: 20, wantCost: 10},
		{name: "seen chaal", seen: true, wantStake: 20, wantCost: 20},
		{name: "blind double", double: true, wantStake: 40, wantCost: 20},
		{name: "seen double", seen: true, double: true, wantStake: 40, wantCost: 40},
		{name: "raise amount", seen: true, amount: 50, wantStake: 50, wantCost: 50},
		{name: "blind raise amount", amount: 30, wantStake: 30, wantCost: 15},
		{name: "low raise is ignored", seen: true, amount: 10, wantStake: 20, wantCost: 20},
		{name: "amount wins over double", amount: 70, double: true, wantStake: 70, wantCost: 35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 3, "A", "B", "C")
			f.start(t)
			if tt.seen {
				f.act(t, ActionSeen, 0)
			}
			pot := f.engine.Pot()
			f.act(t, ActionBet, 0, func(a *Action) {
				a.Amount = tt.amount
				a.IsDouble = tt.double
			})
			assert.Equal(t, tt.wantStake, f.engine.Stake())
			assert.Equal(t, pot+tt.wantCost, f.engine.Pot())
			assert.Equal(t, DefaultBoot+tt.wantCost, f.engine.participants[0].Invested)
			assert.Equal(t, f.sumInvested(), f.engine.Pot())
		})
	}
}

func TestTurnSkipsFoldedPlayers(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C", "D")
	f.start(t)
	e := f.engine

	f.act(t, ActionBet, 0)
	f.act(t, ActionFold, 1)
	f.act(t, ActionFold, 2)
	assert.Equal(t, f.id(3), e.ActivePlayerID())
	f.act(t, ActionBet, 3)
	assert.Equal(t, f.id(0), e.ActivePlayerID(), "wraps to seat 1 skipping folded")
	f.act(t, ActionBet, 0)
	assert.Equal(t, f.id(3), e.ActivePlayerID())

	assert.Equal(t, 0, e.previousActiveIndex(3))
	assert.Equal(t, 3, e.previousActiveIndex(0))
}

func TestLastFoldEndsHand(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C")
	f.start(t)
	f.act(t, ActionFold, 0)
	f.act(t, ActionFold, 1)

	assert.Equal(t, PhaseShowdown, f.engine.Phase())
	ev := f.events.last(EventTypeHandComplete).(HandCompleteEvent)
	assert.Equal(t, "C", ev.WinnerName)
	assert.Equal(t, 10, ev.NetChanges[2].Change)
}

// seenTable starts a three player hand where every player has seen and
// bet once, leaving the turn with A.
func seenTable(t *testing.T) *fixture {
	f := newFixture(t, 3, "A", "B", "C")
	f.start(t)
	for i := 0; i < 3; i++ {
		f.act(t, ActionSeen, i)
		f.act(t, ActionBet, i)
	}
	require.Equal(t, f.id(0), f.engine.ActivePlayerID())
	f.events.reset()
	return f
}

func TestSideShowTargetWins(t *testing.T) {
	f := seenTable(t)
	e := f.engine
	pot, stake := e.Pot(), e.Stake()

	f.act(t, ActionSideShowRequest, 0, target(f.id(1)))
	assert.Equal(t, pot+stake, e.Pot(), "requester pays the stake up front")
	require.NotNil(t, e.PublicState().SideShowRequest)

	f.act(t, ActionSideShowResolve, 0, winner(f.id(1)))
	assert.True(t, e.participants[0].Folded)
	assert.False(t, e.participants[1].Folded)
	assert.Equal(t, stake, e.Stake(), "side show never changes the stake")
	assert.Nil(t, e.PublicState().SideShowRequest)
	assert.Equal(t, f.id(1), e.ActivePlayerID(), "turn passes after the requester's seat")
	assert.Equal(t, f.sumInvested(), e.Pot())
}

func TestSideShowRequesterWins(t *testing.T) {
	f := seenTable(t)
	e := f.engine
	stake := e.Stake()

	f.act(t, ActionSideShowRequest, 0, target(f.id(1)))
	f.act(t, ActionSideShowResolve, 0, winner(f.id(0)))
	assert.True(t, e.participants[1].Folded)
	assert.Equal(t, stake, e.Stake())
	assert.Equal(t, f.id(2), e.ActivePlayerID())
}

func TestSideShowDefaultsToPreviousPlayer(t *testing.T) {
	f := seenTable(t)
	f.act(t, ActionSideShowRequest, 0)
	req := f.engine.PublicState().SideShowRequest
	require.NotNil(t, req)
	assert.Equal(t, f.id(2), req.TargetID)
}

func TestSideShowEndsHandWithTwoPlayers(t *testing.T) {
	f := newFixture(t, 3, "A", "B")
	f.start(t)
	f.act(t, ActionSeen, 0)
	f.act(t, ActionBet, 0)
	f.act(t, ActionSeen, 1)
	f.act(t, ActionBet, 1)

	f.act(t, ActionSideShowRequest, 0, target(f.id(1)))
	f.act(t, ActionSideShowResolve, 0, winner(f.id(1)))
	assert.Equal(t, PhaseShowdown, f.engine.Phase())
	assert.Equal(t, "B", f.events.last(EventTypeHandComplete).(HandCompleteEvent).WinnerName)
}

func TestSideShowValidation(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C", "D")
	f.start(t)
	f.act(t, ActionSeen, 0)
	f.act(t, ActionBet, 0)
	f.act(t, ActionSeen, 1)
	f.act(t, ActionBet, 1)
	f.act(t, ActionFold, 2)
	f.act(t, ActionBet, 3)
	require.Equal(t, f.id(0), f.engine.ActivePlayerID())
	f.events.reset()
	before := f.engine.PublicState()

	tests := []struct {
		name   string
		target string
	}{
		{"self", f.id(0)},
		{"folded", f.id(2)},
		{"blind", f.id(3)},
		{"unknown", "ply_missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.HandleAction(Action{Type: ActionSideShowRequest, PlayerID: f.id(0), TargetID: tt.target})
			assert.ErrorIs(t, err, ErrInvalidTarget)
			assert.Equal(t, before, f.engine.PublicState())
		})
	}
	assert.Empty(t, f.events.events)
}

func TestSideShowWinnerMustBeParty(t *testing.T) {
	f := seenTable(t)
	f.act(t, ActionSideShowRequest, 0, target(f.id(1)))
	err := f.engine.HandleAction(Action{Type: ActionSideShowResolve, PlayerID: f.id(0), WinnerID: f.id(2)})
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.NotNil(t, f.engine.PublicState().SideShowRequest)
}

func TestPendingRequestBlocksOtherActions(t *testing.T) {
	f := seenTable(t)
	f.act(t, ActionSideShowRequest, 0, target(f.id(1)))

	for _, typ := range []ActionType{ActionBet, ActionFold, ActionShow, ActionSideShowRequest} {
		err := f.engine.HandleAction(Action{Type: typ, PlayerID: f.id(0), TargetID: f.id(2)})
		assert.ErrorIs(t, err, ErrRequestPending, typ)
	}
}

func TestSideShowTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := seenTable(t)
	e := f.engine
	f.act(t, ActionSideShowRequest, 0, target(f.id(1)))
	pot := e.Pot()
	f.events.reset()

	f.clock.Advance(DefaultRequestTimeout - time.Second).MustWait(ctx)
	assert.NotNil(t, e.PublicState().SideShowRequest)
	assert.Empty(t, f.events.events)

	f.clock.Advance(time.Second).MustWait(ctx)
	state := e.PublicState()
	assert.Nil(t, state.SideShowRequest)
	assert.Equal(t, pot, e.Pot(), "the paid stake is not refunded")
	assert.Equal(t, "Side show request timed out", state.Log[len(state.Log)-1])
	assert.Equal(t, 1, f.events.count(EventTypeStateChanged))

	// normal turn handling resumes for the requester
	f.act(t, ActionBet, 0)
	assert.Equal(t, f.id(1), e.ActivePlayerID())
}

func TestCancelStopsTimer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := seenTable(t)
	f.act(t, ActionSideShowRequest, 0, target(f.id(1)))

	// cancels are accepted from any player, even out of turn
	require.NoError(t, f.engine.HandleAction(Action{Type: ActionCancelSideShow, PlayerID: f.id(2)}))
	assert.Nil(t, f.engine.PublicState().SideShowRequest)
	f.events.reset()

	f.clock.Advance(DefaultRequestTimeout).MustWait(ctx)
	assert.Empty(t, f.events.events, "cancelled request must not fire")
}

func TestForceShowBlindWins(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C")
	f.start(t)
	e := f.engine
	f.act(t, ActionSeen, 0)

	f.act(t, ActionShow, 0, target(f.id(1)))
	req := e.PublicState().ShowRequest
	require.NotNil(t, req)
	assert.True(t, req.IsForceShow)

	pot, stake := e.Pot(), e.Stake()
	invested := e.participants[0].Invested
	f.act(t, ActionShowResolve, 0, winner(f.id(1)))

	assert.True(t, e.participants[0].Folded)
	assert.Equal(t, invested+2*stake, e.participants[0].Invested)
	assert.Equal(t, pot+2*stake, e.Pot())
	assert.Equal(t, f.id(1), e.ActivePlayerID())
	assert.Nil(t, e.PublicState().ShowRequest)
	assert.Equal(t, f.sumInvested(), e.Pot())
}

func TestForceShowRequesterWins(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C")
	f.start(t)
	e := f.engine
	f.act(t, ActionSeen, 0)
	pot := e.Pot()

	f.act(t, ActionShow, 0, target(f.id(1)))
	f.act(t, ActionShowResolve, 0, winner(f.id(0)))
	assert.True(t, e.participants[1].Folded)
	assert.False(t, e.participants[0].Folded)
	assert.Equal(t, pot, e.Pot(), "no charge when the seen player wins")
	assert.Equal(t, f.id(2), e.ActivePlayerID())
}

func TestForceShowValidation(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C", "D")
	f.start(t)
	f.act(t, ActionSeen, 0)

	err := f.engine.HandleAction(Action{Type: ActionShow, PlayerID: f.id(0), TargetID: f.id(1)})
	assert.ErrorIs(t, err, ErrInvalidAction, "three blind players remain")

	err = f.engine.HandleAction(Action{Type: ActionShow, PlayerID: f.id(0)})
	assert.ErrorIs(t, err, ErrInvalidTarget, "force show needs a target")

	f.act(t, ActionBet, 0)
	f.act(t, ActionSeen, 1)
	f.act(t, ActionBet, 1)
	f.act(t, ActionBet, 2)
	f.act(t, ActionBet, 3)

	err = f.engine.HandleAction(Action{Type: ActionShow, PlayerID: f.id(0), TargetID: f.id(1)})
	assert.ErrorIs(t, err, ErrInvalidTarget, "target has seen")

	f.act(t, ActionShow, 0, target(f.id(2)))
	assert.True(t, f.engine.PublicState().ShowRequest.IsForceShow)
}

func TestForceShowRequiresSeenRequester(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C")
	f.start(t)
	err := f.engine.HandleAction(Action{Type: ActionShow, PlayerID: f.id(0), TargetID: f.id(1)})
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestRegularShow(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C")
	f.start(t)
	f.act(t, ActionFold, 0)
	f.act(t, ActionBet, 1)

	f.act(t, ActionShow, 2)
	req := f.engine.PublicState().ShowRequest
	require.NotNil(t, req)
	assert.False(t, req.IsForceShow)
	assert.Equal(t, f.id(1), req.TargetID)

	f.act(t, ActionShowResolve, 2, winner(f.id(1)))
	assert.Equal(t, PhaseShowdown, f.engine.Phase())
	ev := f.events.last(EventTypeHandComplete).(HandCompleteEvent)
	assert.Equal(t, "B", ev.WinnerName)
	assert.False(t, f.engine.participants[2].Folded, "regular show loser is not folded")
}

func TestShowTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := newFixture(t, 3, "A", "B")
	f.start(t)
	f.act(t, ActionShow, 0)
	f.clock.Advance(DefaultRequestTimeout).MustWait(ctx)
	assert.Nil(t, f.engine.PublicState().ShowRequest)

	err := f.engine.HandleAction(Action{Type: ActionCancelShow})
	assert.ErrorIs(t, err, ErrNoPendingRequest)
}

func TestRequestTimeoutUsesDispatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	var queued []func()
	e := NewEngine(Config{
		Name:     "dispatch",
		Seed:     1,
		Clock:    clock,
		Logger:   testLogger(),
		Dispatch: func(f func()) { queued = append(queued, f) },
	})
	require.NoError(t, e.SetPlayers([]Player{{Name: "A"}, {Name: "B"}}))
	require.NoError(t, e.StartRound())
	require.NoError(t, e.HandleAction(Action{Type: ActionShow, PlayerID: e.ActivePlayerID()}))

	clock.Advance(DefaultRequestTimeout).MustWait(ctx)
	require.Len(t, queued, 1)
	assert.NotNil(t, e.PublicState().ShowRequest, "timeout waits for dispatch")

	queued[0]()
	assert.Nil(t, e.PublicState().ShowRequest)
}

func TestSessionEndsAtMaxRounds(t *testing.T) {
	f := newFixture(t, 2, "A", "B")
	for round := 1; round <= 2; round++ {
		f.start(t)
		f.act(t, ActionFold, 0)
		assert.Equal(t, round+1, f.engine.CurrentRound())
	}

	assert.False(t, f.engine.IsActive())
	ended, ok := f.events.last(EventTypeSessionEnded).(SessionEndedEvent)
	require.True(t, ok)
	assert.Equal(t, EndMaxRounds, ended.Reason)
	assert.Equal(t, 2, ended.FinalRound)
	assert.True(t, f.events.last(EventTypeHandComplete).(HandCompleteEvent).SessionOver)

	assert.ErrorIs(t, f.engine.StartRound(), ErrSessionComplete)
	assert.ErrorIs(t, f.engine.End(EndOperator), ErrSessionComplete)

	// B won both hands of 10 chips
	players := f.engine.Players()
	assert.Equal(t, -10, players[0].Balance)
	assert.Equal(t, 10, players[1].Balance)
}

func TestEndAbandonsHand(t *testing.T) {
	f := newFixture(t, 5, "A", "B", "C")
	f.start(t)
	f.act(t, ActionBet, 0)

	require.NoError(t, f.engine.End(EndAdmin))
	assert.False(t, f.engine.IsActive())
	for _, p := range f.engine.Players() {
		assert.Zero(t, p.Balance, "abandoned hand is not settled")
	}
	ended := f.events.last(EventTypeSessionEnded).(SessionEndedEvent)
	assert.Equal(t, EndAdmin, ended.Reason)
	assert.Equal(t, 0, ended.FinalRound)
	assert.Zero(t, f.events.count(EventTypeHandComplete))

	err := f.engine.HandleAction(Action{Type: ActionBet, PlayerID: f.id(1)})
	assert.ErrorIs(t, err, ErrGameNotActive)
}

func TestRosterChanges(t *testing.T) {
	f := newFixture(t, 3, "A", "B")
	e := f.engine

	c, err := e.AddPlayer("  C ")
	require.NoError(t, err)
	assert.Equal(t, "C", c.Name)
	assert.Equal(t, 3, c.Seat)

	_, err = e.AddPlayer(" ")
	assert.ErrorIs(t, err, ErrInvalidAction)

	require.NoError(t, e.RemovePlayer(e.Players()[0].ID))
	players := e.Players()
	require.Len(t, players, 2)
	assert.Equal(t, "B", players[0].Name)
	assert.Equal(t, 1, players[0].Seat)
	assert.ErrorIs(t, e.RemovePlayer("ply_missing"), ErrInvalidTarget)

	f.start(t)
	_, err = e.AddPlayer("D")
	assert.ErrorIs(t, err, ErrNotInSetup)
	assert.ErrorIs(t, e.RemovePlayer(players[0].ID), ErrNotInSetup)
	assert.Empty(t, f.events.events)
}

func TestSetPlayersKeepsHandAndBalances(t *testing.T) {
	f := newFixture(t, 3, "A", "B")
	f.start(t)
	f.act(t, ActionFold, 0)
	f.start(t)

	roster := f.engine.Players()
	require.NoError(t, f.engine.SetPlayers(roster))

	assert.Equal(t, PhaseActive, f.engine.Phase(), "resending the roster keeps the hand")
	assert.Equal(t, roster, f.engine.Players())
	assert.Equal(t, -5, f.engine.Players()[0].Balance)
}

func TestSetPlayersMatchesNamesDuringHand(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C")
	f.start(t)
	f.act(t, ActionFold, 0)
	f.act(t, ActionFold, 1)
	f.start(t)
	before := f.engine.Players()
	require.Equal(t, 10, before[2].Balance)

	// a reconnecting operator resends names only
	require.NoError(t, f.engine.SetPlayers([]Player{{Name: "A"}, {Name: "B"}, {Name: "C"}}))
	assert.Equal(t, before, f.engine.Players())
	assert.Equal(t, PhaseActive, f.engine.Phase())

	f.act(t, ActionFold, 0)
	f.act(t, ActionFold, 1)
	ended := f.events.last(EventTypeHandComplete).(HandCompleteEvent)
	assert.Equal(t, before[2].ID, ended.WinnerID)
	assert.Equal(t, 20, f.engine.Players()[2].Balance)
	assert.Equal(t, -10, f.engine.Players()[0].Balance)
}

func TestSetPlayersCannotDropDealtParticipant(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C")
	f.start(t)
	before := f.engine.Players()

	err := f.engine.SetPlayers([]Player{{Name: "A"}, {Name: "Z"}, {Name: "C"}})
	assert.ErrorIs(t, err, ErrHandInProgress)
	assert.Equal(t, before, f.engine.Players())
	assert.Empty(t, f.events.events)

	err = f.engine.SetPlayers([]Player{before[0], before[0], before[2]})
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Equal(t, before, f.engine.Players())
}

func TestBetRejectsStakeAboveLimit(t *testing.T) {
	clock := quartz.NewMock(t)
	e := NewEngine(Config{Name: "capped", TotalRounds: 1, MaxStake: 80, Seed: 1, Clock: clock, Logger: testLogger()})
	require.NoError(t, e.SetPlayers([]Player{{Name: "A"}, {Name: "B"}}))
	require.NoError(t, e.StartRound())

	pot := e.Pot()
	err := e.HandleAction(Action{Type: ActionBet, PlayerID: e.ActivePlayerID(), Amount: 1 << 62})
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Equal(t, pot, e.Pot())
	assert.Equal(t, 20, e.Stake())

	// doubling stops at the limit: 20 -> 40 -> 80, then rejected
	require.NoError(t, e.HandleAction(Action{Type: ActionBet, PlayerID: e.ActivePlayerID(), IsDouble: true}))
	require.NoError(t, e.HandleAction(Action{Type: ActionBet, PlayerID: e.ActivePlayerID(), IsDouble: true}))
	assert.Equal(t, 80, e.Stake())
	err = e.HandleAction(Action{Type: ActionBet, PlayerID: e.ActivePlayerID(), IsDouble: true})
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Equal(t, 80, e.Stake())
}

func TestPublicStateHidesHands(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C")
	f.start(t)

	data, err := json.Marshal(f.engine.PublicState())
	require.NoError(t, err)
	for _, p := range f.engine.participants {
		for _, c := range p.Hand {
			assert.NotContains(t, string(data), c.String())
		}
	}
	assert.NotContains(t, string(data), `"Hand"`)
}

func TestPotInvariantUnderRandomPlay(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		f := newFixture(t, 1, "A", "B", "C", "D", "E")
		f.start(t)
		e := f.engine
		rng := randutil.New(seed)

		for step := 0; e.Phase() == PhaseActive && step < 200; step++ {
			a := Action{PlayerID: e.ActivePlayerID()}
			switch rng.IntN(5) {
			case 0:
				a.Type = ActionFold
			case 1:
				a.Type = ActionSeen
			case 2:
				a.Type = ActionBet
				a.IsDouble = true
			default:
				a.Type = ActionBet
			}
			round := e.CurrentRound()
			if err := e.HandleAction(a); err != nil {
				assert.Equal(t, round, e.CurrentRound(), "rejected action must not advance the round")
				continue
			}
			assert.Equal(t, f.sumInvested(), e.Pot(), "seed %d step %d", seed, step)
			if e.Phase() == PhaseActive {
				assert.False(t, e.participants[e.activeIndex].Folded)
			}
		}
		assert.Equal(t, 1, f.events.count(EventTypeHandComplete), "seed %d", seed)
	}
}

func TestSeededDealsRepeat(t *testing.T) {
	deal := func() [][3]deck.Card {
		f := newFixture(t, 3, "A", "B", "C")
		f.start(t)
		var hands [][3]deck.Card
		for _, p := range f.engine.participants {
			hands = append(hands, p.Hand)
		}
		return hands
	}
	assert.Equal(t, deal(), deal())
}

func TestEvaluateIsAdvisory(t *testing.T) {
	f := newFixture(t, 3, "A", "B")
	_, err := f.engine.Evaluate("ply_missing")
	assert.ErrorIs(t, err, ErrInvalidTarget)

	f.start(t)
	rank, err := f.engine.Evaluate(f.id(0))
	require.NoError(t, err)
	assert.NotEmpty(t, rank.String())
	assert.Empty(t, f.events.events)
}
