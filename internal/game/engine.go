package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/teenpatti/internal/deck"
	"github.com/lox/teenpatti/internal/gameid"
	"github.com/lox/teenpatti/internal/randutil"
)

// Default table parameters.
const (
	DefaultBoot           = 5
	DefaultInitialStake   = 20
	DefaultRequestTimeout = 60 * time.Second
	DefaultMaxPlayers     = 10
	DefaultTotalRounds    = 10
	HandSize              = 3

	// DefaultMaxStake bounds the stake so pot and investments cannot
	// overflow however long a hand runs.
	DefaultMaxStake = 1 << 30
)

// Config holds engine configuration
type Config struct {
	SessionID      string
	Name           string
	TotalRounds    int
	StartRound     int // first round number, >1 when rebuilding a session
	Boot           int
	InitialStake   int
	MaxStake       int
	RequestTimeout time.Duration
	MaxPlayers     int
	Seed           int64 // non-zero for reproducible deals
	Clock          quartz.Clock
	Logger         *log.Logger
	IDs            *gameid.Generator

	// Dispatch runs timer callbacks. Callers that own the engine from a
	// single goroutine route the callback back onto it. Nil runs inline.
	Dispatch func(func())
}

func (c *Config) applyDefaults() {
	if c.TotalRounds <= 0 {
		c.TotalRounds = DefaultTotalRounds
	}
	if c.Boot <= 0 {
		c.Boot = DefaultBoot
	}
	if c.InitialStake <= 0 {
		c.InitialStake = DefaultInitialStake
	}
	if c.MaxStake <= 0 || c.MaxStake > DefaultMaxStake {
		c.MaxStake = DefaultMaxStake
	}
	if c.InitialStake > c.MaxStake {
		c.InitialStake = c.MaxStake
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = DefaultMaxPlayers
	}
	if c.MaxPlayers*HandSize > deck.Size {
		c.MaxPlayers = deck.Size / HandSize
	}
	if c.StartRound <= 0 {
		c.StartRound = 1
	}
	if c.Clock == nil {
		c.Clock = quartz.NewReal()
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.IDs == nil {
		c.IDs = gameid.NewGenerator(nil, c.Clock)
	}
	if c.Dispatch == nil {
		c.Dispatch = func(f func()) { f() }
	}
	if c.SessionID == "" {
		c.SessionID = c.IDs.New(gameid.PrefixSession)
	}
}

// Engine is the authoritative state of one Teen Patti session.
type Engine struct {
	cfg    Config
	logger *log.Logger
	clock  quartz.Clock
	deck   *deck.Deck
	bus    EventBus

	roster       []*Player
	participants []*Participant

	currentRound int
	active       bool
	phase        Phase
	pot          int
	stake        int
	activeIndex  int
	handID       string
	log          []string

	sideShow      *SideShowRequest
	show          *ShowRequest
	sideShowTimer *quartz.Timer
	showTimer     *quartz.Timer
}

// NewEngine creates an engine in the SETUP phase with an empty roster.
func NewEngine(cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:          cfg,
		logger:       cfg.Logger.WithPrefix("game").With("session", cfg.Name),
		clock:        cfg.Clock,
		deck:         deck.New(randutil.For(cfg.Seed)),
		bus:          NewEventBus(),
		currentRound: cfg.StartRound,
		active:       cfg.StartRound <= cfg.TotalRounds,
		phase:        PhaseSetup,
	}
}

// Events returns the bus the engine publishes on.
func (e *Engine) Events() EventBus { return e.bus }

// SessionID returns the session identifier.
func (e *Engine) SessionID() string { return e.cfg.SessionID }

// Name returns the session name.
func (e *Engine) Name() string { return e.cfg.Name }

// Phase returns the current phase.
func (e *Engine) Phase() Phase { return e.phase }

// IsActive reports whether the session still accepts rounds.
func (e *Engine) IsActive() bool { return e.active }

// CurrentRound returns the number of the next or in-progress round.
func (e *Engine) CurrentRound() int { return e.currentRound }

// Pot returns the chips collected for the current hand.
func (e *Engine) Pot() int { return e.pot }

// Stake returns the current chaal reference value.
func (e *Engine) Stake() int { return e.stake }

// ActivePlayerID returns the id of the participant whose turn it is, or ""
// outside the ACTIVE phase.
func (e *Engine) ActivePlayerID() string {
	if e.phase != PhaseActive || e.activeIndex >= len(e.participants) {
		return ""
	}
	return e.participants[e.activeIndex].PlayerID
}

// Players returns a copy of the roster.
func (e *Engine) Players() []Player {
	out := make([]Player, len(e.roster))
	for i, p := range e.roster {
		out[i] = *p
	}
	return out
}

// SetPlayers replaces the roster. Seats follow slice order. An entry with an
// id, or without one but with the name of a current player, keeps that
// player's id and balance, so an operator reconnecting mid-session can resend
// the roster without clobbering results. During a hand the new roster must
// still contain every dealt participant.
func (e *Engine) SetPlayers(players []Player) error {
	if !e.active {
		return fmt.Errorf("%w: cannot change roster", ErrSessionComplete)
	}
	if len(players) > e.cfg.MaxPlayers {
		return fmt.Errorf("%w: at most %d players", ErrInvalidAction, e.cfg.MaxPlayers)
	}

	byID := make(map[string]*Player, len(e.roster))
	byName := make(map[string]*Player, len(e.roster))
	for _, p := range e.roster {
		byID[p.ID] = p
		if _, dup := byName[p.Name]; !dup {
			byName[p.Name] = p
		}
	}

	claimed := make(map[string]bool, len(players))
	roster := make([]*Player, 0, len(players))
	for i, p := range players {
		np := &Player{ID: p.ID, Name: strings.TrimSpace(p.Name), Seat: i + 1, Balance: p.Balance}
		old, ok := byID[np.ID]
		if np.ID == "" {
			old, ok = byName[np.Name]
			if ok && !claimed[old.ID] {
				np.ID = old.ID
			} else {
				ok = false
				np.ID = e.cfg.IDs.New(gameid.PrefixPlayer)
			}
		}
		if claimed[np.ID] {
			return fmt.Errorf("%w: player %s listed twice", ErrInvalidAction, np.ID)
		}
		claimed[np.ID] = true
		if ok {
			np.Balance = old.Balance
		}
		roster = append(roster, np)
	}

	if e.phase == PhaseActive {
		for _, part := range e.participants {
			if !claimed[part.PlayerID] {
				return fmt.Errorf("%w: %s is dealt in and cannot be removed", ErrHandInProgress, part.Name)
			}
		}
	}
	e.roster = roster

	if e.phase == PhaseSetup {
		e.logger.Debug("Roster set", "players", len(roster))
	} else {
		e.logger.Info("Roster replaced outside setup", "phase", e.phase, "players", len(roster))
	}
	e.publishState()
	return nil
}

// AddPlayer appends a player to the roster. Only permitted during SETUP.
func (e *Engine) AddPlayer(name string) (Player, error) {
	if e.phase != PhaseSetup {
		return Player{}, ErrNotInSetup
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Player{}, fmt.Errorf("%w: player name is required", ErrInvalidAction)
	}
	if len(e.roster) >= e.cfg.MaxPlayers {
		return Player{}, fmt.Errorf("%w: at most %d players", ErrInvalidAction, e.cfg.MaxPlayers)
	}

	p := &Player{
		ID:   e.cfg.IDs.New(gameid.PrefixPlayer),
		Name: name,
		Seat: len(e.roster) + 1,
	}
	e.roster = append(e.roster, p)
	e.logger.Debug("Player added", "player", name, "seat", p.Seat)
	e.publishState()
	return *p, nil
}

// RemovePlayer drops a player from the roster. Only permitted during SETUP.
func (e *Engine) RemovePlayer(playerID string) error {
	if e.phase != PhaseSetup {
		return ErrNotInSetup
	}
	idx := -1
	for i, p := range e.roster {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: unknown player %q", ErrInvalidTarget, playerID)
	}

	e.roster = append(e.roster[:idx], e.roster[idx+1:]...)
	for i, p := range e.roster {
		p.Seat = i + 1
	}
	e.publishState()
	return nil
}

// StartRound deals a new hand to every roster entry with a non-blank name.
func (e *Engine) StartRound() error {
	if !e.active || e.currentRound > e.cfg.TotalRounds {
		return ErrSessionComplete
	}
	if e.phase == PhaseActive {
		return ErrHandInProgress
	}

	var eligible []*Player
	for _, p := range e.roster {
		if strings.TrimSpace(p.Name) != "" {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) < 2 {
		return ErrInsufficientPlayers
	}

	e.deck.Reset()
	hands, err := e.deck.DealHands(len(eligible), HandSize)
	if err != nil {
		return fmt.Errorf("deal round %d: %w", e.currentRound, err)
	}

	e.clearRequests()
	e.participants = make([]*Participant, len(eligible))
	for i, p := range eligible {
		e.participants[i] = &Participant{
			PlayerID: p.ID,
			Name:     p.Name,
			Seat:     p.Seat,
			Status:   StatusBlind,
			Invested: e.cfg.Boot,
			Hand:     [3]deck.Card(hands[i]),
		}
	}
	e.pot = e.cfg.Boot * len(eligible)
	e.stake = e.cfg.InitialStake
	e.activeIndex = 0
	e.phase = PhaseActive
	e.handID = e.cfg.IDs.New(gameid.PrefixHand)
	e.log = nil
	e.appendLog("Round %d started with %d players, boot %d collected (pot %d)", e.currentRound, len(eligible), e.cfg.Boot, e.pot)

	e.logger.Info("Round started", "round", e.currentRound, "hand", e.handID, "players", len(eligible), "pot", e.pot)
	e.publishState()
	return nil
}

// End stops the session. An in-progress hand is abandoned without settling.
func (e *Engine) End(reason EndReason) error {
	if !e.active {
		return ErrSessionComplete
	}
	if e.phase == PhaseActive {
		e.logger.Warn("Session ended with hand in progress", "hand", e.handID, "pot", e.pot)
		e.appendLog("Hand abandoned: session ended")
		e.phase = PhaseShowdown
	}
	e.clearRequests()
	e.active = false

	e.logger.Info("Session ended", "reason", reason, "round", e.currentRound-1)
	e.publishState()
	e.bus.Publish(SessionEndedEvent{
		SessionID:   e.cfg.SessionID,
		SessionName: e.cfg.Name,
		Reason:      reason,
		FinalRound:  e.currentRound - 1,
		timestamp:   e.clock.Now(),
	})
	return nil
}

// Close releases pending timers without publishing anything.
func (e *Engine) Close() {
	e.stopTimers()
}

func (e *Engine) endHand(winnerIdx int) {
	winner := e.participants[winnerIdx]
	e.clearRequests()
	e.phase = PhaseShowdown

	invested := make(map[string]int, len(e.participants))
	for _, p := range e.participants {
		invested[p.PlayerID] = p.Invested
	}

	changes := make([]NetChange, 0, len(e.roster))
	for _, p := range e.roster {
		amount, dealt := invested[p.ID]
		change := 0
		switch {
		case p.ID == winner.PlayerID:
			change = e.pot - amount
		case dealt:
			change = -amount
		}
		p.Balance += change
		changes = append(changes, NetChange{PlayerID: p.ID, Name: p.Name, Change: change, Balance: p.Balance})
	}

	completed := e.currentRound
	e.currentRound++
	over := e.currentRound > e.cfg.TotalRounds
	e.appendLog("%s wins the pot of %d", winner.Name, e.pot)

	e.logger.Info("Hand complete", "round", completed, "hand", e.handID, "winner", winner.Name, "pot", e.pot)
	e.publishState()
	e.bus.Publish(HandCompleteEvent{
		SessionID:   e.cfg.SessionID,
		SessionName: e.cfg.Name,
		HandID:      e.handID,
		Round:       completed,
		WinnerID:    winner.PlayerID,
		WinnerName:  winner.Name,
		Pot:         e.pot,
		NetChanges:  changes,
		NextRound:   e.currentRound,
		SessionOver: over,
		Log:         append([]string(nil), e.log...),
		timestamp:   e.clock.Now(),
	})

	if over {
		e.active = false
		e.logger.Info("Session ended", "reason", EndMaxRounds, "round", completed)
		e.bus.Publish(SessionEndedEvent{
			SessionID:   e.cfg.SessionID,
			SessionName: e.cfg.Name,
			Reason:      EndMaxRounds,
			FinalRound:  completed,
			timestamp:   e.clock.Now(),
		})
	}
}

func (e *Engine) appendLog(format string, args ...any) {
	e.log = append(e.log, fmt.Sprintf(format, args...))
}

func (e *Engine) publishState() {
	e.bus.Publish(StateChangedEvent{State: e.PublicState(), timestamp: e.clock.Now()})
}
