// Package store persists sessions, rosters and completed hands.
//
// Only durable records live here. In-progress hand state is held in memory by
// the game engine and is lost if the process stops mid-hand.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Session is the durable record of a session and its roster.
type Session struct {
	ID           string
	Name         string
	TotalRounds  int
	CurrentRound int
	Active       bool
	EndReason    string
	CreatedAt    time.Time
	EndedAt      time.Time
	Players      []Player
}

// Player is a roster entry with its running balance.
type Player struct {
	ID      string
	Name    string
	Seat    int
	Balance int
}

// Hand is the durable record of one completed hand.
type Hand struct {
	ID         string
	SessionID  string
	Round      int
	NextRound  int
	WinnerID   string
	WinnerName string
	Pot        int
	Log        []string
	Changes    []Change
	PlayedAt   time.Time
}

// Change is one player's net result for a hand.
type Change struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Change   int    `json:"change"`
}

// Store is the persistence gateway used at session-create and hand-complete
// boundaries.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	LookupSession(ctx context.Context, name string) (Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	// RecordHand appends a hand, applies each player's change to their
	// balance and advances the session's current round.
	RecordHand(ctx context.Context, h Hand) error
	// SaveRoster replaces a session's roster, seats and balances included.
	SaveRoster(ctx context.Context, sessionID string, players []Player) error
	EndSession(ctx context.Context, sessionID, reason string, endedAt time.Time) error
	ListHands(ctx context.Context, sessionID string) ([]Hand, error)
	Close() error
}

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Open returns a store for the named driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, "":
		return NewSQLite(ctx, dsn)
	case DriverPostgres:
		return NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}
