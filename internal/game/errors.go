package game

import "errors"

// Errors returned by the engine. Detailed reasons are wrapped around these
// with fmt.Errorf("%w: ...") so callers can use errors.Is.
var (
	ErrInvalidTurn         = errors.New("not your turn")
	ErrGameNotActive       = errors.New("game not active")
	ErrInvalidTarget       = errors.New("invalid target")
	ErrInsufficientPlayers = errors.New("not enough players")
	ErrSessionComplete     = errors.New("session complete")
	ErrNoPendingRequest    = errors.New("no pending request")
	ErrRequestPending      = errors.New("request already pending")
	ErrInvalidAction       = errors.New("invalid action")
	ErrNotInSetup          = errors.New("roster can only change during setup")
	ErrHandInProgress      = errors.New("hand in progress")
)
