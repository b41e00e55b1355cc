package game

import (
	"time"

	"github.com/lox/teenpatti/internal/deck"
)

// Phase is the engine's position in the round state machine.
type Phase string

const (
	PhaseSetup    Phase = "SETUP"
	PhaseActive   Phase = "ACTIVE"
	PhaseShowdown Phase = "SHOWDOWN"
)

// Status records whether a participant has looked at their cards.
type Status string

const (
	StatusBlind Status = "BLIND"
	StatusSeen  Status = "SEEN"
)

// ActionType identifies an operator command applied to the engine.
type ActionType string

const (
	ActionSeen            ActionType = "SEEN"
	ActionFold            ActionType = "FOLD"
	ActionBet             ActionType = "BET"
	ActionSideShowRequest ActionType = "SIDE_SHOW_REQUEST"
	ActionSideShowResolve ActionType = "SIDE_SHOW_RESOLVE"
	ActionShow            ActionType = "SHOW"
	ActionShowResolve     ActionType = "SHOW_RESOLVE"
	ActionCancelSideShow  ActionType = "CANCEL_SIDE_SHOW"
	ActionCancelShow      ActionType = "CANCEL_SHOW"
)

// String returns the wire name of the action
func (a ActionType) String() string {
	return string(a)
}

// IsCancel reports whether the action may be applied regardless of turn.
func (a ActionType) IsCancel() bool {
	return a == ActionCancelSideShow || a == ActionCancelShow
}

// ParseActionType converts a wire name into an ActionType.
func ParseActionType(s string) (ActionType, bool) {
	switch a := ActionType(s); a {
	case ActionSeen, ActionFold, ActionBet, ActionSideShowRequest, ActionSideShowResolve,
		ActionShow, ActionShowResolve, ActionCancelSideShow, ActionCancelShow:
		return a, true
	}
	return "", false
}

// EndReason explains why a session stopped accepting rounds.
type EndReason string

const (
	EndMaxRounds EndReason = "MAX_ROUNDS_REACHED"
	EndOperator  EndReason = "OPERATOR_ENDED"
	EndAdmin     EndReason = "ADMIN_ENDED"
)

// Player is a roster entry. Balance is the cumulative net result across all
// hands of the session and only changes when a hand completes.
type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Seat    int    `json:"seat"`
	Balance int    `json:"sessionBalance"`
}

// Participant is a player's state for the current hand.
type Participant struct {
	PlayerID string
	Name     string
	Seat     int
	Status   Status
	Folded   bool
	Invested int
	Hand     [3]deck.Card
}

// Action is a single command for the engine. Only the fields relevant to
// Type are read.
type Action struct {
	Type     ActionType
	PlayerID string
	TargetID string
	WinnerID string
	Amount   int
	IsDouble bool
}

// SideShowRequest is an open side-show negotiation.
type SideShowRequest struct {
	RequesterID string    `json:"requesterId"`
	TargetID    string    `json:"targetId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ShowRequest is an open show or force-show negotiation.
type ShowRequest struct {
	RequesterID string    `json:"requesterId"`
	TargetID    string    `json:"targetId"`
	IsForceShow bool      `json:"isForceShow"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NetChange is one player's result for a completed hand.
type NetChange struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Change   int    `json:"change"`
	Balance  int    `json:"balance"`
}
