package server

import (
	"encoding/json"
	"time"

	"github.com/lox/teenpatti/internal/game"
	"github.com/lox/teenpatti/internal/session"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	return newMessageAt(messageType, data, time.Now())
}

func newMessageAt(messageType MessageType, data interface{}, at time.Time) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: at,
	}, nil
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Client → Server Messages

type AuthData struct {
	Token string `json:"token,omitempty"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
}

type PlayerData struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Balance int    `json:"sessionBalance,omitempty"`
}

type CreateSessionData struct {
	SessionName string       `json:"sessionName"`
	TotalRounds int          `json:"totalRounds"`
	Players     []PlayerData `json:"players"`
}

type SetPlayersData struct {
	Players []PlayerData `json:"players"`
}

type AddPlayerData struct {
	Name string `json:"name"`
}

type RemovePlayerData struct {
	PlayerID string `json:"playerId"`
}

type GameActionData struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId,omitempty"`
	TargetID string `json:"targetId,omitempty"`
	WinnerID string `json:"winnerId,omitempty"`
	Amount   int    `json:"amount,omitempty"`
	IsDouble bool   `json:"isDouble,omitempty"`
}

type RequestAccessData struct {
	SessionName string `json:"sessionName"`
	Name        string `json:"name"`
}

type ResolveAccessData struct {
	ConnectionID string `json:"connectionId"`
	Approve      bool   `json:"approve"`
}

type EndSessionData struct {
	SessionName string `json:"sessionName,omitempty"`
}

// Server → Client Messages

type AuthResponseData struct {
	Success      bool   `json:"success"`
	ConnectionID string `json:"connectionId,omitempty"`
	Name         string `json:"name,omitempty"`
	Role         string `json:"role,omitempty"`
	Error        string `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ActionResultData struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

type SessionJoinedData struct {
	SessionID   string           `json:"sessionId"`
	SessionName string           `json:"sessionName"`
	Created     bool             `json:"created"`
	State       game.PublicState `json:"state"`
}

type StateData struct {
	State game.PublicState `json:"state"`
}

type HandCompleteData struct {
	Summary game.HandCompleteEvent `json:"summary"`
}

type SessionEndedData struct {
	SessionName string         `json:"sessionName"`
	Reason      game.EndReason `json:"reason"`
	FinalRound  int            `json:"finalRound,omitempty"`
}

type AccessRequestsData struct {
	SessionName string                  `json:"sessionName"`
	Pending     []session.ViewerRequest `json:"pending"`
}

type AccessStatusData struct {
	SessionName string `json:"sessionName"`
	Message     string `json:"message,omitempty"`
}
