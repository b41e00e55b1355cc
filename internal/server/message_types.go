package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
const (
	// Client to server messages
	MessageTypeAuth          MessageType = "auth"
	MessageTypeCreateSession MessageType = "create_session"
	MessageTypeSetPlayers    MessageType = "set_players"
	MessageTypeAddPlayer     MessageType = "add_player"
	MessageTypeRemovePlayer  MessageType = "remove_player"
	MessageTypeGameAction    MessageType = "game_action"
	MessageTypeRequestAccess MessageType = "request_access"
	MessageTypeResolveAccess MessageType = "resolve_access"
	MessageTypeEndSession    MessageType = "end_session"
	MessageTypeGetState      MessageType = "get_state"

	// Server to client messages
	MessageTypeAuthResponse   MessageType = "auth_response"
	MessageTypeError          MessageType = "error"
	MessageTypeActionResult   MessageType = "action_result"
	MessageTypeSessionJoined  MessageType = "session_joined"
	MessageTypeState          MessageType = "state"
	MessageTypeHandComplete   MessageType = "hand_complete"
	MessageTypeSessionEnded   MessageType = "session_ended"
	MessageTypeAccessRequests MessageType = "access_requests"
	MessageTypeAccessPending  MessageType = "access_pending"
	MessageTypeAccessGranted  MessageType = "access_granted"
	MessageTypeAccessDenied   MessageType = "access_denied"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}

// ActionStartGame deals the next round. It travels in a game_action message
// alongside the engine's own action types.
const ActionStartGame = "START_GAME"
