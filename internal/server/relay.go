package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lox/teenpatti/internal/auth"
	"github.com/lox/teenpatti/internal/game"
	"github.com/lox/teenpatti/internal/gameid"
	"github.com/lox/teenpatti/internal/session"
)

// requestTimeout bounds how long a connection waits on a session or the
// auth service.
const requestTimeout = 5 * time.Second

// handleMessage processes incoming messages from the client
func (s *Server) handleMessage(c *Connection, msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type)

	if msg.Type == MessageTypeAuth {
		var data AuthData
		if err := msg.Decode(&data); err != nil {
			c.sendError("invalid_message", "Failed to parse auth data")
			return
		}
		s.handleAuth(c, data)
		return
	}

	if c.Identity() == nil {
		c.sendError("not_authenticated", "Must authenticate first")
		return
	}

	var err error
	switch msg.Type {
	case MessageTypeCreateSession:
		var data CreateSessionData
		if err = msg.Decode(&data); err == nil {
			s.handleCreateSession(c, data)
		}
	case MessageTypeSetPlayers:
		var data SetPlayersData
		if err = msg.Decode(&data); err == nil {
			s.handleSetPlayers(c, data)
		}
	case MessageTypeAddPlayer:
		var data AddPlayerData
		if err = msg.Decode(&data); err == nil {
			s.handleAddPlayer(c, data)
		}
	case MessageTypeRemovePlayer:
		var data RemovePlayerData
		if err = msg.Decode(&data); err == nil {
			s.handleRemovePlayer(c, data)
		}
	case MessageTypeGameAction:
		var data GameActionData
		if err = msg.Decode(&data); err == nil {
			s.handleGameAction(c, data)
		}
	case MessageTypeRequestAccess:
		var data RequestAccessData
		if err = msg.Decode(&data); err == nil {
			s.handleRequestAccess(c, data)
		}
	case MessageTypeResolveAccess:
		var data ResolveAccessData
		if err = msg.Decode(&data); err == nil {
			s.handleResolveAccess(c, data)
		}
	case MessageTypeEndSession:
		var data EndSessionData
		if err = msg.Decode(&data); err == nil {
			s.handleEndSession(c, data)
		}
	case MessageTypeGetState:
		s.handleGetState(c)
	default:
		c.sendError("unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
	if err != nil {
		c.sendError("invalid_message", "Failed to parse "+msg.Type.String()+" data")
	}
}

func (s *Server) handleAuth(c *Connection, data AuthData) {
	role, err := auth.ParseRole(data.Role)
	if err != nil {
		c.reply(MessageTypeAuthResponse, AuthResponseData{Success: false, Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()
	id, err := s.validator.Validate(ctx, auth.Credentials{
		Token: data.Token,
		Name:  strings.TrimSpace(data.Name),
		Role:  role,
	})
	if err != nil {
		c.logger.Info("Authentication failed", "name", data.Name, "role", role, "error", err)
		c.reply(MessageTypeAuthResponse, AuthResponseData{Success: false, Error: err.Error()})
		return
	}

	c.setIdentity(id)
	c.logger.Info("Authenticated", "name", id.Name, "role", id.Role)
	c.reply(MessageTypeAuthResponse, AuthResponseData{
		Success:      true,
		ConnectionID: c.id,
		Name:         id.Name,
		Role:         string(id.Role),
	})
}

func (s *Server) handleCreateSession(c *Connection, data CreateSessionData) {
	if !c.Identity().CanOperate() {
		c.sendError("forbidden", "Only operators can create sessions")
		return
	}

	names := make([]string, len(data.Players))
	for i, p := range data.Players {
		names[i] = p.Name
	}

	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()
	sess, created, err := s.registry.Create(ctx, session.CreateRequest{
		Name:        data.SessionName,
		TotalRounds: data.TotalRounds,
		Players:     names,
	})
	if err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}
	if err := s.attach(ctx, sess); err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}

	if prev := sess.BindOperator(c.id); prev != "" && prev != c.id {
		s.sendTo(prev, MessageTypeError, ErrorData{Code: "operator_replaced", Message: "Another connection took over session " + sess.Name})
		if old, ok := s.connection(prev); ok {
			old.setSession("")
		}
	}
	c.setSession(sess.Name)

	state, err := sess.State(ctx)
	if err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}
	c.logger.Info("Operator bound to session", "session", sess.Name, "created", created)
	c.reply(MessageTypeSessionJoined, SessionJoinedData{
		SessionID:   sess.ID,
		SessionName: sess.Name,
		Created:     created,
		State:       state,
	})
	if pending := sess.Pending(); len(pending) > 0 {
		c.reply(MessageTypeAccessRequests, AccessRequestsData{SessionName: sess.Name, Pending: pending})
	}
}

func (s *Server) handleSetPlayers(c *Connection, data SetPlayersData) {
	players := make([]game.Player, len(data.Players))
	for i, p := range data.Players {
		players[i] = game.Player{ID: p.ID, Name: p.Name, Balance: p.Balance}
	}
	s.editRoster(c, MessageTypeSetPlayers, func(e *game.Engine) error {
		return e.SetPlayers(players)
	})
}

func (s *Server) handleAddPlayer(c *Connection, data AddPlayerData) {
	s.editRoster(c, MessageTypeAddPlayer, func(e *game.Engine) error {
		_, err := e.AddPlayer(data.Name)
		return err
	})
}

func (s *Server) handleRemovePlayer(c *Connection, data RemovePlayerData) {
	s.editRoster(c, MessageTypeRemovePlayer, func(e *game.Engine) error {
		return e.RemovePlayer(data.PlayerID)
	})
}

// editRoster applies a roster change and queues the new roster for
// persistence.
func (s *Server) editRoster(c *Connection, kind MessageType, fn func(*game.Engine) error) {
	sess, ok := s.operated(c)
	if !ok {
		return
	}

	var roster []game.Player
	err := s.do(c, sess, func(e *game.Engine) error {
		if err := fn(e); err != nil {
			return err
		}
		roster = e.Players()
		return nil
	})
	if err == nil && s.recorder != nil {
		_ = s.recorder.RecordRoster(sess.ID, roster)
	}
	s.actionResult(c, kind.String(), err)
}

func (s *Server) handleGameAction(c *Connection, data GameActionData) {
	sess, ok := s.sessionFor(c)
	if !ok {
		return
	}

	kind := strings.ToUpper(strings.TrimSpace(data.Type))
	if kind == ActionStartGame {
		if !s.isOperator(c, sess) {
			return
		}
		s.actionResult(c, kind, s.do(c, sess, func(e *game.Engine) error { return e.StartRound() }))
		return
	}

	actionType, ok := game.ParseActionType(kind)
	if !ok {
		s.actionResult(c, kind, game.ErrInvalidAction)
		return
	}

	// Anyone watching may call off a negotiation; everything else is the
	// operator's.
	if !actionType.IsCancel() && !s.isOperator(c, sess) {
		return
	}

	action := game.Action{
		Type:     actionType,
		PlayerID: data.PlayerID,
		TargetID: data.TargetID,
		WinnerID: data.WinnerID,
		Amount:   data.Amount,
		IsDouble: data.IsDouble,
	}
	err := s.do(c, sess, func(e *game.Engine) error {
		if action.PlayerID == "" {
			action.PlayerID = e.ActivePlayerID()
		}
		return e.HandleAction(action)
	})
	if err != nil {
		c.logger.Debug("Action rejected", "session", sess.Name, "action", kind, "error", err)
	}
	s.actionResult(c, kind, err)
}

func (s *Server) handleRequestAccess(c *Connection, data RequestAccessData) {
	sess, ok := s.registry.Get(data.SessionName)
	if !ok {
		c.sendError("session_not_found", "No live session named "+data.SessionName)
		return
	}

	name := strings.TrimSpace(data.Name)
	if name == "" {
		name = c.Identity().Name
	}
	if !sess.RequestAccess(c.id, name, s.clock.Now()) {
		c.reply(MessageTypeAccessGranted, AccessStatusData{SessionName: sess.Name})
		return
	}

	c.logger.Info("Viewer requested access", "session", sess.Name, "name", name)
	c.reply(MessageTypeAccessPending, AccessStatusData{SessionName: sess.Name, Message: "Waiting for the operator to approve"})
	s.notifyPending(sess)
}

func (s *Server) handleResolveAccess(c *Connection, data ResolveAccessData) {
	sess, ok := s.operated(c)
	if !ok {
		return
	}

	if err := gameid.Validate(data.ConnectionID, gameid.PrefixConn); err != nil {
		s.actionResult(c, MessageTypeResolveAccess.String(), fmt.Errorf("%w: %v", session.ErrNoSuchRequest, err))
		return
	}
	req, err := sess.ResolveAccess(data.ConnectionID, data.Approve)
	if err != nil {
		s.actionResult(c, MessageTypeResolveAccess.String(), err)
		return
	}

	if data.Approve {
		if viewer, ok := s.connection(req.ConnectionID); ok {
			viewer.setSession(sess.Name)
			viewer.reply(MessageTypeAccessGranted, AccessStatusData{SessionName: sess.Name})
			ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
			if state, err := sess.State(ctx); err == nil {
				viewer.reply(MessageTypeState, StateData{State: state})
			}
			cancel()
		}
	} else {
		s.sendTo(req.ConnectionID, MessageTypeAccessDenied, AccessStatusData{SessionName: sess.Name, Message: "The operator denied access"})
	}
	c.logger.Info("Access resolved", "session", sess.Name, "viewer", req.Name, "approved", data.Approve)

	s.actionResult(c, MessageTypeResolveAccess.String(), nil)
	s.notifyPending(sess)
}

func (s *Server) handleEndSession(c *Connection, data EndSessionData) {
	id := c.Identity()

	var sess *session.Session
	if id.Role == auth.RoleAdmin && strings.TrimSpace(data.SessionName) != "" {
		found, ok := s.registry.Get(data.SessionName)
		if !ok {
			c.sendError("session_not_found", "No live session named "+data.SessionName)
			return
		}
		sess = found
	} else {
		found, ok := s.operated(c)
		if !ok {
			return
		}
		sess = found
	}

	reason := game.EndOperator
	if id.Role == auth.RoleAdmin {
		reason = game.EndAdmin
	}
	s.actionResult(c, MessageTypeEndSession.String(), s.do(c, sess, func(e *game.Engine) error {
		return e.End(reason)
	}))
}

func (s *Server) handleGetState(c *Connection) {
	sess, ok := s.sessionFor(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()
	state, err := sess.State(ctx)
	if err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}
	c.reply(MessageTypeState, StateData{State: state})
}

// sessionFor returns the session c operates or has been admitted to.
func (s *Server) sessionFor(c *Connection) (*session.Session, bool) {
	name := c.Session()
	sess, ok := s.registry.Get(name)
	if name == "" || !ok {
		c.sendError("no_session", "Not attached to a live session")
		return nil, false
	}
	if sess.Operator() != c.id && !sess.IsApproved(c.id) {
		c.sendError("forbidden", "Not a member of session "+name)
		return nil, false
	}
	return sess, true
}

// operated returns the session c is the bound operator of.
func (s *Server) operated(c *Connection) (*session.Session, bool) {
	sess, ok := s.sessionFor(c)
	if !ok || !s.isOperator(c, sess) {
		return nil, false
	}
	return sess, true
}

func (s *Server) isOperator(c *Connection, sess *session.Session) bool {
	if !c.Identity().CanOperate() || sess.Operator() != c.id {
		c.sendError("forbidden", "Only the session operator can do that")
		return false
	}
	return true
}

func (s *Server) do(c *Connection, sess *session.Session, fn func(*game.Engine) error) error {
	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()
	return sess.Do(ctx, fn)
}

func (s *Server) actionResult(c *Connection, action string, err error) {
	res := ActionResultData{Action: action, Success: err == nil}
	if err != nil {
		res.Error = err.Error()
		res.Code = errorCode(err)
	}
	c.reply(MessageTypeActionResult, res)
}

func (s *Server) notifyPending(sess *session.Session) {
	s.sendTo(sess.Operator(), MessageTypeAccessRequests, AccessRequestsData{
		SessionName: sess.Name,
		Pending:     sess.Pending(),
	})
}

// attach subscribes the broadcast relay to a session once.
func (s *Server) attach(ctx context.Context, sess *session.Session) error {
	s.relayMu.Lock()
	if _, ok := s.relayed[sess.ID]; ok {
		s.relayMu.Unlock()
		return nil
	}
	s.relayed[sess.ID] = struct{}{}
	s.relayMu.Unlock()

	// The relay lock is not held across Subscribe: the relay itself takes it
	// on the session goroutine.
	if err := sess.Subscribe(ctx, s.relay(sess)); err != nil {
		s.relayMu.Lock()
		delete(s.relayed, sess.ID)
		s.relayMu.Unlock()
		return err
	}
	return nil
}

// relay fans engine events out to the session's members. It runs on the
// session goroutine and must not block.
func (s *Server) relay(sess *session.Session) game.EventSubscriber {
	return game.SubscriberFunc(func(event game.GameEvent) {
		switch ev := event.(type) {
		case game.StateChangedEvent:
			s.broadcast(sess, MessageTypeState, StateData{State: ev.State})

		case game.HandCompleteEvent:
			s.broadcast(sess, MessageTypeHandComplete, HandCompleteData{Summary: ev})
			if s.recorder != nil {
				_ = s.recorder.RecordHand(ev)
			}

		case game.SessionEndedEvent:
			s.broadcast(sess, MessageTypeSessionEnded, SessionEndedData{
				SessionName: sess.Name,
				Reason:      ev.Reason,
				FinalRound:  ev.FinalRound,
			})
			if s.recorder != nil {
				_ = s.recorder.RecordEnd(sess.ID, ev.Reason)
			}
			for _, id := range sess.Members() {
				if c, ok := s.connection(id); ok {
					c.setSession("")
				}
			}
			s.relayMu.Lock()
			delete(s.relayed, sess.ID)
			s.relayMu.Unlock()
			s.registry.Remove(sess.Name)
			s.logger.Info("Session ended", "session", sess.Name, "reason", ev.Reason, "finalRound", ev.FinalRound)
		}
	})
}

// errorCode maps an error to the code sent to clients.
func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrInvalidTurn):
		return "invalid_turn"
	case errors.Is(err, game.ErrGameNotActive):
		return "game_not_active"
	case errors.Is(err, game.ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, game.ErrInsufficientPlayers):
		return "insufficient_players"
	case errors.Is(err, game.ErrSessionComplete):
		return "session_complete"
	case errors.Is(err, game.ErrNoPendingRequest):
		return "no_pending_request"
	case errors.Is(err, game.ErrRequestPending):
		return "request_pending"
	case errors.Is(err, game.ErrInvalidAction):
		return "invalid_action"
	case errors.Is(err, game.ErrNotInSetup):
		return "not_in_setup"
	case errors.Is(err, game.ErrHandInProgress):
		return "hand_in_progress"
	case errors.Is(err, session.ErrInvalidName):
		return "invalid_session_name"
	case errors.Is(err, session.ErrSessionEnded), errors.Is(err, session.ErrSessionClosed):
		return "session_ended"
	case errors.Is(err, session.ErrNotFound):
		return "session_not_found"
	case errors.Is(err, session.ErrNoSuchRequest):
		return "no_such_request"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal_error"
	}
}
