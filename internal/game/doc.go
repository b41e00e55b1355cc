// Package game implements the Teen Patti turn engine.
//
// The main type is Engine, which owns the live state of one session: the
// roster, the participants of the current hand, pot and stake arithmetic,
// turn rotation, side-show and force-show negotiation, and round
// progression.
//
// # Basic Usage
//
//	e := game.NewEngine(game.Config{Name: "friday", TotalRounds: 5})
//	e.SetPlayers([]game.Player{{Name: "Asha"}, {Name: "Bilal"}, {Name: "Chen"}})
//	if err := e.StartRound(); err != nil {
//	    // errors.Is(err, game.ErrInsufficientPlayers) ...
//	}
//	err := e.HandleAction(game.Action{Type: game.ActionBet, PlayerID: id})
//
// Every successful mutation publishes a StateChangedEvent on the engine's
// EventBus. A resolved hand additionally publishes a HandCompleteEvent, and
// the final hand (or an explicit End) publishes a SessionEndedEvent. Rejected
// actions return an error and publish nothing.
//
// # Concurrency
//
// An Engine is not safe for concurrent use. Callers serialize access, usually
// by owning the engine from a single goroutine. Negotiation timeouts are
// scheduled on the configured quartz.Clock and delivered through
// Config.Dispatch so they run on that same goroutine.
//
// # Deterministic Testing
//
// Set Config.Seed for reproducible deals and pass quartz.NewMock(t) as
// Config.Clock to drive the request timeout in virtual time.
package game
