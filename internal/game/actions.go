package game

import (
	"fmt"

	"github.com/lox/teenpatti/internal/evaluator"
)

// HandleAction validates and applies a single action. A rejected action
// returns an error and leaves the state untouched.
func (e *Engine) HandleAction(a Action) error {
	if !e.active {
		return fmt.Errorf("%w: session has ended", ErrGameNotActive)
	}

	switch a.Type {
	case ActionCancelSideShow:
		return e.cancelSideShow()
	case ActionCancelShow:
		return e.cancelShow()
	}

	if e.phase != PhaseActive {
		return ErrGameNotActive
	}
	current := e.participants[e.activeIndex]
	if a.PlayerID != current.PlayerID {
		return fmt.Errorf("%w: waiting for %s", ErrInvalidTurn, current.Name)
	}

	switch a.Type {
	case ActionSideShowResolve:
		return e.resolveSideShow(a.WinnerID)
	case ActionShowResolve:
		return e.resolveShow(a.WinnerID)
	}
	if e.sideShow != nil || e.show != nil {
		return fmt.Errorf("%w: resolve or cancel it first", ErrRequestPending)
	}

	switch a.Type {
	case ActionSeen:
		return e.seen(current)
	case ActionFold:
		return e.fold(current)
	case ActionBet:
		return e.bet(current, a.Amount, a.IsDouble)
	case ActionSideShowRequest:
		return e.requestSideShow(current, a.TargetID)
	case ActionShow:
		return e.requestShow(current, a.TargetID)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidAction, a.Type)
	}
}

func (e *Engine) seen(p *Participant) error {
	if p.Status == StatusSeen {
		return fmt.Errorf("%w: %s has already seen their cards", ErrInvalidAction, p.Name)
	}
	p.Status = StatusSeen
	e.appendLog("%s saw their cards", p.Name)
	e.publishState()
	return nil
}

func (e *Engine) fold(p *Participant) error {
	p.Folded = true
	e.appendLog("%s folded", p.Name)

	if e.remaining() == 1 {
		e.endHand(e.lastStanding())
		return nil
	}
	e.activeIndex = e.nextActiveIndex(e.activeIndex)
	e.publishState()
	return nil
}

func (e *Engine) bet(p *Participant, amount int, double bool) error {
	stake := e.stake
	switch {
	case amount > e.stake:
		stake = amount
	case double:
		stake = e.stake * 2
	case amount > 0:
		e.logger.Warn("Ignoring raise below current stake", "player", p.Name, "amount", amount, "stake", e.stake)
	}
	if stake > e.cfg.MaxStake {
		return fmt.Errorf("%w: stake %d exceeds the table limit of %d", ErrInvalidAction, stake, e.cfg.MaxStake)
	}

	raised := stake != e.stake
	cost := e.cost(p, stake)
	e.charge(p, cost)
	e.stake = stake

	verb := "chaal"
	if p.Status == StatusBlind {
		verb = "blind"
	}
	if raised {
		e.appendLog("%s raised the stake to %d, paid %d %s (pot %d)", p.Name, e.stake, cost, verb, e.pot)
	} else {
		e.appendLog("%s paid %d %s (pot %d)", p.Name, cost, verb, e.pot)
	}

	e.activeIndex = e.nextActiveIndex(e.activeIndex)
	e.publishState()
	return nil
}

// cost is what p pays to act at the given stake: half for a blind player.
func (e *Engine) cost(p *Participant, stake int) int {
	if p.Status == StatusBlind {
		return stake / 2
	}
	return stake
}

func (e *Engine) charge(p *Participant, amount int) {
	p.Invested += amount
	e.pot += amount
}

func (e *Engine) requestSideShow(p *Participant, targetID string) error {
	if p.Status != StatusSeen {
		return fmt.Errorf("%w: %s must see their cards before a side show", ErrInvalidAction, p.Name)
	}
	if targetID == "" {
		targetID = e.participants[e.previousActiveIndex(e.activeIndex)].PlayerID
	}
	target, err := e.target(p, targetID)
	if err != nil {
		return err
	}
	if target.Status != StatusSeen {
		return fmt.Errorf("%w: %s has not seen their cards", ErrInvalidTarget, target.Name)
	}

	e.charge(p, e.stake)
	req := &SideShowRequest{RequesterID: p.PlayerID, TargetID: target.PlayerID, CreatedAt: e.clock.Now()}
	e.sideShow = req
	e.sideShowTimer = e.schedule(e.sideShowTimer, func() { e.expireSideShow(req) })
	e.appendLog("%s paid %d and requested a side show with %s", p.Name, e.stake, target.Name)
	e.publishState()
	return nil
}

func (e *Engine) resolveSideShow(winnerID string) error {
	req := e.sideShow
	if req == nil {
		return fmt.Errorf("%w: no side show to resolve", ErrNoPendingRequest)
	}
	loserID, err := e.loser(req.RequesterID, req.TargetID, winnerID)
	if err != nil {
		return err
	}

	requesterIdx := e.indexOf(req.RequesterID)
	winner := e.participants[e.indexOf(winnerID)]
	loser := e.participants[e.indexOf(loserID)]
	loser.Folded = true
	e.clearSideShow()
	e.appendLog("Side show: %s beats %s, %s folds", winner.Name, loser.Name, loser.Name)

	if e.remaining() == 1 {
		e.endHand(e.lastStanding())
		return nil
	}
	e.activeIndex = e.nextActiveIndex(requesterIdx)
	e.publishState()
	return nil
}

func (e *Engine) requestShow(p *Participant, targetID string) error {
	force := e.remaining() != 2
	if !force {
		if targetID == "" {
			for _, other := range e.participants {
				if !other.Folded && other.PlayerID != p.PlayerID {
					targetID = other.PlayerID
				}
			}
		}
		target, err := e.target(p, targetID)
		if err != nil {
			return err
		}
		e.openShow(p, target, false)
		e.appendLog("%s called for a show with %s", p.Name, target.Name)
		e.publishState()
		return nil
	}

	if p.Status != StatusSeen {
		return fmt.Errorf("%w: %s must see their cards before a force show", ErrInvalidAction, p.Name)
	}
	if targetID == "" {
		return fmt.Errorf("%w: force show needs a target", ErrInvalidTarget)
	}
	target, err := e.target(p, targetID)
	if err != nil {
		return err
	}
	if target.Status != StatusBlind {
		return fmt.Errorf("%w: force show target %s is not blind", ErrInvalidTarget, target.Name)
	}
	blind := 0
	for _, other := range e.participants {
		if !other.Folded && other.Status == StatusBlind {
			blind++
		}
	}
	if blind > 2 {
		return fmt.Errorf("%w: force show needs at most 2 blind players, %d remain", ErrInvalidAction, blind)
	}

	e.openShow(p, target, true)
	e.appendLog("%s forced a show against blind %s", p.Name, target.Name)
	e.publishState()
	return nil
}

func (e *Engine) openShow(p, target *Participant, force bool) {
	req := &ShowRequest{RequesterID: p.PlayerID, TargetID: target.PlayerID, IsForceShow: force, CreatedAt: e.clock.Now()}
	e.show = req
	e.showTimer = e.schedule(e.showTimer, func() { e.expireShow(req) })
}

func (e *Engine) resolveShow(winnerID string) error {
	req := e.show
	if req == nil {
		return fmt.Errorf("%w: no show to resolve", ErrNoPendingRequest)
	}
	loserID, err := e.loser(req.RequesterID, req.TargetID, winnerID)
	if err != nil {
		return err
	}
	e.clearShow()

	winnerIdx := e.indexOf(winnerID)
	if !req.IsForceShow {
		e.appendLog("Show: %s wins against %s", e.participants[winnerIdx].Name, e.participants[e.indexOf(loserID)].Name)
		e.endHand(winnerIdx)
		return nil
	}

	requesterIdx := e.indexOf(req.RequesterID)
	requester := e.participants[requesterIdx]
	if winnerID == req.RequesterID {
		target := e.participants[e.indexOf(req.TargetID)]
		target.Folded = true
		e.appendLog("Force show: %s beats blind %s, %s folds", requester.Name, target.Name, target.Name)
	} else {
		penalty := 2 * e.stake
		e.charge(requester, penalty)
		requester.Folded = true
		e.appendLog("Force show: blind %s beats %s, %s pays %d penalty and folds",
			e.participants[winnerIdx].Name, requester.Name, requester.Name, penalty)
	}

	if e.remaining() == 1 {
		e.endHand(e.lastStanding())
		return nil
	}
	e.activeIndex = e.nextActiveIndex(requesterIdx)
	e.publishState()
	return nil
}

// target resolves a negotiation target for p.
func (e *Engine) target(p *Participant, targetID string) (*Participant, error) {
	idx := e.indexOf(targetID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: unknown player %q", ErrInvalidTarget, targetID)
	}
	t := e.participants[idx]
	if t.PlayerID == p.PlayerID {
		return nil, fmt.Errorf("%w: cannot target yourself", ErrInvalidTarget)
	}
	if t.Folded {
		return nil, fmt.Errorf("%w: %s has folded", ErrInvalidTarget, t.Name)
	}
	return t, nil
}

// loser returns the other party of a two-way negotiation.
func (e *Engine) loser(requesterID, targetID, winnerID string) (string, error) {
	switch winnerID {
	case requesterID:
		return targetID, nil
	case targetID:
		return requesterID, nil
	default:
		return "", fmt.Errorf("%w: winner must be %q or %q", ErrInvalidTarget, requesterID, targetID)
	}
}

// Evaluate ranks a participant's private hand. It is advisory: resolution is
// always decided by the operator, and the result is never broadcast.
func (e *Engine) Evaluate(playerID string) (evaluator.HandRank, error) {
	idx := e.indexOf(playerID)
	if idx < 0 || e.phase == PhaseSetup {
		return evaluator.HandRank{}, fmt.Errorf("%w: %q is not in the current hand", ErrInvalidTarget, playerID)
	}
	return evaluator.Evaluate(e.participants[idx].Hand), nil
}
