package game

import (
	"fmt"

	"github.com/coder/quartz"
)

// schedule replaces any previous timer of the same kind with a new one that
// fires after the request timeout. The callback runs through Config.Dispatch.
func (e *Engine) schedule(prev *quartz.Timer, f func()) *quartz.Timer {
	if prev != nil {
		prev.Stop()
	}
	dispatch := e.cfg.Dispatch
	return e.clock.AfterFunc(e.cfg.RequestTimeout, func() { dispatch(f) }, "game", "request-timeout")
}

// expireSideShow auto-cancels req if it is still the open side show. A
// request that was resolved or replaced before the callback ran is ignored.
func (e *Engine) expireSideShow(req *SideShowRequest) {
	if e.sideShow != req || req == nil {
		return
	}
	e.sideShow = nil
	e.sideShowTimer = nil
	e.appendLog("Side show request timed out")
	e.logger.Info("Side show timed out", "requester", req.RequesterID, "target", req.TargetID)
	e.publishState()
}

func (e *Engine) expireShow(req *ShowRequest) {
	if e.show != req || req == nil {
		return
	}
	e.show = nil
	e.showTimer = nil
	e.appendLog("Show request timed out")
	e.logger.Info("Show timed out", "requester", req.RequesterID, "target", req.TargetID, "force", req.IsForceShow)
	e.publishState()
}

func (e *Engine) cancelSideShow() error {
	if e.sideShow == nil {
		return fmt.Errorf("%w: no side show to cancel", ErrNoPendingRequest)
	}
	e.clearSideShow()
	e.appendLog("Side show request cancelled")
	e.publishState()
	return nil
}

func (e *Engine) cancelShow() error {
	if e.show == nil {
		return fmt.Errorf("%w: no show to cancel", ErrNoPendingRequest)
	}
	e.clearShow()
	e.appendLog("Show request cancelled")
	e.publishState()
	return nil
}

func (e *Engine) clearSideShow() {
	if e.sideShowTimer != nil {
		e.sideShowTimer.Stop()
		e.sideShowTimer = nil
	}
	e.sideShow = nil
}

func (e *Engine) clearShow() {
	if e.showTimer != nil {
		e.showTimer.Stop()
		e.showTimer = nil
	}
	e.show = nil
}

func (e *Engine) clearRequests() {
	e.clearSideShow()
	e.clearShow()
}

func (e *Engine) stopTimers() {
	if e.sideShowTimer != nil {
		e.sideShowTimer.Stop()
	}
	if e.showTimer != nil {
		e.showTimer.Stop()
	}
}
