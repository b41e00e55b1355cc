package session

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNoSuchRequest = errors.New("no such access request")

// ViewerRequest is a pending request to watch a session.
type ViewerRequest struct {
	ConnectionID string    `json:"connectionId"`
	Name         string    `json:"name"`
	RequestedAt  time.Time `json:"requestedAt"`
}

// access tracks which connections belong to a session's broadcast group. It
// is read by subscribers on the session goroutine and written by connection
// handlers, so it carries its own lock.
type access struct {
	mu       sync.RWMutex
	operator string
	pending  map[string]ViewerRequest
	approved map[string]string
}

// BindOperator makes connID the session's operator connection, replacing any
// previous one. The game state is untouched, so a reconnecting operator picks
// up where they left off.
func (a *access) BindOperator(connID string) (previous string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	previous, a.operator = a.operator, connID
	return previous
}

// Operator returns the bound operator connection id.
func (a *access) Operator() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.operator
}

// RequestAccess records a pending viewer request. It reports false if the
// connection is already approved.
func (a *access) RequestAccess(connID, name string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.approved[connID]; ok {
		return false
	}
	a.pending[connID] = ViewerRequest{ConnectionID: connID, Name: name, RequestedAt: now}
	return true
}

// ResolveAccess approves or denies a pending request.
func (a *access) ResolveAccess(connID string, approve bool) (ViewerRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	req, ok := a.pending[connID]
	if !ok {
		return ViewerRequest{}, ErrNoSuchRequest
	}
	delete(a.pending, connID)
	if approve {
		a.approved[connID] = req.Name
	}
	return req, nil
}

// Pending lists pending requests, oldest first.
func (a *access) Pending() []ViewerRequest {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ViewerRequest, 0, len(a.pending))
	for _, r := range a.pending {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ConnectionID < out[j].ConnectionID
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}

// IsApproved reports whether connID may receive broadcasts as a viewer.
func (a *access) IsApproved(connID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.approved[connID]
	return ok
}

// Members returns the operator connection (if any) followed by every
// approved viewer.
func (a *access) Members() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	members := make([]string, 0, len(a.approved)+1)
	if a.operator != "" {
		members = append(members, a.operator)
	}
	viewers := make([]string, 0, len(a.approved))
	for id := range a.approved {
		viewers = append(viewers, id)
	}
	sort.Strings(viewers)
	return append(members, viewers...)
}

// Disconnect forgets connID. It reports whether the connection was the
// operator and whether it had a pending request.
func (a *access) Disconnect(connID string) (wasOperator, hadPending bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.operator == connID {
		a.operator = ""
		wasOperator = true
	}
	_, hadPending = a.pending[connID]
	delete(a.pending, connID)
	delete(a.approved, connID)
	return wasOperator, hadPending
}

func (a *access) clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = make(map[string]ViewerRequest)
	a.approved = make(map[string]string)
}
