package game

// remaining returns the number of non-folded participants.
func (e *Engine) remaining() int {
	n := 0
	for _, p := range e.participants {
		if !p.Folded {
			n++
		}
	}
	return n
}

func (e *Engine) lastStanding() int {
	for i, p := range e.participants {
		if !p.Folded {
			return i
		}
	}
	return -1
}

// nextActiveIndex walks seat order forward from idx, skipping folded
// participants. The walk is bounded by the participant count so an
// all-folded hand cannot loop forever.
func (e *Engine) nextActiveIndex(idx int) int {
	return e.walk(idx, 1)
}

// previousActiveIndex walks seat order backwards from idx.
func (e *Engine) previousActiveIndex(idx int) int {
	return e.walk(idx, -1)
}

func (e *Engine) walk(idx, step int) int {
	n := len(e.participants)
	if n == 0 {
		return 0
	}
	if e.remaining() == 1 {
		return e.lastStanding()
	}
	next := idx
	for i := 0; i < n; i++ {
		next = ((next+step)%n + n) % n
		if !e.participants[next].Folded {
			return next
		}
	}
	return idx
}

func (e *Engine) indexOf(playerID string) int {
	for i, p := range e.participants {
		if p.PlayerID == playerID {
			return i
		}
	}
	return -1
}
