// Package statistics summarizes a session's completed hands per player.
package statistics

import (
	"fmt"
	"math"
	"sort"

	"github.com/lox/teenpatti/internal/store"
)

// PlayerStats tracks one player's results across the hands they were dealt
// into.
type PlayerStats struct {
	PlayerID   string  `json:"playerId"`
	Name       string  `json:"name"`
	Hands      int     `json:"hands"`
	Wins       int     `json:"wins"`
	Net        int     `json:"net"`
	BiggestWin int     `json:"biggestWin"`
	WorstLoss  int     `json:"worstLoss"`
	Values     []int   `json:"-"`
	sumSquares float64 // for variance
}

// Mean returns the average chip result per hand.
func (p *PlayerStats) Mean() float64 {
	if p.Hands == 0 {
		return 0
	}
	return float64(p.Net) / float64(p.Hands)
}

// Variance returns the sample variance of the per-hand results.
func (p *PlayerStats) Variance() float64 {
	if p.Hands < 2 {
		return 0
	}
	mean := p.Mean()
	return (p.sumSquares - float64(p.Hands)*mean*mean) / float64(p.Hands-1)
}

// StdDev returns the sample standard deviation of the per-hand results.
func (p *PlayerStats) StdDev() float64 {
	return math.Sqrt(p.Variance())
}

// WinRate returns the fraction of dealt hands the player won.
func (p *PlayerStats) WinRate() float64 {
	if p.Hands == 0 {
		return 0
	}
	return float64(p.Wins) / float64(p.Hands)
}

// Median returns the median per-hand result.
func (p *PlayerStats) Median() float64 {
	if len(p.Values) == 0 {
		return 0
	}
	sorted := append([]int(nil), p.Values...)
	sort.Ints(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return float64(sorted[n/2-1]+sorted[n/2]) / 2
	}
	return float64(sorted[n/2])
}

// Session aggregates every completed hand of one session.
type Session struct {
	Hands    int
	TotalPot int
	MaxPot   int
	// Sum of every net change; a balanced ledger keeps this at zero.
	Net int

	players map[string]*PlayerStats
	order   []string
}

// New returns empty session statistics.
func New() *Session {
	return &Session{players: make(map[string]*PlayerStats)}
}

// FromHands builds statistics from persisted hands.
func FromHands(hands []store.Hand) *Session {
	s := New()
	for _, h := range hands {
		s.Add(h)
	}
	return s
}

// Add incorporates one completed hand.
func (s *Session) Add(h store.Hand) {
	s.Hands++
	s.TotalPot += h.Pot
	if h.Pot > s.MaxPot {
		s.MaxPot = h.Pot
	}

	for _, c := range h.Changes {
		p, ok := s.players[c.PlayerID]
		if !ok {
			p = &PlayerStats{PlayerID: c.PlayerID, Name: c.Name}
			s.players[c.PlayerID] = p
			s.order = append(s.order, c.PlayerID)
		}
		p.Hands++
		p.Net += c.Change
		p.sumSquares += float64(c.Change) * float64(c.Change)
		p.Values = append(p.Values, c.Change)
		if c.PlayerID == h.WinnerID {
			p.Wins++
		}
		if c.Change > p.BiggestWin {
			p.BiggestWin = c.Change
		}
		if c.Change < p.WorstLoss {
			p.WorstLoss = c.Change
		}
		s.Net += c.Change
	}
}

// Players returns per-player statistics, best net result first. Ties keep
// the order players first appeared in.
func (s *Session) Players() []PlayerStats {
	out := make([]PlayerStats, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.players[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Net > out[j].Net })
	return out
}

// Player returns the statistics for one player.
func (s *Session) Player(playerID string) (PlayerStats, bool) {
	p, ok := s.players[playerID]
	if !ok {
		return PlayerStats{}, false
	}
	return *p, true
}

// IsLedgerBalanced reports whether chips were only moved between players.
func (s *Session) IsLedgerBalanced() bool {
	return s.Net == 0
}

// Validate checks the aggregate for accounting mistakes.
func (s *Session) Validate() error {
	if !s.IsLedgerBalanced() {
		return fmt.Errorf("ledger mismatch: net changes sum to %d", s.Net)
	}

	wins := 0
	for _, p := range s.players {
		if len(p.Values) != p.Hands {
			return fmt.Errorf("player %s: %d values for %d hands", p.Name, len(p.Values), p.Hands)
		}
		wins += p.Wins
	}
	if wins > s.Hands {
		return fmt.Errorf("total wins (%d) exceeds total hands (%d)", wins, s.Hands)
	}
	return nil
}
