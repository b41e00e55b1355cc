package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lox/teenpatti/internal/fileutil"
	"github.com/lox/teenpatti/internal/server"
	"github.com/lox/teenpatti/internal/statistics"
	"github.com/lox/teenpatti/internal/store"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	nameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	winStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// HistoryCmd prints persisted sessions. With a session name it prints that
// session's hands; without one it lists every session.
type HistoryCmd struct {
	Session string `arg:"" optional:"" help:"Session name (omit to list sessions)"`
	Config  string `short:"c" default:"teenpatti.hcl" help:"Path to HCL configuration file"`
	Store   string `help:"Store driver (overrides config)"`
	DSN     string `help:"Store data source name (overrides config)"`
	Log     bool   `help:"Include each hand's log lines"`
	Stats   bool   `help:"Include per-player statistics"`
	Export  string `type:"path" help:"Also write the session and its hands as JSON to this file"`
}

func (c *HistoryCmd) Run() error {
	cfg, err := server.LoadServerConfig(c.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.Store != "" {
		cfg.Store.Driver = c.Store
	}
	if c.DSN != "" {
		cfg.Store.DSN = c.DSN
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}
	defer func() { _ = st.Close() }()

	if c.Session == "" {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return err
		}
		renderSessions(os.Stdout, sessions)
		return nil
	}

	sess, err := st.LookupSession(ctx, c.Session)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no session named %q", c.Session)
	}
	if err != nil {
		return err
	}
	hands, err := st.ListHands(ctx, sess.ID)
	if err != nil {
		return err
	}
	renderHistory(os.Stdout, sess, hands, c.Log)
	if c.Stats {
		fmt.Fprintln(os.Stdout)
		renderStats(os.Stdout, statistics.FromHands(hands))
	}
	if c.Export != "" {
		if err := fileutil.WriteJSON(c.Export, newHistoryExport(sess, hands)); err != nil {
			return fmt.Errorf("exporting history: %w", err)
		}
		fmt.Fprintln(os.Stdout, dimStyle.Render("Exported to "+c.Export))
	}
	return nil
}

type historyExport struct {
	Session     string                   `json:"session"`
	SessionID   string                   `json:"sessionId"`
	TotalRounds int                      `json:"totalRounds"`
	Played      int                      `json:"roundsPlayed"`
	Status      string                   `json:"status"`
	CreatedAt   time.Time                `json:"createdAt"`
	EndedAt     *time.Time               `json:"endedAt,omitempty"`
	Balances    []exportBalance          `json:"balances"`
	Hands       []exportHand             `json:"hands"`
	Players     []statistics.PlayerStats `json:"players"`
}

type exportBalance struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Balance  int    `json:"sessionBalance"`
}

type exportHand struct {
	ID       string         `json:"id"`
	Round    int            `json:"round"`
	WinnerID string         `json:"winnerId"`
	Winner   string         `json:"winner"`
	Pot      int            `json:"pot"`
	Changes  []store.Change `json:"netChanges"`
	Log      []string       `json:"log,omitempty"`
	PlayedAt time.Time      `json:"playedAt"`
}

func newHistoryExport(s store.Session, hands []store.Hand) historyExport {
	out := historyExport{
		Session:     s.Name,
		SessionID:   s.ID,
		TotalRounds: s.TotalRounds,
		Played:      playedRounds(s),
		Status:      sessionStatus(s),
		CreatedAt:   s.CreatedAt,
		Balances:    make([]exportBalance, len(s.Players)),
		Hands:       make([]exportHand, len(hands)),
		Players:     statistics.FromHands(hands).Players(),
	}
	if !s.EndedAt.IsZero() {
		ended := s.EndedAt
		out.EndedAt = &ended
	}
	for i, p := range s.Players {
		out.Balances[i] = exportBalance{PlayerID: p.ID, Name: p.Name, Balance: p.Balance}
	}
	for i, h := range hands {
		out.Hands[i] = exportHand{
			ID:       h.ID,
			Round:    h.Round,
			WinnerID: h.WinnerID,
			Winner:   h.WinnerName,
			Pot:      h.Pot,
			Changes:  h.Changes,
			Log:      h.Log,
			PlayedAt: h.PlayedAt,
		}
	}
	return out
}

func renderSessions(w io.Writer, sessions []store.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No sessions recorded"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-24s %-8s %-10s %s", "SESSION", "ROUNDS", "STATUS", "CREATED")))
	for _, s := range sessions {
		fmt.Fprintf(w, "%s %-8s %-10s %s\n",
			nameStyle.Render(fmt.Sprintf("%-24s", s.Name)),
			fmt.Sprintf("%d/%d", playedRounds(s), s.TotalRounds),
			sessionStatus(s),
			dimStyle.Render(s.CreatedAt.Format("2006-01-02 15:04")))
	}
}

func renderHistory(w io.Writer, s store.Session, hands []store.Hand, withLog bool) {
	fmt.Fprintf(w, "%s  %s\n",
		headerStyle.Render("Session "+s.Name),
		dimStyle.Render(fmt.Sprintf("%s, %d of %d rounds played", sessionStatus(s), playedRounds(s), s.TotalRounds)))
	fmt.Fprintln(w)

	for _, h := range hands {
		fmt.Fprintf(w, "%s  winner %s  pot %d  %s\n",
			headerStyle.Render(fmt.Sprintf("Round %d", h.Round)),
			nameStyle.Render(h.WinnerName),
			h.Pot,
			dimStyle.Render(h.PlayedAt.Format("15:04:05")))
		for _, c := range h.Changes {
			fmt.Fprintf(w, "  %-16s %s\n", c.Name, signed(c.Change))
		}
		if withLog {
			for _, line := range h.Log {
				fmt.Fprintln(w, dimStyle.Render("  | "+line))
			}
		}
	}
	if len(hands) > 0 {
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, headerStyle.Render("Balances"))
	for _, p := range s.Players {
		fmt.Fprintf(w, "  %-16s %s\n", p.Name, signed(p.Balance))
	}
}

func renderStats(w io.Writer, stats *statistics.Session) {
	fmt.Fprintf(w, "%s  %s\n",
		headerStyle.Render("Statistics"),
		dimStyle.Render(fmt.Sprintf("%d hands, %d chips wagered, largest pot %d", stats.Hands, stats.TotalPot, stats.MaxPot)))
	if stats.Hands == 0 {
		return
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  %-16s %6s %6s %8s %8s %8s", "PLAYER", "HANDS", "WON", "NET", "AVG", "STDDEV")))
	for _, p := range stats.Players() {
		fmt.Fprintf(w, "  %-16s %6d %6d %s %8.1f %8.1f\n",
			p.Name, p.Hands, p.Wins, pad(signed(p.Net), 8), p.Mean(), p.StdDev())
	}
	if err := stats.Validate(); err != nil {
		fmt.Fprintln(w, lossStyle.Render("  "+err.Error()))
	}
}

// pad right-aligns a styled cell; width counts visible characters only.
func pad(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}

func playedRounds(s store.Session) int {
	if s.CurrentRound-1 > s.TotalRounds {
		return s.TotalRounds
	}
	return s.CurrentRound - 1
}

func sessionStatus(s store.Session) string {
	if s.Active {
		return "active"
	}
	return strings.ToLower(strings.ReplaceAll(s.EndReason, "_", " "))
}

func signed(n int) string {
	switch {
	case n > 0:
		return winStyle.Render(fmt.Sprintf("+%d", n))
	case n < 0:
		return lossStyle.Render(fmt.Sprintf("%d", n))
	default:
		return dimStyle.Render("0")
	}
}
