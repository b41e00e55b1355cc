package server

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/teenpatti/internal/game"
	"github.com/lox/teenpatti/internal/store"
)

const (
	defaultRecorderQueue   = 256
	defaultRecorderTimeout = 5 * time.Second
)

var ErrRecorderFull = errors.New("recorder queue full")

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	Store        store.Store
	Clock        quartz.Clock
	Logger       *log.Logger
	QueueSize    int
	WriteTimeout time.Duration
}

type record struct {
	hand   *store.Hand
	roster []store.Player

	sessionID string
	reason    string
	at        time.Time
}

// Recorder persists completed hands and session ends off the session
// goroutines. Writes are applied in submission order by a single worker.
type Recorder struct {
	store   store.Store
	clock   quartz.Clock
	logger  *log.Logger
	timeout time.Duration
	queue   chan record
}

// NewRecorder creates a recorder. Run must be called to start writing.
func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultRecorderQueue
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultRecorderTimeout
	}
	return &Recorder{
		store:   cfg.Store,
		clock:   cfg.Clock,
		logger:  cfg.Logger.WithPrefix("recorder"),
		timeout: cfg.WriteTimeout,
		queue:   make(chan record, cfg.QueueSize),
	}
}

// RecordHand queues a hand summary. It never blocks; a full queue drops the
// record and returns ErrRecorderFull.
func (r *Recorder) RecordHand(ev game.HandCompleteEvent) error {
	h := handRecord(ev)
	if h.PlayedAt.IsZero() {
		h.PlayedAt = r.clock.Now()
	}
	return r.enqueue(record{hand: &h})
}

// RecordRoster queues a roster replacement after a roster edit.
func (r *Recorder) RecordRoster(sessionID string, players []game.Player) error {
	roster := make([]store.Player, len(players))
	for i, p := range players {
		roster[i] = store.Player{ID: p.ID, Name: p.Name, Seat: p.Seat, Balance: p.Balance}
	}
	return r.enqueue(record{sessionID: sessionID, roster: roster})
}

// RecordEnd queues the end of a session.
func (r *Recorder) RecordEnd(sessionID string, reason game.EndReason) error {
	return r.enqueue(record{sessionID: sessionID, reason: string(reason), at: r.clock.Now()})
}

func (r *Recorder) enqueue(rec record) error {
	select {
	case r.queue <- rec:
		return nil
	default:
		r.logger.Error("Dropping record, queue full", "session", rec.session())
		return ErrRecorderFull
	}
}

// Run writes queued records until ctx is cancelled, then drains whatever is
// still queued before returning.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(rec record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var err error
	switch {
	case rec.hand != nil:
		err = r.store.RecordHand(ctx, *rec.hand)
	case rec.roster != nil:
		err = r.store.SaveRoster(ctx, rec.sessionID, rec.roster)
	default:
		err = r.store.EndSession(ctx, rec.sessionID, rec.reason, rec.at)
	}
	if err != nil {
		r.logger.Error("Failed to persist record", "session", rec.session(), "error", err)
		return
	}

	switch {
	case rec.hand != nil:
		r.logger.Debug("Hand recorded", "session", rec.hand.SessionID, "hand", rec.hand.ID, "round", rec.hand.Round)
	case rec.roster != nil:
		r.logger.Debug("Roster saved", "session", rec.sessionID, "players", len(rec.roster))
	default:
		r.logger.Info("Session end recorded", "session", rec.sessionID, "reason", rec.reason)
	}
}

func (rec record) session() string {
	if rec.hand != nil {
		return rec.hand.SessionID
	}
	return rec.sessionID
}

func handRecord(ev game.HandCompleteEvent) store.Hand {
	h := store.Hand{
		ID:         ev.HandID,
		SessionID:  ev.SessionID,
		Round:      ev.Round,
		NextRound:  ev.NextRound,
		WinnerID:   ev.WinnerID,
		WinnerName: ev.WinnerName,
		Pot:        ev.Pot,
		Log:        append([]string(nil), ev.Log...),
		Changes:    make([]store.Change, len(ev.NetChanges)),
		PlayedAt:   ev.Timestamp(),
	}
	for i, c := range ev.NetChanges {
		h.Changes[i] = store.Change{PlayerID: c.PlayerID, Name: c.Name, Change: c.Change}
	}
	return h
}
