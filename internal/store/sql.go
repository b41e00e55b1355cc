package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL UNIQUE,
    total_rounds  INTEGER NOT NULL,
    current_round INTEGER NOT NULL,
    active        INTEGER NOT NULL,
    end_reason    TEXT NOT NULL DEFAULT '',
    created_at_ms BIGINT NOT NULL,
    ended_at_ms   BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS players (
    id         TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    name       TEXT NOT NULL,
    seat       INTEGER NOT NULL,
    balance    INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS hands (
    id           TEXT PRIMARY KEY,
    session_id   TEXT NOT NULL REFERENCES sessions(id),
    round        INTEGER NOT NULL,
    winner_id    TEXT NOT NULL,
    winner_name  TEXT NOT NULL,
    pot          INTEGER NOT NULL,
    log_json     TEXT NOT NULL,
    changes_json TEXT NOT NULL,
    played_at_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS hands_session_round ON hands (session_id, round);
`

// SQL is a Store backed by database/sql. The same schema and queries serve
// SQLite and Postgres; queries are written with ? placeholders and rebound
// for Postgres.
type SQL struct {
	db      *sql.DB
	dollars bool
}

// NewSQLite opens (creating if needed) a SQLite database at path. Use
// ":memory:" for a throwaway database.
func NewSQLite(ctx context.Context, path string) (*SQL, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: empty sqlite database path")
	}
	if path != ":memory:" {
		parent := filepath.Dir(path)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	return newSQL(ctx, db, false)
}

// NewPostgres connects to a Postgres database using a lib/pq DSN.
func NewPostgres(ctx context.Context, dsn string) (*SQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return newSQL(ctx, db, true)
}

func newSQL(ctx context.Context, db *sql.DB, dollars bool) (*SQL, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	return &SQL{db: db, dollars: dollars}, nil
}

// Close closes the underlying database.
func (s *SQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) q(query string) string {
	if s.dollars {
		return rebind(query)
	}
	return query
}

func (s *SQL) CreateSession(ctx context.Context, sess Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM sessions WHERE name = ?`), sess.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: create session %q: %w", sess.Name, err)
	}
	if exists > 0 {
		return fmt.Errorf("store: session %q: %w", sess.Name, ErrExists)
	}

	_, err = tx.ExecContext(ctx, s.q(`
INSERT INTO sessions (id, name, total_rounds, current_round, active, end_reason, created_at_ms, ended_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		sess.ID, sess.Name, sess.TotalRounds, sess.CurrentRound, boolInt(sess.Active), sess.EndReason,
		millis(sess.CreatedAt), millis(sess.EndedAt))
	if err != nil {
		return fmt.Errorf("store: create session %q: %w", sess.Name, err)
	}

	for _, p := range sess.Players {
		_, err = tx.ExecContext(ctx, s.q(`
INSERT INTO players (id, session_id, name, seat, balance) VALUES (?, ?, ?, ?, ?)`),
			p.ID, sess.ID, p.Name, p.Seat, p.Balance)
		if err != nil {
			return fmt.Errorf("store: create player %q: %w", p.Name, err)
		}
	}
	return tx.Commit()
}

const sessionColumns = `id, name, total_rounds, current_round, active, end_reason, created_at_ms, ended_at_ms`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		sess             Session
		active           int
		created, endedAt int64
	)
	err := row.Scan(&sess.ID, &sess.Name, &sess.TotalRounds, &sess.CurrentRound, &active, &sess.EndReason, &created, &endedAt)
	if err != nil {
		return Session{}, err
	}
	sess.Active = active != 0
	sess.CreatedAt = fromMillis(created)
	sess.EndedAt = fromMillis(endedAt)
	return sess, nil
}

func (s *SQL) LookupSession(ctx context.Context, name string) (Session, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+sessionColumns+` FROM sessions WHERE name = ?`), name)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("store: session %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("store: lookup session %q: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT id, name, seat, balance FROM players WHERE session_id = ? ORDER BY seat`), sess.ID)
	if err != nil {
		return Session{}, fmt.Errorf("store: load players: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.ID, &p.Name, &p.Seat, &p.Balance); err != nil {
			return Session{}, err
		}
		sess.Players = append(sess.Players, p)
	}
	return sess, rows.Err()
}

func (s *SQL) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at_ms`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQL) RecordHand(ctx context.Context, h Hand) error {
	logJSON, err := json.Marshal(h.Log)
	if err != nil {
		return err
	}
	changesJSON, err := json.Marshal(h.Changes)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.q(`UPDATE sessions SET current_round = ? WHERE id = ?`), h.NextRound, h.SessionID)
	if err != nil {
		return fmt.Errorf("store: record hand %s: %w", h.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: session %q: %w", h.SessionID, ErrNotFound)
	}

	_, err = tx.ExecContext(ctx, s.q(`
INSERT INTO hands (id, session_id, round, winner_id, winner_name, pot, log_json, changes_json, played_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		h.ID, h.SessionID, h.Round, h.WinnerID, h.WinnerName, h.Pot, string(logJSON), string(changesJSON), millis(h.PlayedAt))
	if err != nil {
		return fmt.Errorf("store: record hand %s: %w", h.ID, err)
	}

	for _, c := range h.Changes {
		if c.Change == 0 {
			continue
		}
		_, err = tx.ExecContext(ctx, s.q(`UPDATE players SET balance = balance + ? WHERE id = ? AND session_id = ?`),
			c.Change, c.PlayerID, h.SessionID)
		if err != nil {
			return fmt.Errorf("store: apply balance for %q: %w", c.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQL) SaveRoster(ctx context.Context, sessionID string, players []Player) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM sessions WHERE id = ?`), sessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: save roster: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("store: session %q: %w", sessionID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM players WHERE session_id = ?`), sessionID); err != nil {
		return fmt.Errorf("store: save roster: %w", err)
	}
	for _, p := range players {
		_, err = tx.ExecContext(ctx, s.q(`
INSERT INTO players (id, session_id, name, seat, balance) VALUES (?, ?, ?, ?, ?)`),
			p.ID, sessionID, p.Name, p.Seat, p.Balance)
		if err != nil {
			return fmt.Errorf("store: save player %q: %w", p.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQL) EndSession(ctx context.Context, sessionID, reason string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`
UPDATE sessions SET active = 0, end_reason = ?, ended_at_ms = ? WHERE id = ?`),
		reason, millis(endedAt), sessionID)
	if err != nil {
		return fmt.Errorf("store: end session %q: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: session %q: %w", sessionID, ErrNotFound)
	}
	return nil
}

func (s *SQL) ListHands(ctx context.Context, sessionID string) ([]Hand, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT id, session_id, round, winner_id, winner_name, pot, log_json, changes_json, played_at_ms
FROM hands WHERE session_id = ? ORDER BY round`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list hands: %w", err)
	}
	defer rows.Close()

	var out []Hand
	for rows.Next() {
		var (
			h                    Hand
			logJSON, changesJSON string
			playedAt             int64
		)
		if err := rows.Scan(&h.ID, &h.SessionID, &h.Round, &h.WinnerID, &h.WinnerName, &h.Pot, &logJSON, &changesJSON, &playedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(logJSON), &h.Log); err != nil {
			return nil, fmt.Errorf("store: decode log of hand %s: %w", h.ID, err)
		}
		if err := json.Unmarshal([]byte(changesJSON), &h.Changes); err != nil {
			return nil, fmt.Errorf("store: decode changes of hand %s: %w", h.ID, err)
		}
		h.NextRound = h.Round + 1
		h.PlayedAt = fromMillis(playedAt)
		out = append(out, h)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
