package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jmarlin/focusd/internal/logging"
	"github.com/jmarlin/focusd/internal/types"
)

// Store persists closed sessions and the assistance history in SQLite.
// Writes are best-effort from the caller's perspective: the state machine
// never blocks on persistence, and a write failure costs history, not
// correctness.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database and runs migrations. WAL keeps the
// replay tool and the daemon from blocking each other on reads.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Info("store", "database ready at %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			signature TEXT NOT NULL,
			app_name TEXT NOT NULL,
			window_title TEXT,
			page_url TEXT,
			started_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL,
			duration_sec REAL NOT NULL,
			warned INTEGER NOT NULL DEFAULT 0,
			triggered INTEGER NOT NULL DEFAULT 0,
			observations TEXT,
			outcome TEXT NOT NULL DEFAULT 'none'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_signature ON sessions(signature, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at)`,

		`CREATE TABLE IF NOT EXISTS trigger_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			mental_state TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_triggers_session ON trigger_events(session_id)`,

		`CREATE TABLE IF NOT EXISTS assistance_turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			prompt TEXT NOT NULL,
			response TEXT NOT NULL,
			action_type TEXT,
			feedback TEXT,
			fallback_used INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON assistance_turns(session_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveSession upserts a session row. Called on close, and also after trigger
// so a crash does not lose a triggered session entirely.
func (s *Store) SaveSession(snap types.SessionSnapshot) error {
	obs := make([]string, len(snap.Observations))
	for i, o := range snap.Observations {
		obs[i] = string(o)
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, signature, app_name, window_title, page_url,
			started_at, last_seen_at, duration_sec, warned, triggered, observations, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			window_title = excluded.window_title,
			page_url = excluded.page_url,
			last_seen_at = excluded.last_seen_at,
			duration_sec = excluded.duration_sec,
			warned = excluded.warned,
			triggered = excluded.triggered,
			observations = excluded.observations,
			outcome = excluded.outcome`,
		snap.ID, snap.Signature, snap.AppName, snap.WindowTitle, snap.PageURL,
		snap.StartedAt, snap.LastSeenAt, snap.Duration.Seconds(),
		boolInt(snap.Warned), boolInt(snap.Triggered),
		strings.Join(obs, ","), string(snap.Outcome))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SaveTrigger records one trigger event.
func (s *Store) SaveTrigger(ev types.TriggerEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO trigger_events (session_id, reason, mental_state, created_at)
		VALUES (?, ?, ?, ?)`,
		ev.Session.ID, string(ev.Reason), string(ev.State), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("save trigger: %w", err)
	}
	return nil
}

// SaveTurn records one assistance exchange.
func (s *Store) SaveTurn(turn types.AssistanceTurn) error {
	_, err := s.db.Exec(`
		INSERT INTO assistance_turns (id, session_id, prompt, response, action_type, feedback, fallback_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.Prompt, turn.Response, turn.ActionType,
		turn.Feedback, boolInt(turn.FallbackUsed), turn.Timestamp)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

// SetTurnFeedback attaches the user's reaction to the latest turn of a
// session.
func (s *Store) SetTurnFeedback(sessionID, feedback string) error {
	_, err := s.db.Exec(`
		UPDATE assistance_turns SET feedback = ?
		WHERE id = (SELECT id FROM assistance_turns WHERE session_id = ? ORDER BY created_at DESC LIMIT 1)`,
		feedback, sessionID)
	if err != nil {
		return fmt.Errorf("set turn feedback: %w", err)
	}
	return nil
}

// RecentSessions returns the most recently started sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]types.SessionSnapshot, error) {
	return s.querySessions(`
		SELECT id, signature, app_name, window_title, page_url, started_at,
			last_seen_at, duration_sec, warned, triggered, observations, outcome
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
}

// RecentSessionsFor returns the recent history of one task signature, used
// to tell the agent how often the user has been here before.
func (s *Store) RecentSessionsFor(signature string, limit int) ([]types.SessionSnapshot, error) {
	return s.querySessions(`
		SELECT id, signature, app_name, window_title, page_url, started_at,
			last_seen_at, duration_sec, warned, triggered, observations, outcome
		FROM sessions WHERE signature = ? ORDER BY started_at DESC LIMIT ?`, signature, limit)
}

// TurnsFor returns all assistance turns for a session, oldest first.
func (s *Store) TurnsFor(sessionID string) ([]types.AssistanceTurn, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, prompt, response, action_type, feedback, fallback_used, created_at
		FROM assistance_turns WHERE session_id = ? ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []types.AssistanceTurn
	for rows.Next() {
		var t types.AssistanceTurn
		var action, feedback sql.NullString
		var fallback int
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Prompt, &t.Response, &action, &feedback, &fallback, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.ActionType = action.String
		t.Feedback = feedback.String
		t.FallbackUsed = fallback != 0
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *Store) querySessions(query string, args ...any) ([]types.SessionSnapshot, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []types.SessionSnapshot
	for rows.Next() {
		var snap types.SessionSnapshot
		var title, url, obs, outcome sql.NullString
		var durSec float64
		var warned, triggered int
		if err := rows.Scan(&snap.ID, &snap.Signature, &snap.AppName, &title, &url,
			&snap.StartedAt, &snap.LastSeenAt, &durSec, &warned, &triggered, &obs, &outcome); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		snap.WindowTitle = title.String
		snap.PageURL = url.String
		snap.Duration = time.Duration(durSec * float64(time.Second))
		snap.Warned = warned != 0
		snap.Triggered = triggered != 0
		snap.Outcome = types.Outcome(outcome.String)
		snap.State = types.StateClosed
		if obs.String != "" {
			for _, o := range strings.Split(obs.String, ",") {
				snap.Observations = append(snap.Observations, types.MentalState(o))
			}
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
