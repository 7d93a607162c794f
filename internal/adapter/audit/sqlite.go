// Package audit persists the investigation trail: every handoff the
// orchestrator performs and every consolidated result it returns.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"inquest/internal/domain"
)

// SQLiteStore implements domain.InvestigationStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("open audit db: path required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	// Parallel agent launches append handoffs concurrently; wait for the
	// writer lock instead of failing with SQLITE_BUSY.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS handoffs (
			id          TEXT PRIMARY KEY,
			context_ref TEXT NOT NULL,
			from_agent  TEXT NOT NULL,
			to_agent    TEXT NOT NULL,
			reason      TEXT NOT NULL,
			success     INTEGER NOT NULL,
			ts          TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_handoffs_context_ref ON handoffs(context_ref);
		CREATE TABLE IF NOT EXISTS investigations (
			investigation_id TEXT PRIMARY KEY,
			fallback         INTEGER NOT NULL,
			risk_score       REAL NOT NULL,
			result           TEXT NOT NULL,
			created_at       TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(_ context.Context, h domain.AgentHandoff) error {
	_, err := s.db.Exec(
		"INSERT INTO handoffs (id, context_ref, from_agent, to_agent, reason, success, ts) VALUES (?, ?, ?, ?, ?, ?, ?)",
		h.ID, h.ContextRef, h.FromAgent, h.ToAgent, h.Reason, boolInt(h.Success),
		h.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) List(_ context.Context, investigationID string) ([]domain.AgentHandoff, error) {
	rows, err := s.db.Query(
		"SELECT id, context_ref, from_agent, to_agent, reason, success, ts FROM handoffs WHERE context_ref = ? ORDER BY ts, id",
		investigationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var handoffs []domain.AgentHandoff
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		handoffs = append(handoffs, h)
	}
	return handoffs, rows.Err()
}

// SaveResult persists the consolidated result. Re-running an investigation
// under the same id replaces the previous record.
func (s *SQLiteStore) SaveResult(_ context.Context, res domain.ConsolidatedResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal consolidated result: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO investigations (investigation_id, fallback, risk_score, result, created_at) VALUES (?, ?, ?, ?, ?)",
		res.InvestigationID, boolInt(res.Fallback), res.RiskScore, string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetResult loads one persisted investigation by id.
func (s *SQLiteStore) GetResult(_ context.Context, investigationID string) (domain.ConsolidatedResult, error) {
	var payload string
	err := s.db.QueryRow(
		"SELECT result FROM investigations WHERE investigation_id = ?", investigationID,
	).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ConsolidatedResult{}, domain.ErrInvestigationNotFound
		}
		return domain.ConsolidatedResult{}, err
	}
	var res domain.ConsolidatedResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return domain.ConsolidatedResult{}, fmt.Errorf("unmarshal consolidated result: %w", err)
	}
	return res, nil
}

func scanHandoff(rows *sql.Rows) (domain.AgentHandoff, error) {
	var h domain.AgentHandoff
	var success int
	var tsStr string
	if err := rows.Scan(&h.ID, &h.ContextRef, &h.FromAgent, &h.ToAgent, &h.Reason, &success, &tsStr); err != nil {
		return domain.AgentHandoff{}, err
	}
	h.Success = success != 0
	h.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
	return h, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ domain.InvestigationStore = (*SQLiteStore)(nil)
