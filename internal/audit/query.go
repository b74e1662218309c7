package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// QueryOptions filter indexed ledger records. Zero-valued fields match
// everything.
type QueryOptions struct {
	Actor    string
	Tool     string
	Decision string
	RuleID   string
	Since    string // inclusive lower bound, any accepted timestamp layout
	Limit    int
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	request_id TEXT,
	actor TEXT,
	tool TEXT,
	decision TEXT,
	rule_id TEXT,
	raw_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_events(actor);
CREATE INDEX IF NOT EXISTS idx_audit_tool ON audit_events(tool);
CREATE INDEX IF NOT EXISTS idx_audit_rule ON audit_events(rule_id);
`

// Index is a sqlite view over the ledger, rebuilt on demand. The JSONL file
// stays the source of truth; the database only serves filtered reads.
type Index struct {
	db *sql.DB
}

// OpenIndex opens or creates the sqlite index at dbPath. An empty path opens
// an in-memory index.
func OpenIndex(dbPath string) (*Index, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	} else if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("audit: create index dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("audit: open index: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: enable WAL: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the database handle.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Rebuild replaces the index contents with the current ledger records and
// reports how many were loaded.
func (ix *Index) Rebuild(ctx context.Context, l *Ledger) (int, error) {
	events, err := l.Read()
	if err != nil {
		return 0, err
	}
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("audit: begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM audit_events"); err != nil {
		return 0, fmt.Errorf("audit: clear index: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_events (timestamp, request_id, actor, tool, decision, rule_id, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("audit: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return 0, fmt.Errorf("audit: marshal event: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			normalizeTimestamp(ev.Timestamp),
			ev.RequestID,
			ev.Actor,
			ev.Tool,
			ev.Decision,
			ev.RuleID,
			string(raw),
		)
		if err != nil {
			return 0, fmt.Errorf("audit: insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("audit: commit rebuild: %w", err)
	}
	return len(events), nil
}

// Query returns indexed records matching opts, newest first.
func (ix *Index) Query(ctx context.Context, opts QueryOptions) ([]Event, error) {
	query := "SELECT raw_json FROM audit_events WHERE 1=1"
	var args []any

	if opts.Actor != "" {
		query += " AND actor = ?"
		args = append(args, opts.Actor)
	}
	if opts.Tool != "" {
		query += " AND tool = ?"
		args = append(args, opts.Tool)
	}
	if opts.Decision != "" {
		query += " AND decision = ?"
		args = append(args, opts.Decision)
	}
	if opts.RuleID != "" {
		query += " AND rule_id = ?"
		args = append(args, opts.RuleID)
	}
	if opts.Since != "" {
		t, err := ParseTimestamp(opts.Since)
		if err != nil {
			return nil, err
		}
		query += " AND timestamp >= ?"
		args = append(args, t.UTC().Format(TimestampFormat))
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query index: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("audit: scan row: %w", err)
		}
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("audit: unmarshal row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate rows: %w", err)
	}
	return events, nil
}

// normalizeTimestamp rewrites any accepted layout into ledger format so that
// string comparison orders rows correctly. Unparseable values pass through.
func normalizeTimestamp(s string) string {
	t, err := ParseTimestamp(s)
	if err != nil {
		return s
	}
	return t.UTC().Format(TimestampFormat)
}
