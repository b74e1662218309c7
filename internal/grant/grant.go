// Package grant manages time-boxed capability grants and approval requests
// as append-only JSONL event logs. Current state is always the fold of a
// log, so the CLI and the proxy can share the files without coordination
// beyond O_APPEND.
package grant

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/agentsafe/internal/audit"
)

// Grant is a time-boxed capability: actor may use tool within scope until
// expires_at.
type Grant struct {
	GrantID   string `json:"grant_id"`
	Actor     string `json:"actor"`
	Tool      string `json:"tool"`
	Scope     string `json:"scope"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

// Expired reports whether the grant is past its expiry. A grant with an
// unreadable expiry never authorizes anything.
func (g Grant) Expired(now time.Time) bool {
	return expired(g.ExpiresAt, now)
}

func expired(expiresAt string, now time.Time) bool {
	exp, err := audit.ParseTimestamp(expiresAt)
	if err != nil {
		return true
	}
	return !exp.After(now)
}

// record is one event line in a grant or approval log. Which fields are set
// depends on the action.
type record struct {
	Action     string `json:"action"`
	GrantID    string `json:"grant_id,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Actor      string `json:"actor,omitempty"`
	Tool       string `json:"tool,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Reason     string `json:"reason,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	Status     string `json:"status,omitempty"`
	Reviewer   string `json:"reviewer,omitempty"`
	ReviewedAt string `json:"reviewed_at,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// appendRecord writes one event line, opening the file per append so
// concurrent processes never interleave within a record.
func appendRecord(path string, rec record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("grant: marshal event: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("grant: create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("grant: open log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("grant: write log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("grant: sync log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("grant: close log: %w", err)
	}
	return nil
}

// readRecords returns every well-formed event in file order, skipping
// malformed lines. A missing log reads as empty.
func readRecords(path string) ([]record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("grant: open log: %w", err)
	}
	defer f.Close()

	var recs []record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // skip malformed lines
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("grant: read log: %w", err)
	}
	return recs, nil
}
