// Package audit appends enforcement decisions to a JSONL ledger and reads
// them back for reports and queries. The ledger is shared between the CLI
// and the proxy, so every append opens the file fresh with O_APPEND and
// closes it again; no process holds a long-lived handle.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimestampFormat renders UTC instants that sort lexicographically.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Timestamp returns the current time in ledger format.
func Timestamp() string {
	return time.Now().UTC().Format(TimestampFormat)
}

// ParseTimestamp accepts ledger timestamps plus common RFC 3339 variants so
// records written by other tooling still order correctly.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{TimestampFormat, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("audit: bad timestamp %q", s)
}

// Ledger is the append-only decision log, one JSON object per line.
type Ledger struct {
	path string
	mu   sync.Mutex
}

// NewLedger returns a ledger backed by the given file path. The file and
// its directory are created on first append.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the backing file path.
func (l *Ledger) Path() string {
	return l.path
}

// Append stamps the event if needed and writes it as one line. The mutex
// serializes appends within this process; O_APPEND keeps lines whole across
// processes sharing the file.
func (l *Ledger) Append(ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Timestamp == "" {
		ev.Timestamp = Timestamp()
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("audit: create ledger dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: open ledger: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("audit: write ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("audit: sync ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audit: close ledger: %w", err)
	}
	return nil
}

// Read returns every well-formed record in file order. Malformed lines are
// skipped so a torn write or foreign record never wedges replay. A missing
// ledger reads as empty.
func (l *Ledger) Read() ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open ledger: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue // skip malformed lines
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read ledger: %w", err)
	}
	return events, nil
}

// Tail returns the last n records in file order.
func (l *Ledger) Tail(n int) ([]Event, error) {
	events, err := l.Read()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}
