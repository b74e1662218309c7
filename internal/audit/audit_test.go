package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func tempLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(filepath.Join(t.TempDir(), ".agentsafe", "ledger.jsonl"))
}

func TestAppendAndRead(t *testing.T) {
	l := tempLedger(t)
	for i := 0; i < 3; i++ {
		ev := Event{
			RequestID: fmt.Sprintf("req-%d", i),
			Actor:     "cli",
			Tool:      "shell.run",
			Decision:  DecisionAllow,
			Reason:    "command allowed",
			RuleID:    "cmd_0",
		}
		if err := l.Append(ev); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	events, err := l.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, ev := range events {
		if want := fmt.Sprintf("req-%d", i); ev.RequestID != want {
			t.Errorf("event %d: request_id = %q, want %q", i, ev.RequestID, want)
		}
		if ev.Timestamp == "" {
			t.Errorf("event %d: timestamp not stamped", i)
		}
		if _, err := ParseTimestamp(ev.Timestamp); err != nil {
			t.Errorf("event %d: %v", i, err)
		}
	}
}

func TestAppendKeepsExplicitTimestamp(t *testing.T) {
	l := tempLedger(t)
	if err := l.Append(Event{Timestamp: "2026-01-02T03:04:05.000Z", RequestID: "r1", Decision: DecisionBlock}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	events, err := l.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if events[0].Timestamp != "2026-01-02T03:04:05.000Z" {
		t.Errorf("timestamp = %q, want explicit value preserved", events[0].Timestamp)
	}
}

func TestReadMissingLedger(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), "absent.jsonl"))
	events, err := l.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events from missing ledger, want 0", len(events))
	}
}

func TestReadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	content := strings.Join([]string{
		`{"timestamp":"2026-01-01T00:00:00.000Z","request_id":"a","decision":"ALLOW"}`,
		`{"this is not json`,
		``,
		`garbage line`,
		`{"timestamp":"2026-01-01T00:00:01.000Z","request_id":"b","decision":"BLOCK"}`,
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write ledger: %v", err)
	}

	events, err := NewLedger(path).Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (malformed lines skipped)", len(events))
	}
	if events[0].RequestID != "a" || events[1].RequestID != "b" {
		t.Errorf("got request ids %q, %q; want a, b", events[0].RequestID, events[1].RequestID)
	}
}

func TestTail(t *testing.T) {
	l := tempLedger(t)
	for i := 0; i < 10; i++ {
		if err := l.Append(Event{RequestID: fmt.Sprintf("req-%d", i), Decision: DecisionAllow}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	events, err := l.Tail(3)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, want := range []string{"req-7", "req-8", "req-9"} {
		if events[i].RequestID != want {
			t.Errorf("tail[%d] = %q, want %q", i, events[i].RequestID, want)
		}
	}
}

func TestAppendConcurrent(t *testing.T) {
	l := tempLedger(t)
	const workers, perWorker = 8, 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ev := Event{
					RequestID: fmt.Sprintf("w%d-%d", w, i),
					Decision:  DecisionAllow,
				}
				if err := l.Append(ev); err != nil {
					t.Errorf("Append: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	events, err := l.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != workers*perWorker {
		t.Errorf("got %d events, want %d (no torn or lost lines)", len(events), workers*perWorker)
	}
}

func TestNewRequestID(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if a == b {
		t.Errorf("consecutive request ids collide: %q", a)
	}
	if len(a) != 36 {
		t.Errorf("request id %q is not UUID-shaped", a)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"2026-01-02T03:04:05.000Z", false},
		{"2026-01-02T03:04:05Z", false},
		{"2026-01-02T03:04:05.123456789Z", false},
		{"2026-01-02T03:04:05+02:00", false},
		{"yesterday", true},
		{"", true},
	}
	for _, tt := range tests {
		_, err := ParseTimestamp(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimestamp(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestTimestampSortsLexicographically(t *testing.T) {
	early := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(TimestampFormat)
	late := time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC).Format(TimestampFormat)
	if !(early < late) {
		t.Errorf("timestamps do not sort: %q >= %q", early, late)
	}
}
