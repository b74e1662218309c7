package audit

import (
	"fmt"
	"strings"
	"testing"
)

func TestRenderReportEmpty(t *testing.T) {
	l := tempLedger(t)
	got, err := RenderReport(l, 500)
	if err != nil {
		t.Fatalf("RenderReport: %v", err)
	}
	if !strings.Contains(got, "No events found.") {
		t.Errorf("empty ledger report = %q, want no-events notice", got)
	}
}

func TestRenderReport(t *testing.T) {
	l := tempLedger(t)
	seed := []Event{
		{RequestID: "r1", Actor: "cli", Tool: "shell.run", Decision: DecisionAllow, Reason: "command \"ls\" allowed by rule cmd_0"},
		{RequestID: "r2", Actor: "cli", Tool: "shell.run", Decision: DecisionBlock, Reason: "command \"rm\" is not allowlisted", RuleID: "cmd_not_allowlisted"},
		{RequestID: "r3", Actor: "bot", Tool: "http.fetch", Decision: DecisionAllow, Reason: "domain \"github.com\" allowed on port 443"},
	}
	for _, ev := range seed {
		if err := l.Append(ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := RenderReport(l, 500)
	if err != nil {
		t.Fatalf("RenderReport: %v", err)
	}
	for _, want := range []string{
		"# AgentSafe Audit Report",
		"- Events: 3",
		"- ALLOW: 2",
		"- BLOCK: 1",
		"- shell.run: 2",
		"- http.fetch: 1",
		"`r2` `cli` `shell.run` `BLOCK`: command \"rm\" is not allowlisted",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q\nreport:\n%s", want, got)
		}
	}
}

func TestRenderReportRecentEventWindow(t *testing.T) {
	var events []Event
	for i := 0; i < 30; i++ {
		events = append(events, Event{RequestID: fmt.Sprintf("req-%02d", i), Tool: "shell.run", Decision: DecisionAllow})
	}
	got := renderEvents(events)
	if strings.Contains(got, "`req-00`") {
		t.Errorf("report includes events older than the recent window")
	}
	if !strings.Contains(got, "`req-29`") {
		t.Errorf("report missing the newest event")
	}
	if !strings.Contains(got, "- Events: 30") {
		t.Errorf("summary should count all events, not just recent ones")
	}
}
