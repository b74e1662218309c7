package audit

import (
	"fmt"
	"sort"
	"strings"
)

// recentEventCount bounds the per-event section of the report.
const recentEventCount = 20

// RenderReport renders up to limit ledger records as a Markdown report:
// decision totals, tool usage by frequency, and the most recent events.
func RenderReport(l *Ledger, limit int) (string, error) {
	events, err := l.Tail(limit)
	if err != nil {
		return "", err
	}
	return renderEvents(events), nil
}

func renderEvents(events []Event) string {
	if len(events) == 0 {
		return "# AgentSafe Audit Report\n\nNo events found."
	}

	var allowed, blocked int
	tools := make(map[string]int)
	for _, ev := range events {
		switch ev.Decision {
		case DecisionAllow:
			allowed++
		case DecisionBlock:
			blocked++
		}
		tool := ev.Tool
		if tool == "" {
			tool = "unknown"
		}
		tools[tool]++
	}

	var b strings.Builder
	b.WriteString("# AgentSafe Audit Report\n\n")
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Events: %d\n", len(events))
	fmt.Fprintf(&b, "- ALLOW: %d\n", allowed)
	fmt.Fprintf(&b, "- BLOCK: %d\n", blocked)
	b.WriteString("\n## Tool Usage\n")
	for _, tc := range sortByCount(tools) {
		fmt.Fprintf(&b, "- %s: %d\n", tc.name, tc.count)
	}

	b.WriteString("\n## Recent Events\n")
	recent := events
	if len(recent) > recentEventCount {
		recent = recent[len(recent)-recentEventCount:]
	}
	for _, ev := range recent {
		rid := ev.RequestID
		if rid == "" {
			rid = "-"
		}
		actor := ev.Actor
		if actor == "" {
			actor = "unknown"
		}
		tool := ev.Tool
		if tool == "" {
			tool = "unknown"
		}
		decision := ev.Decision
		if decision == "" {
			decision = "UNKNOWN"
		}
		fmt.Fprintf(&b, "- `%s` `%s` `%s` `%s`: %s\n", rid, actor, tool, decision, ev.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

type toolCount struct {
	name  string
	count int
}

// sortByCount orders tools by descending usage, name breaking ties.
func sortByCount(m map[string]int) []toolCount {
	out := make([]toolCount, 0, len(m))
	for name, count := range m {
		out = append(out, toolCount{name, count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	return out
}
