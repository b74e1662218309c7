// Package telemetry converts ledger records into OTLP/HTTP JSON spans so
// enforcement decisions land in whatever trace backend the fleet already
// runs. One ledger record becomes one zero-duration span.
package telemetry

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/agentsafe/internal/audit"
)

const (
	// BatchSize caps how many spans go into one POST.
	BatchSize = 100

	defaultTimeout = 10 * time.Second
	scopeName      = "agentsafe"
	tracesPath     = "/v1/traces"

	statusOK    = 1
	statusError = 2
)

// Exporter posts ledger events to an OTLP/HTTP collector endpoint.
type Exporter struct {
	Endpoint string
	Timeout  time.Duration
}

type attrValue struct {
	StringValue string `json:"stringValue"`
}

type attribute struct {
	Key   string    `json:"key"`
	Value attrValue `json:"value"`
}

type spanStatus struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type span struct {
	TraceID           string      `json:"traceId"`
	SpanID            string      `json:"spanId"`
	Name              string      `json:"name"`
	Kind              int         `json:"kind"`
	StartTimeUnixNano string      `json:"startTimeUnixNano"`
	EndTimeUnixNano   string      `json:"endTimeUnixNano"`
	Attributes        []attribute `json:"attributes"`
	Status            spanStatus  `json:"status"`
}

type instrumentationScope struct {
	Name string `json:"name"`
}

type scopeSpans struct {
	Scope instrumentationScope `json:"scope"`
	Spans []span               `json:"spans"`
}

type resource struct {
	Attributes []attribute `json:"attributes"`
}

type resourceSpans struct {
	Resource   resource     `json:"resource"`
	ScopeSpans []scopeSpans `json:"scopeSpans"`
}

type tracePayload struct {
	ResourceSpans []resourceSpans `json:"resourceSpans"`
}

// Payload renders one batch of events as an OTLP/HTTP JSON body.
func Payload(events []audit.Event) ([]byte, error) {
	spans := make([]span, 0, len(events))
	for _, ev := range events {
		spans = append(spans, spanFromEvent(ev))
	}
	body := tracePayload{
		ResourceSpans: []resourceSpans{{
			Resource: resource{Attributes: []attribute{
				strAttr("service.name", scopeName),
			}},
			ScopeSpans: []scopeSpans{{
				Scope: instrumentationScope{Name: scopeName},
				Spans: spans,
			}},
		}},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("telemetry: marshal payload: %w", err)
	}
	return data, nil
}

// Export posts events in batches of BatchSize and returns how many events
// were accepted before the first failure.
func (e *Exporter) Export(events []audit.Event) (int, error) {
	if e.Endpoint == "" {
		return 0, fmt.Errorf("telemetry: no endpoint configured")
	}
	client := &http.Client{Timeout: e.timeout()}
	url := strings.TrimSuffix(e.Endpoint, "/") + tracesPath

	exported := 0
	for start := 0; start < len(events); start += BatchSize {
		end := start + BatchSize
		if end > len(events) {
			end = len(events)
		}
		batch := events[start:end]

		body, err := Payload(batch)
		if err != nil {
			return exported, err
		}
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return exported, fmt.Errorf("telemetry: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return exported, fmt.Errorf("telemetry: post batch: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return exported, fmt.Errorf("telemetry: collector rejected batch: HTTP %d", resp.StatusCode)
		}
		exported += len(batch)
	}
	return exported, nil
}

func (e *Exporter) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return defaultTimeout
}

func spanFromEvent(ev audit.Event) span {
	name := ev.Tool
	if name == "" {
		name = "event"
	}

	ts, err := audit.ParseTimestamp(ev.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	nanos := strconv.FormatInt(ts.UnixNano(), 10)

	attrs := make([]attribute, 0, 4)
	if ev.Actor != "" {
		attrs = append(attrs, strAttr("actor", ev.Actor))
	}
	attrs = append(attrs, strAttr("decision", ev.Decision))
	if ev.RuleID != "" {
		attrs = append(attrs, strAttr("rule_id", ev.RuleID))
	}
	if ev.Reason != "" {
		attrs = append(attrs, strAttr("reason", ev.Reason))
	}

	st := spanStatus{Code: statusOK}
	if ev.Decision == audit.DecisionBlock {
		st = spanStatus{Code: statusError, Message: ev.Reason}
	}

	return span{
		TraceID:           randomHex(16),
		SpanID:            randomHex(8),
		Name:              name,
		Kind:              1, // SPAN_KIND_INTERNAL
		StartTimeUnixNano: nanos,
		EndTimeUnixNano:   nanos,
		Attributes:        attrs,
		Status:            st,
	}
}

func strAttr(key, value string) attribute {
	return attribute{Key: key, Value: attrValue{StringValue: value}}
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%0*x", n*2, time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
