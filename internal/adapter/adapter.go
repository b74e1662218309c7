// Package adapter normalizes heterogeneous gateway payloads into ToolAction
// values. Each adapter is a pure function over the decoded JSON; the auto
// router picks a strict variant by route or declared version and falls back
// to generic extraction.
package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/agentsafe/internal/model"
)

// Func normalizes one decoded JSON payload into a ToolAction.
type Func func(path string, payload map[string]any, fallbackActor string) (model.ToolAction, error)

// DefaultName is the adapter used when none is configured.
const DefaultName = "openclaw_generic"

// DefaultActor is attributed to requests that carry no actor of their own.
const DefaultActor = "openclaw-agent"

// Error reports a structurally invalid payload. The proxy answers these
// with 400 instead of a policy 403.
type Error struct {
	Adapter string
	Reason  string
}

func (e *Error) Error() string {
	return e.Adapter + ": " + e.Reason
}

func errorf(adapter, format string, args ...any) *Error {
	return &Error{Adapter: adapter, Reason: fmt.Sprintf(format, args...)}
}

// ByName resolves a configured adapter name.
func ByName(name string) (Func, error) {
	switch name {
	case "light_gateway", "openclaw_strict_v1":
		return ParseStrictV1, nil
	case "openclaw_strict_v2":
		return ParseStrictV2, nil
	case "openclaw_generic":
		return ParseGeneric, nil
	case "openclaw_auto":
		return ParseAuto, nil
	}
	return nil, fmt.Errorf("adapter: unknown adapter %q", name)
}

// nonEmptyString accepts a string with visible content, returned untrimmed.
func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// truthy mirrors loose JSON truthiness: nil, false, empty strings, zero
// numbers, and empty containers all read as absent.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

// firstTruthy returns the first truthy value among the named keys.
func firstTruthy(payload map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := payload[key]; ok && truthy(v) {
			return v, true
		}
	}
	return nil, false
}

// rawPayload re-encodes the decoded payload for the ToolAction record.
func rawPayload(payload map[string]any) json.RawMessage {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return raw
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
