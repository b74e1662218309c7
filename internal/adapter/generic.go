package adapter

import "github.com/ppiankov/agentsafe/internal/model"

// ParseGeneric extracts a ToolAction from arbitrary legacy payloads on a
// best-effort basis. It never fails; fields it cannot find come out empty
// and the policy's default deny handles the rest.
func ParseGeneric(path string, payload map[string]any, fallbackActor string) (model.ToolAction, error) {
	requestID := "proxy-generated"
	if v, ok := firstTruthy(payload, "request_id", "id"); ok {
		if s := stringify(v); s != "" {
			requestID = s
		}
	}

	actor := fallbackActor
	if v, ok := firstTruthy(payload, "actor"); ok {
		if s, isString := v.(string); isString {
			actor = s
		}
	}

	sessionID := ""
	if v, ok := firstTruthy(payload, "session_id", "session"); ok {
		if s, isString := v.(string); isString {
			sessionID = s
		}
	}

	tool := ""
	if v, ok := firstTruthy(payload, "tool", "tool_name", "name", "action"); ok {
		if s, isString := v.(string); isString {
			tool = s
		}
	}

	args := map[string]any{}
	if v, ok := firstTruthy(payload, "args", "input", "payload"); ok {
		if m, isMap := v.(map[string]any); isMap {
			args = m
		} else {
			args = map[string]any{"raw": v}
		}
	}

	context := map[string]any{}
	if m, ok := payload["context"].(map[string]any); ok {
		context = m
	}

	return model.ToolAction{
		RequestID:  requestID,
		Actor:      actor,
		SessionID:  sessionID,
		Tool:       tool,
		Args:       args,
		Route:      path,
		Context:    context,
		RawPayload: rawPayload(payload),
	}, nil
}
