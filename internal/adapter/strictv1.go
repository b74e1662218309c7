package adapter

import (
	"strings"

	"github.com/ppiankov/agentsafe/internal/model"
)

// StrictV1Route is the only path the light-gateway schema is served on.
const StrictV1Route = "/v1/tools/execute"

// ParseStrictV1 handles the light-gateway execute schema: request_id, tool,
// and args are required at the top level.
func ParseStrictV1(path string, payload map[string]any, fallbackActor string) (model.ToolAction, error) {
	const name = "strict_v1"

	if path != StrictV1Route {
		return model.ToolAction{}, errorf(name, "unsupported route: %s", path)
	}

	var missing []string
	for _, field := range []string{"request_id", "tool", "args"} {
		if _, ok := payload[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return model.ToolAction{}, errorf(name, "missing required fields: %s", strings.Join(missing, ", "))
	}

	requestID, ok := nonEmptyString(payload["request_id"])
	if !ok {
		return model.ToolAction{}, errorf(name, "request_id must be a non-empty string")
	}
	tool, ok := nonEmptyString(payload["tool"])
	if !ok {
		return model.ToolAction{}, errorf(name, "tool must be a non-empty string")
	}
	args, ok := payload["args"].(map[string]any)
	if !ok {
		return model.ToolAction{}, errorf(name, "args must be an object")
	}

	actor := fallbackActor
	if v, present := payload["actor"]; present && v != nil {
		actor, ok = nonEmptyString(v)
		if !ok {
			return model.ToolAction{}, errorf(name, "actor must be a non-empty string")
		}
	}

	sessionID := ""
	if v, present := payload["session_id"]; present && v != nil {
		sessionID, ok = v.(string)
		if !ok {
			return model.ToolAction{}, errorf(name, "session_id must be a string")
		}
	}

	context := map[string]any{}
	if v, present := payload["context"]; present && v != nil {
		context, ok = v.(map[string]any)
		if !ok {
			return model.ToolAction{}, errorf(name, "context must be an object")
		}
	}

	if v, present := payload["openclaw_version"]; present {
		if v != "v1" {
			return model.ToolAction{}, errorf(name, "unsupported openclaw_version: %v", v)
		}
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
