package adapter

import (
	"strings"

	"github.com/ppiankov/agentsafe/internal/model"
)

// StrictV2Route is the only path the v2 execute schema is served on.
const StrictV2Route = "/v2/tools/execute"

// ParseStrictV2 handles the v2 execute schema, where the tool call is
// nested under an action object.
func ParseStrictV2(path string, payload map[string]any, fallbackActor string) (model.ToolAction, error) {
	const name = "strict_v2"

	if path != StrictV2Route {
		return model.ToolAction{}, errorf(name, "unsupported route: %s", path)
	}

	requestID, ok := nonEmptyString(payload["request_id"])
	if !ok {
		return model.ToolAction{}, errorf(name, "request_id must be a non-empty string")
	}
	action, ok := payload["action"].(map[string]any)
	if !ok {
		return model.ToolAction{}, errorf(name, "action must be an object")
	}
	tool, ok := nonEmptyString(action["name"])
	if !ok {
		return model.ToolAction{}, errorf(name, "action.name must be a non-empty string")
	}
	args, ok := action["args"].(map[string]any)
	if !ok {
		return model.ToolAction{}, errorf(name, "action.args must be an object")
	}

	actor := fallbackActor
	if v, present := payload["actor"]; present && truthy(v) {
		s, isString := v.(string)
		if !isString || strings.TrimSpace(s) == "" {
			return model.ToolAction{}, errorf(name, "actor must be a non-empty string")
		}
		actor = s
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
		if v != "v2" {
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
