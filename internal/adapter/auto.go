package adapter

import "github.com/ppiankov/agentsafe/internal/model"

// ParseAuto routes strict-first: a payload on a canonical route or carrying
// an explicit openclaw_version gets the matching strict adapter, and any
// strict parse failure falls through to generic extraction so mixed gateway
// traffic keeps flowing.
func ParseAuto(path string, payload map[string]any, fallbackActor string) (model.ToolAction, error) {
	version, _ := payload["openclaw_version"].(string)

	if path == StrictV2Route || version == "v2" {
		if action, err := ParseStrictV2(path, payload, fallbackActor); err == nil {
			return action, nil
		}
	}
	if path == StrictV1Route || version == "v1" {
		if action, err := ParseStrictV1(path, payload, fallbackActor); err == nil {
			return action, nil
		}
	}
	return ParseGeneric(path, payload, fallbackActor)
}
