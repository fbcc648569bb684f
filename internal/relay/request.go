package relay

import (
	"encoding/json"

	"github.com/nulpointcorp/ai-relay/internal/upstream"
	"github.com/nulpointcorp/ai-relay/pkg/apierr"
)

type chatRequest struct {
	Message string
	History []upstream.Message
}

type assistantRequest struct {
	Message       string
	ProjectID     *string
	Authorization string
}

type historyTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// decodeFields parses body as a JSON object and returns its raw members.
// A body that is empty, malformed or not an object carries no message, so it
// is reported exactly like a missing one.
func decodeFields(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, apierr.Validation(apierr.MsgMissingMessage, err)
	}
	return fields, nil
}

// requireMessage extracts a non-empty string "message".
func requireMessage(fields map[string]json.RawMessage) (string, error) {
	raw, ok := fields["message"]
	if !ok {
		return "", apierr.Validation(apierr.MsgMissingMessage, nil)
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil || msg == "" {
		return "", apierr.Validation(apierr.MsgMissingMessage, err)
	}
	return msg, nil
}

func parseChatRequest(body []byte) (*chatRequest, error) {
	fields, err := decodeFields(body)
	if err != nil {
		return nil, err
	}
	msg, err := requireMessage(fields)
	if err != nil {
		return nil, err
	}
	return &chatRequest{Message: msg, History: parseHistory(fields["conversation_history"])}, nil
}

// parseHistory is lenient: anything but an array is treated as no history,
// and entries that are not {role, content} string pairs are dropped.
func parseHistory(raw json.RawMessage) []upstream.Message {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	out := make([]upstream.Message, 0, len(items))
	for _, item := range items {
		var turn historyTurn
		if err := json.Unmarshal(item, &turn); err != nil {
			continue
		}
		if turn.Role == "" {
			continue
		}
		out = append(out, upstream.Message{Role: turn.Role, Content: turn.Content})
	}
	return out
}

func parseAssistantRequest(body []byte, authorization string) (*assistantRequest, error) {
	fields, err := decodeFields(body)
	if err != nil {
		return nil, err
	}
	msg, err := requireMessage(fields)
	if err != nil {
		return nil, err
	}

	req := &assistantRequest{Message: msg, Authorization: authorization}
	if raw, ok := fields["project_id"]; ok {
		var id string
		if json.Unmarshal(raw, &id) == nil && id != "" {
			req.ProjectID = &id
		}
	}
	return req, nil
}
