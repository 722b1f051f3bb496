package agent

import (
	"context"
	"encoding/json"
	"strings"
)

// Request is one assistance prompt sent to the delegate agent.
type Request struct {
	SessionID string
	Prompt    string
}

// Response is the agent's structured decision. The agent is instructed to
// answer in JSON; ShouldHelp false means it judged an interruption unhelpful.
type Response struct {
	ShouldHelp bool   `json:"should_help"`
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"`
	ActionType string `json:"action_type,omitempty"`
}

// Client is anything that can answer an assistance request. The production
// client shells out to an agent CLI; tests substitute their own.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ParseResponse decodes the agent's reply. Agents sometimes wrap the JSON in
// prose or a code fence; we take the outermost JSON object if one is
// present, otherwise the whole text becomes the message. A decoded decline
// stands even with an empty message; delivering anything then would defeat
// the contract.
func ParseResponse(raw string) *Response {
	raw = strings.TrimSpace(raw)

	if body, ok := extractJSON(raw); ok {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(body), &fields); err == nil {
			_, hasDecision := fields["should_help"]
			_, hasMessage := fields["message"]
			if hasDecision || hasMessage {
				var r Response
				if err := json.Unmarshal([]byte(body), &r); err == nil {
					return &r
				}
			}
		}
	}
	return &Response{ShouldHelp: true, Message: raw}
}

func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
