// Package stream classifies the assistant CLI's line-delimited JSON output
// into human-readable progress lines. One decoded event produces at most one
// display string; result events carry the final answer on a separate channel
// and never produce progress output.
package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind classifies one stream event.
type Kind int

// Event kinds.
const (
	KindOther Kind = iota
	KindAssistantText
	KindToolInvocation
	KindToolResult
	KindFinalResult
	KindErrorResult
)

// String returns the kind's name, for logs.
func (k Kind) String() string {
	switch k {
	case KindAssistantText:
		return "assistant_text"
	case KindToolInvocation:
		return "tool_invocation"
	case KindToolResult:
		return "tool_result"
	case KindFinalResult:
		return "final_result"
	case KindErrorResult:
		return "error_result"
	default:
		return "other"
	}
}

// Event is one decoded line of the assistant's stream-json output. Unknown
// shapes decode into the zero value and classify as KindOther.
type Event struct {
	Type      string        `json:"type"`
	Subtype   string        `json:"subtype,omitempty"`
	Message   *EventMessage `json:"message,omitempty"`
	Result    string        `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	IsError   bool          `json:"is_error,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
}

// EventMessage is the message payload of assistant and user events.
type EventMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one block inside a message: text, tool_use, or tool_result.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// ParseEvent decodes one line of stream output.
func ParseEvent(line string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &ev); err != nil {
		return Event{}, fmt.Errorf("decode stream event: %w", err)
	}
	return ev, nil
}

// BodyText flattens a tool_result content payload to plain text. The payload
// is either a JSON string or an array of {type:"text",text:...} blocks.
func (b ContentBlock) BodyText() string {
	if len(b.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Content, &s); err == nil {
		return s
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(b.Content, &blocks); err == nil {
		var parts []string
		for _, blk := range blocks {
			if blk.Type == "text" && blk.Text != "" {
				parts = append(parts, blk.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(b.Content)
}
