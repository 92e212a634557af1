package stream

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
)

// Classifier turns stream events into display lines. It keeps per-submission
// running state: which tool_use id maps to which tool name, so tool results
// can be labeled, and the accumulated assistant text.
//
// Not safe for concurrent use; each worker owns one classifier per
// submission.
type Classifier struct {
	toolNames map[string]string
	text      strings.Builder
}

// NewClassifier returns a classifier with empty running state.
func NewClassifier() *Classifier {
	return &Classifier{toolNames: make(map[string]string)}
}

// AccumulatedText returns all assistant text observed so far, in order.
func (c *Classifier) AccumulatedText() string {
	return c.text.String()
}

// Classify maps one event to its kind and an optional display line.
// An empty display string means the event produces no progress output.
func (c *Classifier) Classify(ev Event) (string, Kind) {
	switch ev.Type {
	case "assistant":
		return c.classifyAssistant(ev)
	case "user":
		return c.classifyUser(ev)
	case "result":
		// Final answer channel; never a progress line.
		return "", KindFinalResult
	case "error":
		if ev.Error != "" {
			return ev.Error, KindErrorResult
		}
		if ev.Result != "" {
			return ev.Result, KindErrorResult
		}
		return "", KindErrorResult
	default:
		return "", KindOther
	}
}

func (c *Classifier) classifyAssistant(ev Event) (string, Kind) {
	if ev.Message == nil {
		return "", KindOther
	}
	var parts []string
	kind := KindAssistantText
	sawContent := false
	for _, block := range ev.Message.Content {
		switch block.Type {
		case "text":
			sawContent = true
			if t := strings.TrimSpace(block.Text); t != "" {
				parts = append(parts, t)
				c.text.WriteString(t)
				c.text.WriteByte('\n')
			}
		case "tool_use":
			sawContent = true
			kind = KindToolInvocation
			c.toolNames[block.ID] = block.Name
			if line := renderToolUse(block); line != "" {
				parts = append(parts, line)
			}
		}
	}
	if !sawContent {
		return "", KindOther
	}
	return strings.Join(parts, "\n"), kind
}

func (c *Classifier) classifyUser(ev Event) (string, Kind) {
	if ev.Message == nil {
		return "", KindOther
	}
	var parts []string
	sawResult := false
	for _, block := range ev.Message.Content {
		if block.Type != "tool_result" {
			continue
		}
		sawResult = true
		label := c.toolNames[block.ToolUseID]
		if label == "" {
			label = "Tool"
		}
		body := ShapeToolResultBody(block.BodyText(), block.IsError)
		if body == "" && !block.IsError {
			// Suppressed entirely (e.g. the todos acknowledgment).
			continue
		}
		head := fmt.Sprintf("✅ **%s:**", label)
		if block.IsError {
			head = fmt.Sprintf("❌ **%s:**", label)
		}
		if body == "" {
			parts = append(parts, head)
		} else {
			parts = append(parts, head+"\n"+body)
		}
	}
	if !sawResult {
		return "", KindOther
	}
	return strings.Join(parts, "\n"), KindToolResult
}

// renderToolUse formats one tool invocation: TodoWrite becomes the checklist,
// everything else becomes "⚡ **Name**: <description-or-first-arg>".
func renderToolUse(block ContentBlock) string {
	if block.Name == "TodoWrite" {
		if todos, ok := parseTodoInput(block.Input); ok {
			return RenderTodoChecklist(todos)
		}
		return "⚡ **TodoWrite**"
	}
	if arg := firstToolArg(block.Input); arg != "" {
		return fmt.Sprintf("⚡ **%s**: %s", block.Name, arg)
	}
	return fmt.Sprintf("⚡ **%s**", block.Name)
}

// preferredArgKeys are tried in order before falling back to the
// alphabetically first remaining key, so output is deterministic.
var preferredArgKeys = []string{"description", "command", "file_path", "path", "pattern", "query", "prompt", "url"}

func firstToolArg(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil || len(args) == 0 {
		return ""
	}
	for _, key := range preferredArgKeys {
		if v, ok := args[key]; ok {
			if s := argString(v); s != "" {
				return s
			}
		}
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s := argString(args[k]); s != "" {
			return s
		}
	}
	return ""
}

func argString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// ParseRateLimit scans final answer text for the provider's rate-limit
// signal "<marker>|<epoch seconds>" and returns the timestamp.
func ParseRateLimit(finalText string) (int64, bool) {
	idx := strings.Index(finalText, protocol.RateLimitMarker+"|")
	if idx < 0 {
		return 0, false
	}
	rest := finalText[idx+len(protocol.RateLimitMarker)+1:]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	ts, err := strconv.ParseInt(rest[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
