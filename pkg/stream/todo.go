package stream

import (
	"encoding/json"
	"regexp"
	"strings"
)

// TodoHeader precedes every rendered todo checklist.
const TodoHeader = "📋 **Todo list**"

// Todo status markers.
const (
	markerCompleted  = "✅"
	markerInProgress = "🔄"
	markerPending    = "⬜"
)

// TodoItem is one entry of a TodoWrite tool call.
type TodoItem struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

// todoInput is the input payload of a TodoWrite tool_use block.
type todoInput struct {
	Todos []TodoItem `json:"todos"`
}

// RenderTodoChecklist renders one line per todo under the fixed header:
// ✅ completed, 🔄 in_progress, ⬜ pending (also the fallback for unknown
// statuses).
func RenderTodoChecklist(todos []TodoItem) string {
	var b strings.Builder
	b.WriteString(TodoHeader)
	for _, t := range todos {
		b.WriteByte('\n')
		b.WriteString(todoMarker(t.Status))
		b.WriteByte(' ')
		b.WriteString(t.Content)
	}
	return b.String()
}

func todoMarker(status string) string {
	switch status {
	case "completed":
		return markerCompleted
	case "in_progress":
		return markerInProgress
	default:
		return markerPending
	}
}

// parseTodoInput decodes the todos array from a TodoWrite input payload.
func parseTodoInput(input json.RawMessage) ([]TodoItem, bool) {
	var in todoInput
	if err := json.Unmarshal(input, &in); err != nil || len(in.Todos) == 0 {
		return nil, false
	}
	return in.Todos, true
}

// todosBlobPattern locates an embedded todos array in unframed text.
var todosBlobPattern = regexp.MustCompile(`"todos"\s*:\s*(\[[^\]]*\])`)

// TodoChecklistFromText applies the todo-checklist transformation directly
// to a raw text blob. Used when upstream output is not cleanly framed and a
// structured event cannot be parsed. Returns "" when no todo list is found.
func TodoChecklistFromText(raw string) string {
	m := todosBlobPattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	var todos []TodoItem
	if err := json.Unmarshal([]byte(m[1]), &todos); err != nil || len(todos) == 0 {
		return ""
	}
	return RenderTodoChecklist(todos)
}
