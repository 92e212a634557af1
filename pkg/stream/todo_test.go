package stream

import "testing"

func TestRenderTodoChecklist(t *testing.T) {
	todos := []TodoItem{
		{Content: "done task", Status: "completed"},
		{Content: "current task", Status: "in_progress"},
		{Content: "future task", Status: "pending"},
		{Content: "odd task", Status: "mystery"},
	}
	want := TodoHeader + "\n✅ done task\n🔄 current task\n⬜ future task\n⬜ odd task"
	if got := RenderTodoChecklist(todos); got != want {
		t.Errorf("checklist = %q, want %q", got, want)
	}
}

func TestTodoChecklistFromText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "embedded todos array",
			raw:  `garbled prefix {"todos":[{"content":"fix build","status":"in_progress"},{"content":"push","status":"pending"}]} trailing`,
			want: TodoHeader + "\n🔄 fix build\n⬜ push",
		},
		{
			name: "no todos",
			raw:  "just some assistant text",
			want: "",
		},
		{
			name: "empty todos array",
			raw:  `{"todos":[]}`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TodoChecklistFromText(tt.raw); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
