package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
)

func TestQueueFIFOAndAtomicDrain(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.Enqueue(ctx, protocol.QueuedMessage{
			MessageID: fmt.Sprintf("m%d", i),
			ThreadID:  "t1",
			Content:   fmt.Sprintf("message %d", i),
			AuthorID:  "u1",
			Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}

	n, err := s.QueueLen(ctx, "t1")
	if err != nil || n != 3 {
		t.Fatalf("QueueLen = (%d, %v), want 3", n, err)
	}

	msgs, err := s.Drain(ctx, "t1")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("drained %d, want 3", len(msgs))
	}
	for i, m := range msgs {
		if want := fmt.Sprintf("message %d", i); m.Content != want {
			t.Errorf("msgs[%d].Content = %q, want %q", i, m.Content, want)
		}
		if m.ThreadID != "t1" || m.AuthorID != "u1" {
			t.Errorf("msgs[%d] identity fields wrong: %+v", i, m)
		}
	}

	// Draining consumed the backlog: a second drain yields nothing.
	again, err := s.Drain(ctx, "t1")
	if err != nil {
		t.Fatalf("second Drain: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second drain returned %d messages, want 0", len(again))
	}
}

func TestDrainOnlyTouchesOwnThread(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Enqueue(ctx, protocol.QueuedMessage{MessageID: "a", ThreadID: "t1", Content: "for t1"})
	_ = s.Enqueue(ctx, protocol.QueuedMessage{MessageID: "b", ThreadID: "t2", Content: "for t2"})

	if _, err := s.Drain(ctx, "t1"); err != nil {
		t.Fatalf("Drain t1: %v", err)
	}
	n, err := s.QueueLen(ctx, "t2")
	if err != nil || n != 1 {
		t.Errorf("t2 backlog = (%d, %v), want 1 untouched", n, err)
	}
}

func TestQueueDepthsSortedByDepth(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = s.Enqueue(ctx, protocol.QueuedMessage{MessageID: fmt.Sprintf("a%d", i), ThreadID: "deep", Content: "x"})
	}
	_ = s.Enqueue(ctx, protocol.QueuedMessage{MessageID: "b0", ThreadID: "shallow", Content: "x"})

	depths, err := s.QueueDepths(ctx)
	if err != nil {
		t.Fatalf("QueueDepths: %v", err)
	}
	if len(depths) != 2 {
		t.Fatalf("got %d entries, want 2", len(depths))
	}
	if depths[0].ThreadID != "deep" || depths[0].Depth != 3 {
		t.Errorf("depths[0] = %+v, want deep/3", depths[0])
	}
	if depths[1].ThreadID != "shallow" || depths[1].Depth != 1 {
		t.Errorf("depths[1] = %+v, want shallow/1", depths[1])
	}
}
