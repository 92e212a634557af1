package store

import (
	"context"
	"sort"
	"time"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
)

// Enqueue appends one message to a thread's backlog. Insertion order is
// delivery order.
func (s *Store) Enqueue(ctx context.Context, msg protocol.QueuedMessage) error {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO message_queue
		(message_id, thread_id, content, author_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.MessageID, msg.ThreadID, msg.Content, msg.AuthorID,
		ts.Format(protocol.TimeLayout),
	)
	if err != nil {
		return &protocol.PersistenceError{Op: "enqueue message", Err: err}
	}
	return nil
}

// Drain atomically removes and returns the full backlog of a thread in
// insertion order. Select and delete share one transaction so a message can
// never be returned twice or lost between the two steps.
func (s *Store) Drain(ctx context.Context, threadID string) ([]protocol.QueuedMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &protocol.PersistenceError{Op: "drain queue", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT message_id, content, author_id, created_at
		FROM message_queue WHERE thread_id = ? ORDER BY id`, threadID)
	if err != nil {
		return nil, &protocol.PersistenceError{Op: "drain queue", Err: err}
	}

	var msgs []protocol.QueuedMessage
	for rows.Next() {
		var (
			m         protocol.QueuedMessage
			createdAt string
		)
		if err := rows.Scan(&m.MessageID, &m.Content, &m.AuthorID, &createdAt); err != nil {
			_ = rows.Close()
			return nil, &protocol.PersistenceError{Op: "drain queue", Err: err}
		}
		m.ThreadID = threadID
		m.Timestamp, _ = time.Parse(protocol.TimeLayout, createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, &protocol.PersistenceError{Op: "drain queue", Err: err}
	}
	_ = rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_queue WHERE thread_id = ?`, threadID); err != nil {
		return nil, &protocol.PersistenceError{Op: "drain queue", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &protocol.PersistenceError{Op: "drain queue", Err: err}
	}
	return msgs, nil
}

// QueueLen returns the backlog length of one thread.
func (s *Store) QueueLen(ctx context.Context, threadID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM message_queue WHERE thread_id = ?`, threadID).Scan(&n)
	if err != nil {
		return 0, &protocol.PersistenceError{Op: "queue length", Err: err}
	}
	return n, nil
}

// QueueDepths returns the backlog length of every thread with at least one
// queued message, deepest first. Ties break on thread id so the order is
// stable.
func (s *Store) QueueDepths(ctx context.Context) ([]protocol.QueueDepth, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, COUNT(*) FROM message_queue GROUP BY thread_id`)
	if err != nil {
		return nil, &protocol.PersistenceError{Op: "queue depths", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var depths []protocol.QueueDepth
	for rows.Next() {
		var d protocol.QueueDepth
		if err := rows.Scan(&d.ThreadID, &d.Depth); err != nil {
			return nil, &protocol.PersistenceError{Op: "queue depths", Err: err}
		}
		depths = append(depths, d)
	}
	if err := rows.Err(); err != nil {
		return depths, &protocol.PersistenceError{Op: "queue depths", Err: err}
	}

	sort.Slice(depths, func(i, j int) bool {
		if depths[i].Depth != depths[j].Depth {
			return depths[i].Depth > depths[j].Depth
		}
		return depths[i].ThreadID < depths[j].ThreadID
	})
	return depths, nil
}
