package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
)

// AppendAudit writes one immutable entry to the audit trail. Audit logging
// must never block the operation it describes: failures are logged at Warn
// and swallowed.
func (s *Store) AppendAudit(ctx context.Context, threadID, action string, details map[string]string) {
	payload := "{}"
	if len(details) > 0 {
		data, err := json.Marshal(details)
		if err != nil {
			s.log.Warn("marshal audit details", zap.String("action", action), zap.Error(err))
		} else {
			payload = string(data)
		}
	}

	now := time.Now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_entries
		(day, created_at, thread_id, action, details) VALUES (?, ?, ?, ?, ?)`,
		now.Format(protocol.DayLayout), now.Format(protocol.TimeLayout),
		threadID, action, payload,
	)
	if err != nil {
		s.log.Warn("append audit entry",
			zap.String("thread", threadID), zap.String("action", action), zap.Error(err))
	}
}

// AuditQuery specifies filter criteria for querying the audit trail.
type AuditQuery struct {
	// Day filters to one calendar day (local time of the writer).
	Day string

	// ThreadID filters entries for a single thread.
	ThreadID string

	// Action filters to one action tag.
	Action string

	// Limit restricts the number of results (0 = no limit).
	Limit int
}

// QueryAudit retrieves entries matching the filter, newest first.
func (s *Store) QueryAudit(ctx context.Context, q AuditQuery) ([]protocol.AuditEntry, error) {
	query, args := buildAuditQuery(q)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &protocol.PersistenceError{Op: "query audit", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var entries []protocol.AuditEntry
	for rows.Next() {
		var (
			e         protocol.AuditEntry
			createdAt string
			details   string
		)
		if err := rows.Scan(&e.ID, &createdAt, &e.ThreadID, &e.Action, &details); err != nil {
			s.log.Warn("skipping corrupt audit entry", zap.Error(err))
			continue
		}
		if e.Timestamp, err = time.Parse(protocol.TimeLayout, createdAt); err != nil {
			s.log.Warn("skipping audit entry with bad timestamp", zap.Error(err))
			continue
		}
		if details != "" {
			_ = json.Unmarshal([]byte(details), &e.Details)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return entries, &protocol.PersistenceError{Op: "query audit", Err: err}
	}
	return entries, nil
}

func buildAuditQuery(q AuditQuery) (string, []any) {
	var conditions []string
	var args []any

	query := "SELECT id, created_at, thread_id, action, details FROM audit_entries WHERE 1=1"

	if q.Day != "" {
		conditions = append(conditions, "day = ?")
		args = append(args, q.Day)
	}
	if q.ThreadID != "" {
		conditions = append(conditions, "thread_id = ?")
		args = append(args, q.ThreadID)
	}
	if q.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, q.Action)
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return query, args
}

// SweepAudit deletes entries older than retentionDays and returns how many
// were removed. The only path that ever deletes audit rows.
func (s *Store) SweepAudit(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Format(protocol.DayLayout)

	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_entries WHERE day < ?`, cutoff)
	if err != nil {
		return 0, &protocol.PersistenceError{Op: "sweep audit", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}
