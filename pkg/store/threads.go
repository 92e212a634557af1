package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
)

const threadColumns = `thread_id, repo_org, repo_name, repo_path, isolated_copy_path,
	status, created_at, last_active_at, sandbox_json, session_id, rate_limit_ts, auto_resume`

// ErrThreadNotFound is returned when no record exists for a thread id.
var ErrThreadNotFound = errors.New("thread record not found")

// CreateThread inserts a fresh record. Fails if the thread already exists.
func (s *Store) CreateThread(ctx context.Context, rec *protocol.ThreadRecord) error {
	org, name := sql.NullString{}, sql.NullString{}
	if rec.Repository != nil {
		org = sql.NullString{String: rec.Repository.Org, Valid: true}
		name = sql.NullString{String: rec.Repository.Name, Valid: true}
	}
	sandbox, err := marshalSandbox(rec.Sandbox)
	if err != nil {
		return &protocol.PersistenceError{Op: "create thread", Err: err}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO threads (`+threadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ThreadID, org, name, rec.RepositoryPath, rec.IsolatedCopyPath,
		rec.Status,
		rec.CreatedAt.Format(protocol.TimeLayout),
		rec.LastActiveAt.Format(protocol.TimeLayout),
		sandbox, rec.SessionID, rec.RateLimitTimestamp, nullBool(rec.AutoResume),
	)
	if err != nil {
		return &protocol.PersistenceError{Op: "create thread", Err: err}
	}
	return nil
}

// GetThread loads one record by id.
func (s *Store) GetThread(ctx context.Context, threadID string) (*protocol.ThreadRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+threadColumns+` FROM threads WHERE thread_id = ?`, threadID)
	rec, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, &protocol.PersistenceError{Op: "get thread", Err: err}
	}
	return rec, nil
}

// UpdateThread rewrites every mutable column of an existing record.
// Rate-limit fields travel together: callers update the whole record so the
// timestamp and the auto-resume choice can never drift apart.
func (s *Store) UpdateThread(ctx context.Context, rec *protocol.ThreadRecord) error {
	org, name := sql.NullString{}, sql.NullString{}
	if rec.Repository != nil {
		org = sql.NullString{String: rec.Repository.Org, Valid: true}
		name = sql.NullString{String: rec.Repository.Name, Valid: true}
	}
	sandbox, err := marshalSandbox(rec.Sandbox)
	if err != nil {
		return &protocol.PersistenceError{Op: "update thread", Err: err}
	}

	res, err := s.db.ExecContext(ctx, `UPDATE threads SET
		repo_org = ?, repo_name = ?, repo_path = ?, isolated_copy_path = ?,
		status = ?, last_active_at = ?, sandbox_json = ?, session_id = ?,
		rate_limit_ts = ?, auto_resume = ?
		WHERE thread_id = ?`,
		org, name, rec.RepositoryPath, rec.IsolatedCopyPath,
		rec.Status, rec.LastActiveAt.Format(protocol.TimeLayout),
		sandbox, rec.SessionID, rec.RateLimitTimestamp, nullBool(rec.AutoResume),
		rec.ThreadID,
	)
	if err != nil {
		return &protocol.PersistenceError{Op: "update thread", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrThreadNotFound
	}
	return nil
}

// ListThreadsByStatus returns all records with the given status, oldest
// first. A row that fails to scan is logged and skipped so one corrupt
// record cannot block recovery of the rest.
func (s *Store) ListThreadsByStatus(ctx context.Context, status string) ([]*protocol.ThreadRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+threadColumns+` FROM threads WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, &protocol.PersistenceError{Op: "list threads", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var recs []*protocol.ThreadRecord
	for rows.Next() {
		rec, err := scanThread(rows)
		if err != nil {
			s.log.Warn("skipping corrupt thread record", zap.Error(err))
			continue
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return recs, &protocol.PersistenceError{Op: "list threads", Err: err}
	}
	return recs, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanThread(row scanner) (*protocol.ThreadRecord, error) {
	var (
		rec        protocol.ThreadRecord
		org, name  sql.NullString
		createdAt  string
		lastActive string
		sandbox    sql.NullString
		autoResume sql.NullInt64
	)
	err := row.Scan(
		&rec.ThreadID, &org, &name, &rec.RepositoryPath, &rec.IsolatedCopyPath,
		&rec.Status, &createdAt, &lastActive, &sandbox, &rec.SessionID,
		&rec.RateLimitTimestamp, &autoResume,
	)
	if err != nil {
		return nil, err
	}

	if org.Valid && name.Valid {
		rec.Repository = &protocol.Repository{Org: org.String, Name: name.String}
	}
	if rec.CreatedAt, err = time.Parse(protocol.TimeLayout, createdAt); err != nil {
		return nil, err
	}
	if rec.LastActiveAt, err = time.Parse(protocol.TimeLayout, lastActive); err != nil {
		return nil, err
	}
	if sandbox.Valid && sandbox.String != "" {
		var cfg protocol.SandboxConfig
		if err := json.Unmarshal([]byte(sandbox.String), &cfg); err != nil {
			return nil, err
		}
		rec.Sandbox = &cfg
	}
	if autoResume.Valid {
		v := autoResume.Int64 != 0
		rec.AutoResume = &v
	}
	return &rec, nil
}

func marshalSandbox(cfg *protocol.SandboxConfig) (sql.NullString, error) {
	if cfg == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullBool(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	v := int64(0)
	if *b {
		v = 1
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
