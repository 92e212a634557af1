package protocol

// SchemaDDL defines the SQLite schema for the ccd state database.
// Tables: threads, audit_entries, message_queue.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- One row per conversation thread. Archived rows are kept forever.
CREATE TABLE IF NOT EXISTS threads (
    thread_id TEXT PRIMARY KEY,
    repo_org TEXT,
    repo_name TEXT,
    repo_path TEXT NOT NULL DEFAULT '',
    isolated_copy_path TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'active',
    created_at TEXT NOT NULL,
    last_active_at TEXT NOT NULL,
    sandbox_json TEXT,
    session_id TEXT NOT NULL DEFAULT '',
    rate_limit_ts INTEGER NOT NULL DEFAULT 0,
    auto_resume INTEGER
);

CREATE INDEX IF NOT EXISTS idx_threads_status ON threads(status);

-- Append-only audit trail, partitioned by calendar day for date queries.
CREATE TABLE IF NOT EXISTS audit_entries (
    id INTEGER PRIMARY KEY,
    day TEXT NOT NULL,
    created_at TEXT NOT NULL,
    thread_id TEXT NOT NULL,
    action TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_day ON audit_entries(day);
CREATE INDEX IF NOT EXISTS idx_audit_thread ON audit_entries(thread_id);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action);

-- Per-thread FIFO backlog of inbound messages. Insertion order is delivery
-- order; rows are deleted when drained.
CREATE TABLE IF NOT EXISTS message_queue (
    id INTEGER PRIMARY KEY,
    message_id TEXT NOT NULL,
    thread_id TEXT NOT NULL,
    content TEXT NOT NULL,
    author_id TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_thread ON message_queue(thread_id);
`

// TimeLayout is the timestamp format stored in SQLite text columns.
const TimeLayout = "2006-01-02 15:04:05.999999999Z07:00"

// DayLayout is the calendar-day partition key format for audit entries.
const DayLayout = "2006-01-02"
