package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/flowkit/flowengine/flow"
	_ "modernc.org/sqlite"
)

// SQLiteBackend is a SQLite-backed Backend implementation. It stores one
// row per suspension key in a single table, serializing the variable
// snapshot, metadata, awaiting-input schema, and default value as JSON
// columns. Designed for development, single-process deployments, and
// local persistence across restarts without a separate database server.
type SQLiteBackend struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteBackend opens (creating if absent) a SQLite database at path
// and ensures the suspensions table exists. path may be ":memory:" for an
// ephemeral in-process database.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, flow.StorageErr("sqlite", "open", "failed to open database", err, false)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, flow.StorageErr("sqlite", "open", "failed to enable WAL mode", err, false)
	}
	if err := migrateSQLite(db); err != nil {
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS flow_suspensions (
	key                   TEXT PRIMARY KEY,
	flow_id               TEXT NOT NULL,
	step_id               TEXT NOT NULL,
	session_id            TEXT NOT NULL,
	execution_position    TEXT NOT NULL,
	variable_snapshot     TEXT NOT NULL,
	metadata              TEXT,
	awaiting_input_schema TEXT,
	default_value         TEXT,
	created_at            DATETIME NOT NULL,
	expires_at            DATETIME,
	size                  INTEGER NOT NULL,
	checksum              TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_flow_suspensions_flow_id ON flow_suspensions(flow_id);
CREATE INDEX IF NOT EXISTS idx_flow_suspensions_session_id ON flow_suspensions(session_id);
CREATE INDEX IF NOT EXISTS idx_flow_suspensions_expires_at ON flow_suspensions(expires_at);
`
	if _, err := db.Exec(schema); err != nil {
		return flow.StorageErr("sqlite", "migrate", "failed to create schema", err, false)
	}
	return nil
}

// Close closes the underlying database handle.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

func marshalRecord(r *flow.SuspensionRecord) (position, snapshot, metadata, schema, defVal string, err error) {
	pos, err := json.Marshal(r.ExecutionPosition)
	if err != nil {
		return "", "", "", "", "", err
	}
	snap, err := json.Marshal(r.VariableSnapshot)
	if err != nil {
		return "", "", "", "", "", err
	}
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return "", "", "", "", "", err
	}
	sch, err := json.Marshal(r.AwaitingInputSchema)
	if err != nil {
		return "", "", "", "", "", err
	}
	def, err := json.Marshal(r.DefaultValue)
	if err != nil {
		return "", "", "", "", "", err
	}
	return string(pos), string(snap), string(meta), string(sch), string(def), nil
}

func unmarshalRecord(key, flowID, stepID, sessionID, position, snapshot, metadata, schema, defVal string, createdAt time.Time, expiresAt sql.NullTime, size int64, checksum string) (*flow.SuspensionRecord, error) {
	r := &flow.SuspensionRecord{
		Key: key, FlowID: flowID, StepID: stepID, SessionID: sessionID,
		CreatedAt: createdAt, Size: size, Checksum: checksum,
	}
	if expiresAt.Valid {
		r.ExpiresAt = expiresAt.Time
	}
	if err := json.Unmarshal([]byte(position), &r.ExecutionPosition); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(snapshot), &r.VariableSnapshot); err != nil {
		return nil, err
	}
	if metadata != "" {
		_ = json.Unmarshal([]byte(metadata), &r.Metadata)
	}
	if schema != "" {
		_ = json.Unmarshal([]byte(schema), &r.AwaitingInputSchema)
	}
	if defVal != "" {
		_ = json.Unmarshal([]byte(defVal), &r.DefaultValue)
	}
	return r, nil
}

// Store upserts record into the suspensions table.
func (b *SQLiteBackend) Store(ctx context.Context, record *flow.SuspensionRecord) error {
	pos, snap, meta, schema, def, err := marshalRecord(record)
	if err != nil {
		return flow.ParseErr("failed to serialize suspension record", err)
	}
	_, err = b.db.ExecContext(ctx, `
INSERT INTO flow_suspensions (key, flow_id, step_id, session_id, execution_position, variable_snapshot, metadata, awaiting_input_schema, default_value, created_at, expires_at, size, checksum)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	flow_id=excluded.flow_id, step_id=excluded.step_id, session_id=excluded.session_id,
	execution_position=excluded.execution_position, variable_snapshot=excluded.variable_snapshot,
	metadata=excluded.metadata, awaiting_input_schema=excluded.awaiting_input_schema,
	default_value=excluded.default_value, created_at=excluded.created_at,
	expires_at=excluded.expires_at, size=excluded.size, checksum=excluded.checksum
`, record.Key, record.FlowID, record.StepID, record.SessionID, pos, snap, meta, schema, def,
		record.CreatedAt, nullableTime(record.ExpiresAt), record.Size, record.Checksum)
	if err != nil {
		return flow.StorageErr("sqlite", "store", "failed to upsert suspension record", err, true)
	}
	return nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// Retrieve loads the record for key.
func (b *SQLiteBackend) Retrieve(ctx context.Context, key string) (*flow.SuspensionRecord, error) {
	row := b.db.QueryRowContext(ctx, `
SELECT key, flow_id, step_id, session_id, execution_position, variable_snapshot, metadata, awaiting_input_schema, default_value, created_at, expires_at, size, checksum
FROM flow_suspensions WHERE key = ?`, key)

	var k, flowID, stepID, sessionID, pos, snap, meta, schema, def, checksum string
	var createdAt time.Time
	var expiresAt sql.NullTime
	var size int64
	if err := row.Scan(&k, &flowID, &stepID, &sessionID, &pos, &snap, &meta, &schema, &def, &createdAt, &expiresAt, &size, &checksum); err != nil {
		if err == sql.ErrNoRows {
			return nil, flow.ErrSuspensionNotFound
		}
		return nil, flow.StorageErr("sqlite", "retrieve", "failed to read suspension record", err, true)
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return nil, flow.ErrSuspensionNotFound
	}
	return unmarshalRecord(k, flowID, stepID, sessionID, pos, snap, meta, schema, def, createdAt, expiresAt, size, checksum)
}

// Delete removes the row for key.
func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM flow_suspensions WHERE key = ?`, key); err != nil {
		return flow.StorageErr("sqlite", "delete", "failed to delete suspension record", err, true)
	}
	return nil
}

// List returns every row matching criteria.
func (b *SQLiteBackend) List(ctx context.Context, criteria flow.Criteria) ([]*flow.SuspensionRecord, error) {
	query := `SELECT key, flow_id, step_id, session_id, execution_position, variable_snapshot, metadata, awaiting_input_schema, default_value, created_at, expires_at, size, checksum FROM flow_suspensions WHERE 1=1`
	var args []any
	query, args = appendCriteriaSQLite(query, args, criteria)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, flow.StorageErr("sqlite", "list", "failed to query suspension records", err, true)
	}
	defer rows.Close()

	var out []*flow.SuspensionRecord
	for rows.Next() {
		var k, flowID, stepID, sessionID, pos, snap, meta, schema, def, checksum string
		var createdAt time.Time
		var expiresAt sql.NullTime
		var size int64
		if err := rows.Scan(&k, &flowID, &stepID, &sessionID, &pos, &snap, &meta, &schema, &def, &createdAt, &expiresAt, &size, &checksum); err != nil {
			return nil, flow.StorageErr("sqlite", "list", "failed to scan suspension record", err, false)
		}
		rec, err := unmarshalRecord(k, flowID, stepID, sessionID, pos, snap, meta, schema, def, createdAt, expiresAt, size, checksum)
		if err != nil {
			return nil, flow.ParseErr("failed to deserialize suspension record", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func appendCriteriaSQLite(query string, args []any, c flow.Criteria) (string, []any) {
	if c.FlowID != "" {
		query += " AND flow_id = ?"
		args = append(args, c.FlowID)
	}
	if c.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, c.SessionID)
	}
	if c.ExpiredOnly {
		query += " AND expires_at IS NOT NULL AND expires_at < ?"
		args = append(args, time.Now())
	}
	if !c.Before.IsZero() {
		query += " AND created_at < ?"
		args = append(args, c.Before)
	}
	return query, args
}

// Cleanup deletes every row matching criteria and returns the count removed.
func (b *SQLiteBackend) Cleanup(ctx context.Context, criteria flow.Criteria) (int, error) {
	query := `DELETE FROM flow_suspensions WHERE 1=1`
	var args []any
	query, args = appendCriteriaSQLite(query, args, criteria)

	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, flow.StorageErr("sqlite", "cleanup", "failed to delete suspension records", err, true)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, flow.StorageErr("sqlite", "cleanup", "failed to count deleted rows", err, false)
	}
	return int(n), nil
}

// HealthCheck pings the underlying database.
func (b *SQLiteBackend) HealthCheck(ctx context.Context) flow.Health {
	start := time.Now()
	if err := b.db.PingContext(ctx); err != nil {
		return flow.Health{OK: false, Message: fmt.Sprintf("sqlite ping failed: %v", err), Latency: time.Since(start)}
	}
	return flow.Health{OK: true, Message: "sqlite backend", Latency: time.Since(start)}
}
