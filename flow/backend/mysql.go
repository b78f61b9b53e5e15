package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/flowkit/flowengine/flow"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLBackend is a MySQL/MariaDB-backed Backend implementation, suited
// to production deployments where suspended flows must survive process
// restarts and be visible across multiple workers.
type MySQLBackend struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLBackend opens a connection pool against dsn (a standard
// go-sql-driver/mysql DSN, e.g. "user:pass@tcp(host:3306)/dbname") and
// ensures the suspensions table exists.
func NewMySQLBackend(dsn string) (*MySQLBackend, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, flow.StorageErr("mysql", "open", "failed to open connection pool", err, false)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := migrateMySQL(db); err != nil {
		return nil, err
	}
	return &MySQLBackend{db: db}, nil
}

func migrateMySQL(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS flow_suspensions (
	suspension_key        VARCHAR(255) PRIMARY KEY,
	flow_id               VARCHAR(255) NOT NULL,
	step_id               VARCHAR(255) NOT NULL,
	session_id            VARCHAR(255) NOT NULL,
	execution_position    JSON NOT NULL,
	variable_snapshot     JSON NOT NULL,
	metadata              JSON,
	awaiting_input_schema JSON,
	default_value         JSON,
	created_at            DATETIME(6) NOT NULL,
	expires_at            DATETIME(6) NULL,
	byte_size             BIGINT NOT NULL,
	checksum              VARCHAR(64) NOT NULL,
	INDEX idx_flow_id (flow_id),
	INDEX idx_session_id (session_id),
	INDEX idx_expires_at (expires_at)
) ENGINE=InnoDB;
`
	if _, err := db.Exec(schema); err != nil {
		return flow.StorageErr("mysql", "migrate", "failed to create schema", err, false)
	}
	return nil
}

// Close closes the underlying connection pool.
func (b *MySQLBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// Store upserts record into the suspensions table.
func (b *MySQLBackend) Store(ctx context.Context, record *flow.SuspensionRecord) error {
	pos, snap, meta, schema, def, err := marshalRecord(record)
	if err != nil {
		return flow.ParseErr("failed to serialize suspension record", err)
	}
	_, err = b.db.ExecContext(ctx, `
INSERT INTO flow_suspensions (suspension_key, flow_id, step_id, session_id, execution_position, variable_snapshot, metadata, awaiting_input_schema, default_value, created_at, expires_at, byte_size, checksum)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
	flow_id=VALUES(flow_id), step_id=VALUES(step_id), session_id=VALUES(session_id),
	execution_position=VALUES(execution_position), variable_snapshot=VALUES(variable_snapshot),
	metadata=VALUES(metadata), awaiting_input_schema=VALUES(awaiting_input_schema),
	default_value=VALUES(default_value), created_at=VALUES(created_at),
	expires_at=VALUES(expires_at), byte_size=VALUES(byte_size), checksum=VALUES(checksum)
`, record.Key, record.FlowID, record.StepID, record.SessionID, pos, snap, meta, schema, def,
		record.CreatedAt, nullableTime(record.ExpiresAt), record.Size, record.Checksum)
	if err != nil {
		return flow.StorageErr("mysql", "store", "failed to upsert suspension record", err, true)
	}
	return nil
}

// Retrieve loads the record for key.
func (b *MySQLBackend) Retrieve(ctx context.Context, key string) (*flow.SuspensionRecord, error) {
	row := b.db.QueryRowContext(ctx, `
SELECT suspension_key, flow_id, step_id, session_id, execution_position, variable_snapshot, metadata, awaiting_input_schema, default_value, created_at, expires_at, byte_size, checksum
FROM flow_suspensions WHERE suspension_key = ?`, key)

	var k, flowID, stepID, sessionID, pos, snap, meta, schema, def, checksum string
	var createdAt time.Time
	var expiresAt sql.NullTime
	var size int64
	if err := row.Scan(&k, &flowID, &stepID, &sessionID, &pos, &snap, &meta, &schema, &def, &createdAt, &expiresAt, &size, &checksum); err != nil {
		if err == sql.ErrNoRows {
			return nil, flow.ErrSuspensionNotFound
		}
		return nil, flow.StorageErr("mysql", "retrieve", "failed to read suspension record", err, true)
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return nil, flow.ErrSuspensionNotFound
	}
	return unmarshalRecord(k, flowID, stepID, sessionID, pos, snap, meta, schema, def, createdAt, expiresAt, size, checksum)
}

// Delete removes the row for key.
func (b *MySQLBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM flow_suspensions WHERE suspension_key = ?`, key); err != nil {
		return flow.StorageErr("mysql", "delete", "failed to delete suspension record", err, true)
	}
	return nil
}

// List returns every row matching criteria.
func (b *MySQLBackend) List(ctx context.Context, criteria flow.Criteria) ([]*flow.SuspensionRecord, error) {
	query := `SELECT suspension_key, flow_id, step_id, session_id, execution_position, variable_snapshot, metadata, awaiting_input_schema, default_value, created_at, expires_at, byte_size, checksum FROM flow_suspensions WHERE 1=1`
	var args []any
	query, args = appendCriteriaMySQL(query, args, criteria)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, flow.StorageErr("mysql", "list", "failed to query suspension records", err, true)
	}
	defer rows.Close()

	var out []*flow.SuspensionRecord
	for rows.Next() {
		var k, flowID, stepID, sessionID, pos, snap, meta, schema, def, checksum string
		var createdAt time.Time
		var expiresAt sql.NullTime
		var size int64
		if err := rows.Scan(&k, &flowID, &stepID, &sessionID, &pos, &snap, &meta, &schema, &def, &createdAt, &expiresAt, &size, &checksum); err != nil {
			return nil, flow.StorageErr("mysql", "list", "failed to scan suspension record", err, false)
		}
		rec, err := unmarshalRecord(k, flowID, stepID, sessionID, pos, snap, meta, schema, def, createdAt, expiresAt, size, checksum)
		if err != nil {
			return nil, flow.ParseErr("failed to deserialize suspension record", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func appendCriteriaMySQL(query string, args []any, c flow.Criteria) (string, []any) {
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
func (b *MySQLBackend) Cleanup(ctx context.Context, criteria flow.Criteria) (int, error) {
	query := `DELETE FROM flow_suspensions WHERE 1=1`
	var args []any
	query, args = appendCriteriaMySQL(query, args, criteria)

	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, flow.StorageErr("mysql", "cleanup", "failed to delete suspension records", err, true)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, flow.StorageErr("mysql", "cleanup", "failed to count deleted rows", err, false)
	}
	return int(n), nil
}

// HealthCheck pings the connection pool.
func (b *MySQLBackend) HealthCheck(ctx context.Context) flow.Health {
	start := time.Now()
	if err := b.db.PingContext(ctx); err != nil {
		return flow.Health{OK: false, Message: fmt.Sprintf("mysql ping failed: %v", err), Latency: time.Since(start)}
	}
	return flow.Health{OK: true, Message: "mysql backend", Latency: time.Since(start)}
}
