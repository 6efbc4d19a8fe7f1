package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"deployhook/internal/security"

	_ "modernc.org/sqlite"
)

// History stores webhook trigger outcomes in SQLite
type History struct {
	db *sql.DB
}

// NewHistory opens (creating if needed) the history database at dbPath
func NewHistory(dbPath string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), security.PermDirectory); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	_, statErr := os.Stat(dbPath)
	created := errors.Is(statErr, os.ErrNotExist)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if created {
		if err := os.Chmod(dbPath, security.PermDBFile); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set database permissions: %w", err)
		}
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS triggers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			deploy_id TEXT,
			ref TEXT NOT NULL,
			commit_hash TEXT,
			delivery_id TEXT,
			event TEXT,
			remote_addr TEXT NOT NULL,
			status TEXT NOT NULL,
			pid INTEGER,
			error_message TEXT,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_triggers_status
		ON triggers(status, id DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// RecordTrigger stores a trigger outcome and returns its ID.
// CreatedAt defaults to now when zero.
func (h *History) RecordTrigger(ctx context.Context, record *TriggerRecord) (int64, error) {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := h.db.ExecContext(ctx, `
		INSERT INTO triggers
		(deploy_id, ref, commit_hash, delivery_id, event, remote_addr,
		 status, pid, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.DeployID,
		record.Ref,
		record.CommitHash,
		record.DeliveryID,
		record.Event,
		record.RemoteAddr,
		record.Status,
		record.PID,
		record.ErrorMessage,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trigger record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// Latest returns the most recent trigger, or nil if there are none
func (h *History) Latest(ctx context.Context) (*TriggerRecord, error) {
	row := h.db.QueryRowContext(ctx, selectColumns+`
		FROM triggers
		ORDER BY id DESC
		LIMIT 1
	`)

	record, err := scanTriggerRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest trigger: %w", err)
	}

	return record, nil
}

// Recent returns up to limit triggers, newest first
func (h *History) Recent(ctx context.Context, limit int) ([]TriggerRecord, error) {
	rows, err := h.db.QueryContext(ctx, selectColumns+`
		FROM triggers
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger history: %w", err)
	}
	return collect(rows)
}

// RecentByStatus returns up to limit triggers with the given status, newest first
func (h *History) RecentByStatus(ctx context.Context, status string, limit int) ([]TriggerRecord, error) {
	rows, err := h.db.QueryContext(ctx, selectColumns+`
		FROM triggers
		WHERE status = ?
		ORDER BY id DESC
		LIMIT ?
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger history: %w", err)
	}
	return collect(rows)
}

// CountByStatus returns the number of triggers per status
func (h *History) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM triggers GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count triggers: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan trigger count: %w", err)
		}
		counts[status] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}

const selectColumns = `
	SELECT id, deploy_id, ref, commit_hash, delivery_id, event, remote_addr,
	       status, pid, error_message, created_at`

func collect(rows *sql.Rows) ([]TriggerRecord, error) {
	defer rows.Close()

	var records []TriggerRecord
	for rows.Next() {
		record, err := scanTriggerRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTriggerRecord(s scanner) (*TriggerRecord, error) {
	var record TriggerRecord
	var createdAtStr string
	var pid sql.NullInt64

	err := s.Scan(
		&record.ID,
		&record.DeployID,
		&record.Ref,
		&record.CommitHash,
		&record.DeliveryID,
		&record.Event,
		&record.RemoteAddr,
		&record.Status,
		&pid,
		&record.ErrorMessage,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}
	record.CreatedAt = createdAt

	if pid.Valid {
		p := int(pid.Int64)
		record.PID = &p
	}

	return &record, nil
}
