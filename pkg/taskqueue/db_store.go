// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"fmt"
	"strings"
	"time"

	zctx "github.com/LeeDigitalWorks/docindex/pkg/context"
	"github.com/LeeDigitalWorks/docindex/pkg/document"
	"github.com/LeeDigitalWorks/docindex/pkg/tenant"
	"github.com/LeeDigitalWorks/docindex/pkg/utils"
)

const (
	// maxDeadlockRetries is the maximum number of retry attempts for deadlock errors
	maxDeadlockRetries = 3
	// baseDeadlockBackoff is the base backoff duration for deadlock retries
	baseDeadlockBackoff = 10 * time.Millisecond
)

// Compile-time interface verification
var _ Store = (*DBStore)(nil)

// DBStore is a database-backed implementation of Store. Every wiki has its
// own document_indexing_queue table, resolved through a tenant.Pool.
type DBStore struct {
	pool *tenant.Pool
	docs document.Repository
}

// DBStoreConfig configures the database store.
type DBStoreConfig struct {
	Pool *tenant.Pool

	// Documents resolves GetDocument. Defaults to the documents table of the
	// same tenant database.
	Documents document.Repository
}

// NewDBStore creates a new database-backed store.
func NewDBStore(cfg DBStoreConfig) (*DBStore, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("tenant pool is required")
	}
	if cfg.Documents == nil {
		cfg.Documents = document.NewSQLRepository(cfg.Pool)
	}
	return &DBStore{pool: cfg.Pool, docs: cfg.Documents}, nil
}

func (s *DBStore) conn(ctx context.Context, wiki string) (*tenant.Conn, error) {
	return s.pool.Conn(ctx, wiki)
}

func (s *DBStore) GetAllTasks(ctx context.Context, wiki, instanceID string) ([]Row, error) {
	ctx, pop := zctx.Push(ctx, wiki)
	defer pop()

	rows, err := s.getAllTasks(ctx, wiki, instanceID)
	return rows, persistenceError(OpGetAll, wiki, err)
}

func (s *DBStore) getAllTasks(ctx context.Context, wiki, instanceID string) ([]Row, error) {
	c, err := s.conn(ctx, wiki)
	if err != nil {
		return nil, err
	}

	query := c.Dialect.Rebind(fmt.Sprintf(`
		SELECT instance_id, doc_id, version, type, ts
		FROM %s
		WHERE instance_id = ?
		ORDER BY ts, doc_id, type`, c.Table(tenant.TableTaskQueue)))

	rows, err := c.DB.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r  Row
			ts int64
		)
		if err := rows.Scan(&r.InstanceID, &r.DocumentID, &r.Version, &r.Type, &ts); err != nil {
			return nil, err
		}
		r.Timestamp = time.UnixMilli(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *DBStore) AddTask(ctx context.Context, wiki string, row Row) error {
	ctx, pop := zctx.Push(ctx, wiki)
	defer pop()

	c, err := s.conn(ctx, wiki)
	if err != nil {
		return persistenceError(OpAdd, wiki, err)
	}
	_, err = c.DB.ExecContext(ctx, s.upsertQuery(c), s.upsertArgs(row)...)
	return persistenceError(OpAdd, wiki, err)
}

func (s *DBStore) DeleteTask(ctx context.Context, wiki string, docID int64, version string, taskType TaskType) error {
	ctx, pop := zctx.Push(ctx, wiki)
	defer pop()

	c, err := s.conn(ctx, wiki)
	if err != nil {
		return persistenceError(OpDelete, wiki, err)
	}

	query := c.Dialect.Rebind(fmt.Sprintf(
		"DELETE FROM %s WHERE doc_id = ? AND version = ? AND type = ?",
		c.Table(tenant.TableTaskQueue)))
	_, err = c.DB.ExecContext(ctx, query, docID, version, string(taskType))
	return persistenceError(OpDelete, wiki, err)
}

func (s *DBStore) ReplaceTask(ctx context.Context, wiki string, row Row) error {
	ctx, pop := zctx.Push(ctx, wiki)
	defer pop()

	c, err := s.conn(ctx, wiki)
	if err != nil {
		return persistenceError(OpReplace, wiki, err)
	}

	// Retry with exponential backoff on deadlock errors
	var lastErr error
	for attempt := range maxDeadlockRetries {
		err := s.replaceOnce(ctx, c, row)
		if err == nil {
			return nil
		}
		if !isDeadlockError(err) {
			return persistenceError(OpReplace, wiki, err)
		}
		lastErr = err
		DeadlockRetries.Inc()

		// Exponential backoff with jitter: 10-20ms, 20-40ms, 40-80ms
		backoff := utils.JitterUp(baseDeadlockBackoff*time.Duration(1<<attempt), 1.0)
		select {
		case <-ctx.Done():
			return persistenceError(OpReplace, wiki, ctx.Err())
		case <-time.After(backoff):
		}
	}
	return persistenceError(OpReplace, wiki, lastErr)
}

func (s *DBStore) replaceOnce(ctx context.Context, c *tenant.Conn, row Row) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	del := c.Dialect.Rebind(fmt.Sprintf(
		"DELETE FROM %s WHERE doc_id = ? AND type = ?", c.Table(tenant.TableTaskQueue)))
	if _, err := tx.ExecContext(ctx, del, row.DocumentID, string(row.Type)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.upsertQuery(c), s.upsertArgs(row)...); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *DBStore) GetDocument(ctx context.Context, wiki string, docID int64) (document.Handle, error) {
	ctx, pop := zctx.Push(ctx, wiki)
	defer pop()

	h, err := s.docs.Head(ctx, wiki, docID)
	return h, persistenceError(OpGetDocument, wiki, err)
}

func (s *DBStore) upsertQuery(c *tenant.Conn) string {
	return c.Dialect.Rebind(fmt.Sprintf(
		"INSERT INTO %s (instance_id, doc_id, version, type, ts) VALUES (?, ?, ?, ?, ?)",
		c.Table(tenant.TableTaskQueue)) +
		c.Dialect.UpsertSuffix([]string{"doc_id", "version", "type"}, []string{"instance_id", "ts"}))
}

func (s *DBStore) upsertArgs(row Row) []any {
	return []any{row.InstanceID, row.DocumentID, row.Version, string(row.Type), time.Now().UnixMilli()}
}

// isDeadlockError checks if the error is a database deadlock error.
// Supports both MySQL (Error 1213) and PostgreSQL (40P01).
func isDeadlockError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// MySQL error 1213: Deadlock found when trying to get lock
	if strings.Contains(errStr, "Error 1213") || strings.Contains(errStr, "Deadlock") {
		return true
	}
	// PostgreSQL error 40P01: deadlock_detected
	if strings.Contains(errStr, "40P01") || strings.Contains(errStr, "deadlock detected") {
		return true
	}
	return false
}
