// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/LeeDigitalWorks/docindex/pkg/tenant"
)

// SQLRepository reads documents from the tenant database.
type SQLRepository struct {
	pool *tenant.Pool
}

var _ Source = (*SQLRepository)(nil)

// NewSQLRepository creates a repository over pool.
func NewSQLRepository(pool *tenant.Pool) *SQLRepository {
	return &SQLRepository{pool: pool}
}

func (r *SQLRepository) Head(ctx context.Context, wiki string, id int64) (Handle, error) {
	c, err := r.pool.Conn(ctx, wiki)
	if err != nil {
		return Handle{}, err
	}

	query := c.Dialect.Rebind(fmt.Sprintf(
		"SELECT name, version FROM %s WHERE id = ?", c.Table(tenant.TableDocuments)))

	h := Handle{Reference: Reference{Wiki: wiki, ID: id}}
	err = c.DB.QueryRowContext(ctx, query, id).Scan(&h.Name, &h.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Handle{}, fmt.Errorf("%w: %s:%d", ErrNotFound, wiki, id)
	}
	if err != nil {
		return Handle{}, fmt.Errorf("get document %s:%d: %w", wiki, id, err)
	}
	return h, nil
}

func (r *SQLRepository) Revision(ctx context.Context, doc Handle, version string) (*Revision, error) {
	c, err := r.pool.Conn(ctx, doc.Wiki)
	if err != nil {
		return nil, err
	}

	query := c.Dialect.Rebind(fmt.Sprintf(
		"SELECT title, content FROM %s WHERE doc_id = ? AND version = ?",
		c.Table(tenant.TableDocumentRevisions)))

	rev := &Revision{Reference: doc.Reference, Version: version}
	err = c.DB.QueryRowContext(ctx, query, doc.ID, version).Scan(&rev.Title, &rev.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s version %s", ErrNotFound, doc.Reference, version)
	}
	if err != nil {
		return nil, fmt.Errorf("get revision %s version %s: %w", doc.Reference, version, err)
	}
	return rev, nil
}

// Save writes rev and moves the document head to it.
func (r *SQLRepository) Save(ctx context.Context, rev Revision) error {
	c, err := r.pool.Conn(ctx, rev.Wiki)
	if err != nil {
		return err
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	revQuery := c.Dialect.Rebind(fmt.Sprintf(
		"INSERT INTO %s (doc_id, version, title, content) VALUES (?, ?, ?, ?)",
		c.Table(tenant.TableDocumentRevisions)) +
		c.Dialect.UpsertSuffix([]string{"doc_id", "version"}, []string{"title", "content"}))
	if _, err := tx.ExecContext(ctx, revQuery, rev.ID, rev.Version, rev.Title, rev.Content); err != nil {
		return fmt.Errorf("save revision %s version %s: %w", rev.Reference, rev.Version, err)
	}

	docQuery := c.Dialect.Rebind(fmt.Sprintf(
		"INSERT INTO %s (id, name, version) VALUES (?, ?, ?)",
		c.Table(tenant.TableDocuments)) +
		c.Dialect.UpsertSuffix([]string{"id"}, []string{"name", "version"}))
	if _, err := tx.ExecContext(ctx, docQuery, rev.ID, rev.Name, rev.Version); err != nil {
		return fmt.Errorf("save document %s: %w", rev.Reference, err)
	}

	return tx.Commit()
}
