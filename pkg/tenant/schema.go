// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"context"
	"encoding/hex"
	"fmt"

	sha256 "github.com/minio/sha256-simd"
)

// Table names inside a tenant database.
const (
	TableTaskQueue         = "document_indexing_queue"
	TableDocuments         = "documents"
	TableDocumentRevisions = "document_revisions"
	TableBacklinks         = "backlinks"
)

// ensureSchema creates the tenant tables if they do not exist. The DDL
// sticks to types every supported dialect accepts; timestamps are stored
// as unix milliseconds.
func ensureSchema(ctx context.Context, c *Conn) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			instance_id VARCHAR(64) NOT NULL,
			doc_id BIGINT NOT NULL,
			version VARCHAR(64) NOT NULL,
			type VARCHAR(64) NOT NULL,
			ts BIGINT NOT NULL,
			PRIMARY KEY (doc_id, version, type)
		)`, c.Table(TableTaskQueue)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT NOT NULL PRIMARY KEY,
			name VARCHAR(768) NOT NULL,
			version VARCHAR(64) NOT NULL
		)`, c.Table(TableDocuments)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			doc_id BIGINT NOT NULL,
			version VARCHAR(64) NOT NULL,
			title VARCHAR(768) NOT NULL,
			content TEXT NOT NULL,
			PRIMARY KEY (doc_id, version)
		)`, c.Table(TableDocumentRevisions)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			source_id BIGINT NOT NULL,
			target_hash CHAR(64) NOT NULL,
			target TEXT NOT NULL,
			PRIMARY KEY (source_id, target_hash)
		)`, c.Table(TableBacklinks)),
	}

	for _, stmt := range stmts {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema for wiki %s: %w", c.Wiki, err)
		}
	}
	return nil
}

// HashKey returns the hex SHA-256 of s. Columns holding unbounded text are
// keyed by it.
func HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
