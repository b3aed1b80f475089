// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialect_Rebind(t *testing.T) {
	t.Parallel()

	q := "DELETE FROM t WHERE doc_id = ? AND type = ?"
	assert.Equal(t, "DELETE FROM t WHERE doc_id = $1 AND type = $2", PostgresDialect{}.Rebind(q))
	assert.Equal(t, q, MySQLDialect{}.Rebind(q))
	assert.Equal(t, q, SQLiteDialect{}.Rebind(q))
}

func TestDialect_Quote(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"wiki_documents"`, PostgresDialect{}.Quote("wiki_documents"))
	assert.Equal(t, "`wiki_documents`", MySQLDialect{}.Quote("wiki_documents"))
	assert.Equal(t, `"a""b"`, SQLiteDialect{}.Quote(`a"b`))
}

func TestDialect_UpsertSuffix(t *testing.T) {
	t.Parallel()

	conflict := []string{"doc_id", "version", "type"}
	update := []string{"instance_id", "ts"}

	assert.Equal(t,
		" ON CONFLICT (doc_id, version, type) DO UPDATE SET instance_id = EXCLUDED.instance_id, ts = EXCLUDED.ts",
		PostgresDialect{}.UpsertSuffix(conflict, update))
	assert.Equal(t,
		" ON CONFLICT (doc_id, version, type) DO UPDATE SET instance_id = excluded.instance_id, ts = excluded.ts",
		SQLiteDialect{}.UpsertSuffix(conflict, update))
	assert.Equal(t,
		" ON DUPLICATE KEY UPDATE instance_id = VALUES(instance_id), ts = VALUES(ts)",
		MySQLDialect{}.UpsertSuffix(conflict, update))
	assert.Equal(t, " ON CONFLICT (source_id, target) DO NOTHING",
		PostgresDialect{}.UpsertSuffix([]string{"source_id", "target"}, nil))
}
