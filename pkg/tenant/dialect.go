// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Dialect abstracts the SQL differences between the supported databases.
// Queries are written with ? placeholders and rebound per dialect.
type Dialect interface {
	// Name returns the dialect name (e.g., "postgres", "mysql").
	Name() string

	// Rebind converts ? placeholders to the dialect's placeholder format.
	Rebind(query string) string

	// Quote quotes an identifier (table or column name).
	Quote(ident string) string

	// UpsertSuffix returns the suffix for an INSERT that updates
	// updateColumns when a row with the same conflictColumns exists.
	UpsertSuffix(conflictColumns []string, updateColumns []string) string
}

// PostgresDialect implements Dialect for PostgreSQL/CockroachDB.
type PostgresDialect struct{}

var _ Dialect = PostgresDialect{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) Rebind(query string) string {
	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (PostgresDialect) Quote(ident string) string {
	return pq.QuoteIdentifier(ident)
}

func (PostgresDialect) UpsertSuffix(conflictColumns []string, updateColumns []string) string {
	return excludedUpsert(conflictColumns, updateColumns, "EXCLUDED")
}

// SQLiteDialect implements Dialect for SQLite (local mode and tests).
type SQLiteDialect struct{}

var _ Dialect = SQLiteDialect{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) Rebind(query string) string { return query }

func (SQLiteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (SQLiteDialect) UpsertSuffix(conflictColumns []string, updateColumns []string) string {
	return excludedUpsert(conflictColumns, updateColumns, "excluded")
}

// MySQLDialect implements Dialect for MySQL/Vitess.
type MySQLDialect struct{}

var _ Dialect = MySQLDialect{}

func (MySQLDialect) Name() string { return "mysql" }

func (MySQLDialect) Rebind(query string) string { return query }

func (MySQLDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (MySQLDialect) UpsertSuffix(conflictColumns []string, updateColumns []string) string {
	if len(updateColumns) == 0 {
		return ""
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
}

func excludedUpsert(conflictColumns, updateColumns []string, excluded string) string {
	if len(updateColumns) == 0 {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(conflictColumns, ", "))
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s = %s.%s", col, excluded, col)
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(conflictColumns, ", "), strings.Join(updates, ", "))
}
