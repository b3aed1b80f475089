// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskqueue schedules, deduplicates, persists and executes document
// indexing tasks.
//
// A Manager owns one in-memory FIFO queue drained by a single consumer
// goroutine. At most one task per (wiki, document, type) is queued at any
// time: an identical request coalesces with the queued task and a newer
// version supersedes it. Queued tasks are written to a Store on a best-effort
// basis so they can be recovered after a restart.
//
// Store backends:
// - Database (PostgreSQL, CockroachDB, MySQL, Vitess, SQLite) via pkg/tenant
// - LevelDB - embedded, single node
// - In-memory - for testing only
package taskqueue

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TaskType identifies the consumer that handles a task.
type TaskType string

// Built-in task types
const (
	TaskTypeSearch TaskType = "search" // Search index update
	TaskTypeLinks  TaskType = "links"  // Backlinks update
)

// TaskData is one unit of indexing work: a document version to process with
// the consumer of Type. It is a comparable value; two tasks are equal when
// all four fields are equal.
type TaskData struct {
	WikiID     string   `json:"wiki"`
	DocumentID int64    `json:"doc_id"`
	Version    string   `json:"version"`
	Type       TaskType `json:"type"`
}

// Key identifies the slot a task occupies in the queue. Versions of the
// same document and type share a key.
type Key struct {
	WikiID     string
	DocumentID int64
	Type       TaskType
}

// Key returns the queue slot of t.
func (t TaskData) Key() Key {
	return Key{WikiID: t.WikiID, DocumentID: t.DocumentID, Type: t.Type}
}

// Row returns the persisted form of t owned by instanceID.
func (t TaskData) Row(instanceID string) Row {
	return Row{
		InstanceID: instanceID,
		DocumentID: t.DocumentID,
		Version:    t.Version,
		Type:       t.Type,
	}
}

// MarshalZerologObject adds the task fields to a log event.
func (t TaskData) MarshalZerologObject(e *zerolog.Event) {
	e.Str("wiki", t.WikiID).
		Int64("doc_id", t.DocumentID).
		Str("version", t.Version).
		Str("type", string(t.Type))
}

func (t TaskData) String() string {
	return fmt.Sprintf("%s:%d@%s/%s", t.WikiID, t.DocumentID, t.Version, t.Type)
}

// Row is a persisted task. Rows live in the store of their wiki; identity
// is (InstanceID, DocumentID, Version, Type) and (DocumentID, Version, Type)
// is unique within a wiki.
type Row struct {
	InstanceID string    `json:"instance_id" db:"instance_id"`
	DocumentID int64     `json:"doc_id" db:"doc_id"`
	Version    string    `json:"version" db:"version"`
	Type       TaskType  `json:"type" db:"type"`
	Timestamp  time.Time `json:"timestamp" db:"ts"`
}

// Task returns the task described by r in wiki.
func (r Row) Task(wiki string) TaskData {
	return TaskData{
		WikiID:     wiki,
		DocumentID: r.DocumentID,
		Version:    r.Version,
		Type:       r.Type,
	}
}
