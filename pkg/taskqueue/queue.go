// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/document"
)

// Common errors
var (
	ErrTaskCancelled   = errors.New("task was superseded before it started")
	ErrUnknownTaskType = errors.New("no consumer registered for task type")
)

// Store operations, used in PersistenceError and metrics.
const (
	OpGetAll      = "get_all"
	OpAdd         = "add"
	OpDelete      = "delete"
	OpReplace     = "replace"
	OpGetDocument = "get_document"
)

// PersistenceError is returned by every Store operation that fails.
type PersistenceError struct {
	Op   string
	Wiki string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("taskqueue: %s on wiki %s: %v", e.Op, e.Wiki, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op, wiki string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Wiki: wiki, Err: err}
}

// Store persists queued tasks per wiki so they survive a restart. Every
// operation runs in an execution scope of the wiki.
type Store interface {
	// GetAllTasks returns the rows owned by instanceID, oldest first.
	GetAllTasks(ctx context.Context, wiki, instanceID string) ([]Row, error)

	// AddTask stamps row with the current time and upserts it.
	AddTask(ctx context.Context, wiki string, row Row) error

	// DeleteTask deletes the row with the exact key.
	DeleteTask(ctx context.Context, wiki string, docID int64, version string, taskType TaskType) error

	// ReplaceTask deletes every row of (row.DocumentID, row.Type), whatever
	// its version, then upserts row with the current time.
	ReplaceTask(ctx context.Context, wiki string, row Row) error

	// GetDocument returns the current head of a document.
	GetDocument(ctx context.Context, wiki string, docID int64) (document.Handle, error)
}

// TaskExecutor performs the side effect of one task. It never retries.
type TaskExecutor interface {
	Execute(ctx context.Context, task TaskData) error
}

// Outcome describes how a task left the queue.
type Outcome struct {
	Task  TaskData
	State State

	// Status is "completed", "skipped", "no_consumer" or "cancelled".
	Status   string
	Attempts int
	Duration time.Duration
}

// Listener is notified once for every task that leaves the queue. It is
// called from the consumer goroutine or from the caller that superseded
// the task, never with the manager lock held.
type Listener interface {
	TaskFinished(ctx context.Context, o Outcome)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, o Outcome)

func (f ListenerFunc) TaskFinished(ctx context.Context, o Outcome) {
	f(ctx, o)
}
