// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"github.com/LeeDigitalWorks/docindex/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

// Task statuses reported in Outcome and tasks_processed_total.
const (
	StatusCompleted  = "completed"
	StatusSkipped    = "skipped"     // document or revision no longer exists
	StatusNoConsumer = "no_consumer" // unknown task type
	StatusCancelled  = "cancelled"   // superseded before it started
)

// Enqueue operations reported in tasks_enqueued_total.
const (
	enqueueAdd     = "add"
	enqueueReplace = "replace"
	enqueueRecover = "recover"
)

var (
	// TasksEnqueuedTotal tracks tasks appended to the queue by type and operation
	TasksEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docindex",
		Subsystem: "taskqueue",
		Name:      "tasks_enqueued_total",
		Help:      "Total number of tasks enqueued",
	}, []string{"type", "op"}) // op: "add", "replace", "recover"

	// TasksProcessedTotal tracks tasks that left the queue by type and status
	TasksProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docindex",
		Subsystem: "taskqueue",
		Name:      "tasks_processed_total",
		Help:      "Total number of tasks processed",
	}, []string{"type", "status"})

	// TaskExecutionDuration tracks the duration of single execution attempts
	TaskExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "docindex",
		Subsystem: "taskqueue",
		Name:      "task_execution_duration_seconds",
		Help:      "Time spent executing a task attempt",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"type"})

	// TaskRetries tracks failed execution attempts that will be retried
	TaskRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docindex",
		Subsystem: "taskqueue",
		Name:      "task_retries_total",
		Help:      "Total number of task retries",
	}, []string{"type"})

	// TasksCancelledTotal tracks queued tasks superseded by a newer version
	TasksCancelledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docindex",
		Subsystem: "taskqueue",
		Name:      "tasks_cancelled_total",
		Help:      "Total number of queued tasks superseded before they started",
	}, []string{"type"})

	// TasksCoalescedTotal tracks requests answered with an identical queued task
	TasksCoalescedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docindex",
		Subsystem: "taskqueue",
		Name:      "tasks_coalesced_total",
		Help:      "Total number of requests coalesced with an identical queued task",
	}, []string{"type"})

	// PersistenceErrors tracks failed store operations
	PersistenceErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docindex",
		Subsystem: "taskqueue",
		Name:      "persistence_errors_total",
		Help:      "Total number of failed task store operations",
	}, []string{"op"})

	// QueueDepth tracks queued tasks that have not started, by type
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "docindex",
		Subsystem: "taskqueue",
		Name:      "queue_depth",
		Help:      "Current number of queued tasks by type",
	}, []string{"type"})

	// DeadlockRetries tracks database deadlock retries in the SQL store
	DeadlockRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docindex",
		Subsystem: "taskqueue",
		Name:      "deadlock_retries_total",
		Help:      "Total number of SQL store deadlock retries",
	})
)

func init() {
	debug.Registry().MustRegister(
		TasksEnqueuedTotal,
		TasksProcessedTotal,
		TaskExecutionDuration,
		TaskRetries,
		TasksCancelledTotal,
		TasksCoalescedTotal,
		PersistenceErrors,
		QueueDepth,
		DeadlockRetries,
	)
}
