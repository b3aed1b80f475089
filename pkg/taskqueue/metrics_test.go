// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/LeeDigitalWorks/docindex/pkg/taskqueue"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The metrics are process-wide, so these tests use their own task types and
// do not run in parallel.

func TestMetrics_QueueDepth(t *testing.T) {
	const typ taskqueue.TaskType = "metrics-depth"

	h := newHarness(t)
	ctx := context.Background()
	depth := taskqueue.QueueDepth.WithLabelValues(string(typ))

	h.manager.AddTask(ctx, "wiki1", 1, "1.1", typ)
	h.manager.AddTask(ctx, "wiki1", 2, "1.1", typ)
	last := h.manager.AddTask(ctx, "wiki1", 3, "1.1", typ)
	assert.Equal(t, float64(3), testutil.ToFloat64(depth))

	h.manager.ReplaceTask(ctx, "wiki1", 2, "1.2", typ)
	assert.Equal(t, float64(3), testutil.ToFloat64(depth), "replace keeps one entry per key")

	h.start()
	_, err := wait(t, last)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.manager.QueueSize() == 0 }, waitTimeout, tick)
	assert.Zero(t, testutil.ToFloat64(depth))
}

func TestMetrics_CancelledAndCoalesced(t *testing.T) {
	const typ taskqueue.TaskType = "metrics-dedup"

	h := newHarness(t)
	ctx := context.Background()
	cancelled := taskqueue.TasksCancelledTotal.WithLabelValues(string(typ))
	coalesced := taskqueue.TasksCoalescedTotal.WithLabelValues(string(typ))
	cancelledBefore := testutil.ToFloat64(cancelled)
	coalescedBefore := testutil.ToFloat64(coalesced)

	h.manager.AddTask(ctx, "wiki1", 42, "1.2", typ)
	h.manager.AddTask(ctx, "wiki1", 42, "1.2", typ)
	h.manager.AddTask(ctx, "wiki1", 42, "1.2", typ)
	assert.Equal(t, float64(2), testutil.ToFloat64(coalesced)-coalescedBefore)
	assert.Zero(t, testutil.ToFloat64(cancelled)-cancelledBefore)

	h.manager.ReplaceTask(ctx, "wiki1", 42, "1.3", typ)
	h.manager.AddTask(ctx, "wiki1", 42, "1.4", typ)
	assert.Equal(t, float64(2), testutil.ToFloat64(cancelled)-cancelledBefore)
}

func TestMetrics_PersistenceErrors(t *testing.T) {
	tests := []struct {
		op   string
		call func(m *taskqueue.Manager) *taskqueue.Future
	}{
		{taskqueue.OpAdd, func(m *taskqueue.Manager) *taskqueue.Future {
			return m.AddTask(context.Background(), "wiki1", 42, "1.2", typeIdx)
		}},
		{taskqueue.OpReplace, func(m *taskqueue.Manager) *taskqueue.Future {
			return m.ReplaceTask(context.Background(), "wiki1", 42, "1.2", typeIdx)
		}},
		{taskqueue.OpDelete, func(m *taskqueue.Manager) *taskqueue.Future {
			return m.AddTask(context.Background(), "wiki1", 42, "1.2", typeIdx)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			counter := taskqueue.PersistenceErrors.WithLabelValues(tt.op)
			before := testutil.ToFloat64(counter)

			h := newHarness(t)
			h.store.FailNext(tt.op, errors.New("connection refused"))
			h.start()

			_, err := wait(t, tt.call(h.manager))
			require.NoError(t, err)
			require.Eventually(t, func() bool { return testutil.ToFloat64(counter)-before == 1 }, waitTimeout, tick)
		})
	}
}
