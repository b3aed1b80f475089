// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/logger"
	"github.com/LeeDigitalWorks/docindex/pkg/taskqueue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clockExecutor records the fake time of every execution.
type clockExecutor struct {
	mu    sync.Mutex
	start time.Time
	at    []time.Duration
	fail  int // number of leading attempts that fail
}

func (c *clockExecutor) Execute(context.Context, taskqueue.TaskData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = append(c.at, time.Since(c.start))
	if len(c.at) <= c.fail {
		return errors.New("consumer unavailable")
	}
	return nil
}

func (c *clockExecutor) times() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.at...)
}

func newSynctestManager(t *testing.T, x taskqueue.TaskExecutor, mutate func(*taskqueue.ManagerConfig)) *taskqueue.Manager {
	cfg := taskqueue.ManagerConfig{
		InstanceID: "instance-1",
		Store:      taskqueue.NewMemoryStore(nil),
		Executor:   x,
		Logger:     logger.New(io.Discard),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := taskqueue.NewManager(cfg)
	require.NoError(t, err)
	return m
}

// TestManager_RetryBackoff_Synctest checks the exponential retry delay with controlled time.
func TestManager_RetryBackoff_Synctest(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		x := &clockExecutor{start: time.Now(), fail: 3}
		m := newSynctestManager(t, x, func(cfg *taskqueue.ManagerConfig) {
			cfg.RetryDelay = time.Second
			cfg.MaxRetryDelay = 3 * time.Second
		})
		m.Start(context.Background())
		defer m.Stop()

		f := m.AddTask(context.Background(), "wiki1", 42, "1.2", taskqueue.TaskTypeSearch)
		_, err := f.Wait(context.Background())
		require.NoError(t, err)

		// 1s, then 2s, then capped at 3s.
		assert.Equal(t, []time.Duration{0, time.Second, 3 * time.Second, 6 * time.Second}, x.times())
	})
}

// TestManager_ImmediateRetry_Synctest checks that a zero retry delay retries without waiting.
func TestManager_ImmediateRetry_Synctest(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		x := &clockExecutor{start: time.Now(), fail: 5}
		m := newSynctestManager(t, x, nil)
		m.Start(context.Background())
		defer m.Stop()

		_, err := m.AddTask(context.Background(), "wiki1", 42, "1.2", taskqueue.TaskTypeSearch).Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, make([]time.Duration, 6), x.times())
	})
}

// TestManager_StopInterruptsBackoff_Synctest checks that Stop does not wait out a retry delay.
func TestManager_StopInterruptsBackoff_Synctest(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		x := &clockExecutor{start: time.Now(), fail: 1 << 30}
		m := newSynctestManager(t, x, func(cfg *taskqueue.ManagerConfig) {
			cfg.RetryDelay = time.Hour
		})
		m.Start(context.Background())

		f := m.AddTask(context.Background(), "wiki1", 42, "1.2", taskqueue.TaskTypeSearch)
		synctest.Wait()
		require.Len(t, x.times(), 1)

		before := time.Now()
		m.Stop()
		assert.Zero(t, time.Since(before))
		assert.Equal(t, taskqueue.StatePending, f.State())
		assert.Equal(t, 1, m.QueueSize())
	})
}

// TestManager_RateLimit_Synctest checks MaxTasksPerSecond with controlled time.
func TestManager_RateLimit_Synctest(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		x := &clockExecutor{start: time.Now()}
		m := newSynctestManager(t, x, func(cfg *taskqueue.ManagerConfig) {
			cfg.MaxTasksPerSecond = 2
		})
		ctx := context.Background()

		var last *taskqueue.Future
		for docID := range int64(4) {
			last = m.AddTask(ctx, "wiki1", docID, "1.1", taskqueue.TaskTypeLinks)
		}
		m.Start(ctx)
		defer m.Stop()

		_, err := last.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, []time.Duration{0, 0, 500 * time.Millisecond, time.Second}, x.times())
	})
}
