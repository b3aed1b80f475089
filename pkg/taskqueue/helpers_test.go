// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/logger"
	"github.com/LeeDigitalWorks/docindex/pkg/taskqueue"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	waitTimeout = 5 * time.Second
	tick        = 10 * time.Millisecond
)

// fakeExecutor records every execution and delegates to fn when set.
type fakeExecutor struct {
	mu    sync.Mutex
	calls []taskqueue.TaskData
	fn    func(ctx context.Context, task taskqueue.TaskData, attempt int) error
}

func (f *fakeExecutor) Execute(ctx context.Context, task taskqueue.TaskData) error {
	f.mu.Lock()
	f.calls = append(f.calls, task)
	attempt := 0
	for _, c := range f.calls {
		if c == task {
			attempt++
		}
	}
	fn := f.fn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, task, attempt)
	}
	return nil
}

func (f *fakeExecutor) Calls() []taskqueue.TaskData {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]taskqueue.TaskData, len(f.calls))
	copy(out, f.calls)
	return out
}

// recordingListener collects outcomes.
type recordingListener struct {
	mu       sync.Mutex
	outcomes []taskqueue.Outcome
}

func (l *recordingListener) TaskFinished(_ context.Context, o taskqueue.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, o)
}

func (l *recordingListener) Outcomes() []taskqueue.Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]taskqueue.Outcome, len(l.outcomes))
	copy(out, l.outcomes)
	return out
}

// blockingListener records outcomes once unblock is closed.
type blockingListener struct {
	*recordingListener
	unblock chan struct{}
}

func (l *blockingListener) TaskFinished(ctx context.Context, o taskqueue.Outcome) {
	<-l.unblock
	l.recordingListener.TaskFinished(ctx, o)
}

// waitOutcomes waits until n outcomes were delivered and returns them.
func (l *recordingListener) waitOutcomes(t *testing.T, n int) []taskqueue.Outcome {
	t.Helper()
	require.Eventually(t, func() bool { return len(l.Outcomes()) >= n }, waitTimeout, tick,
		"listener did not receive %d outcomes", n)
	return l.Outcomes()
}

// logBuffer is a goroutine-safe sink for a test logger.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// count returns the number of events at level whose message contains msg.
func (b *logBuffer) count(level zerolog.Level, msg string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for sc.Scan() {
		var ev struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		}
		if json.Unmarshal(sc.Bytes(), &ev) != nil {
			continue
		}
		if ev.Level == level.String() && strings.Contains(ev.Message, msg) {
			n++
		}
	}
	return n
}

type harness struct {
	manager  *taskqueue.Manager
	store    *taskqueue.MemoryStore
	executor *fakeExecutor
	listener *recordingListener
	logs     *logBuffer
}

// newHarness builds a stopped manager over a memory store and a fake
// executor. The manager is stopped on cleanup.
func newHarness(t *testing.T, mutate ...func(*taskqueue.ManagerConfig)) *harness {
	t.Helper()

	h := &harness{
		store:    taskqueue.NewMemoryStore(nil),
		executor: &fakeExecutor{},
		listener: &recordingListener{},
		logs:     &logBuffer{},
	}
	cfg := taskqueue.ManagerConfig{
		InstanceID: "instance-1",
		Store:      h.store,
		Executor:   h.executor,
		Listener:   h.listener,
		Logger:     logger.New(h.logs),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	m, err := taskqueue.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	h.manager = m
	return h
}

func (h *harness) start() {
	h.manager.Start(context.Background())
}

// wait resolves f or fails the test after waitTimeout.
func wait(t *testing.T, f *taskqueue.Future) (taskqueue.TaskData, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	task, err := f.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "future did not resolve")
	return task, err
}

func newTask(wiki string, docID int64, version string, typ taskqueue.TaskType) taskqueue.TaskData {
	return taskqueue.TaskData{WikiID: wiki, DocumentID: docID, Version: version, Type: typ}
}
