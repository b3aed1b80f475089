// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/taskqueue"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	wiki  string
	event Event
}

type fakePublisher struct {
	name string
	err  error

	mu     sync.Mutex
	got    []published
	ctxErr []error
	closed bool
}

func (p *fakePublisher) Name() string { return p.name }

func (p *fakePublisher) Publish(ctx context.Context, wiki string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctxErr = append(p.ctxErr, ctx.Err())
	if p.err != nil {
		return p.err
	}
	evt, err := UnmarshalEvent(data)
	if err != nil {
		return err
	}
	p.got = append(p.got, published{wiki: wiki, event: *evt})
	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.err
}

func testOutcome() taskqueue.Outcome {
	return taskqueue.Outcome{
		Task: taskqueue.TaskData{
			WikiID:     "main",
			DocumentID: 42,
			Version:    "1.2",
			Type:       taskqueue.TaskTypeSearch,
		},
		State:    taskqueue.StateCompleted,
		Status:   taskqueue.StatusCompleted,
		Attempts: 2,
		Duration: 1500 * time.Microsecond,
	}
}

func TestNotifier_TaskFinished(t *testing.T) {
	t.Parallel()

	failing := &fakePublisher{name: "broken", err: errors.New("unavailable")}
	ok := &fakePublisher{name: "ok"}

	n := NewNotifier(NotifierConfig{Instance: "node-1", Publishers: []Publisher{failing, ok}})
	now := time.UnixMilli(1700000000000)
	n.now = func() time.Time { return now }
	require.True(t, n.IsEnabled())

	n.TaskFinished(context.Background(), testOutcome())

	want := []published{{
		wiki: "main",
		event: Event{
			Instance:   "node-1",
			Wiki:       "main",
			DocumentID: 42,
			Version:    "1.2",
			Type:       "search",
			State:      "completed",
			Status:     "completed",
			Attempts:   2,
			DurationMs: 1.5,
			Timestamp:  1700000000000,
		},
	}}
	if diff := cmp.Diff(want, ok.got, cmp.AllowUnexported(published{})); diff != "" {
		t.Errorf("published events mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, failing.ctxErr, 1, "failing publisher must still be called once")
}

func TestNotifier_DeliversAfterCancel(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{name: "ok"}
	n := NewNotifier(NotifierConfig{Publishers: []Publisher{pub}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := testOutcome()
	o.State = taskqueue.StateCancelled
	o.Status = taskqueue.StatusCancelled
	n.TaskFinished(ctx, o)

	require.Len(t, pub.got, 1)
	assert.NoError(t, pub.ctxErr[0])
	assert.Equal(t, "cancelled", pub.got[0].event.State)
}

func TestNotifier_Disabled(t *testing.T) {
	t.Parallel()

	n := NewNotifier(NotifierConfig{})
	assert.False(t, n.IsEnabled())

	// Should not panic
	n.TaskFinished(context.Background(), testOutcome())
	assert.NoError(t, n.Close())
}

func TestNotifier_Close(t *testing.T) {
	t.Parallel()

	a := &fakePublisher{name: "a"}
	b := &fakePublisher{name: "b", err: errors.New("close failed")}
	n := NewNotifier(NotifierConfig{Publishers: []Publisher{a, b}})

	err := n.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close failed")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.Kafka.RequiredAcks = 5
	cfg.Validate()

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "docindex:tasks", cfg.Redis.Channel)
	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
	assert.Equal(t, "docindex-tasks", cfg.Kafka.Topic)
	assert.Equal(t, 1, cfg.Kafka.RequiredAcks)
	assert.Equal(t, "snappy", cfg.Kafka.Compression)
	assert.Equal(t, 100, cfg.Kafka.BatchSize)
	assert.Equal(t, time.Second, cfg.Kafka.BatchTimeout)
}

func TestConfig_NewPublishers(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.False(t, cfg.HasPublishers())

	pubs, err := cfg.NewPublishers()
	require.NoError(t, err)
	assert.Empty(t, pubs)

	cfg.Enabled = true
	cfg.Kafka.Enabled = true
	assert.True(t, cfg.HasPublishers())

	_, err = cfg.NewPublishers()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one Kafka broker is required")
}
