// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"sync"
)

// State is the resolution state of a Future.
type State int

const (
	StatePending State = iota
	StateCancelled
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCancelled:
		return "cancelled"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Result is a snapshot of a resolved Future.
type Result struct {
	State State
	Task  TaskData
}

// Future is the completion handle of a queued task. It resolves exactly
// once: with the task itself after a successful execution, or as cancelled
// when a newer task superseded it before it started.
type Future struct {
	task TaskData

	once  sync.Once
	done  chan struct{}
	state State
}

func newFuture(task TaskData) *Future {
	return &Future{task: task, done: make(chan struct{})}
}

// Task returns the task this future belongs to.
func (f *Future) Task() TaskData {
	return f.task
}

// Done is closed when the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends. It returns the task on
// completion and ErrTaskCancelled if the task was superseded.
func (f *Future) Wait(ctx context.Context) (TaskData, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return TaskData{}, ctx.Err()
	}
	if f.state == StateCancelled {
		return TaskData{}, ErrTaskCancelled
	}
	return f.task, nil
}

// Result returns the resolution of f without blocking. ok is false while
// the future is pending.
func (f *Future) Result() (r Result, ok bool) {
	select {
	case <-f.done:
		return Result{State: f.state, Task: f.task}, true
	default:
		return Result{State: StatePending}, false
	}
}

// State returns the current state of f.
func (f *Future) State() State {
	r, _ := f.Result()
	return r.State
}

// Cancelled reports whether f resolved as cancelled.
func (f *Future) Cancelled() bool {
	return f.State() == StateCancelled
}

func (f *Future) complete() bool {
	return f.resolve(StateCompleted)
}

func (f *Future) cancel() bool {
	return f.resolve(StateCancelled)
}

func (f *Future) resolve(s State) bool {
	resolved := false
	f.once.Do(func() {
		f.state = s
		close(f.done)
		resolved = true
	})
	return resolved
}
