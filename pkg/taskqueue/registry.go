// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"slices"
	"sync"

	"github.com/LeeDigitalWorks/docindex/pkg/document"
	"github.com/LeeDigitalWorks/docindex/pkg/logger"
)

// Consumer performs the indexing work of one task type.
type Consumer interface {
	// Type returns the task type this consumer processes.
	Type() TaskType

	// Consume indexes rev and returns an error if it failed.
	Consume(ctx context.Context, rev *document.Revision) error
}

// Remover is implemented by consumers that keep state derived from a
// document. Remove is called when a task finds its document deleted.
type Remover interface {
	Remove(ctx context.Context, wiki string, docID int64) error
}

// Registry maps task types to consumers. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	consumers map[TaskType]Consumer
}

// NewRegistry returns a registry holding consumers.
func NewRegistry(consumers ...Consumer) *Registry {
	r := &Registry{consumers: make(map[TaskType]Consumer)}
	for _, c := range consumers {
		r.Register(c)
	}
	return r
}

// Register adds c, replacing the consumer previously registered for its type.
func (r *Registry) Register(c Consumer) {
	if c == nil {
		return
	}
	r.mu.Lock()
	r.consumers[c.Type()] = c
	r.mu.Unlock()

	logger.Debug().
		Str("type", string(c.Type())).
		Msg("taskqueue: registered consumer")
}

// Lookup returns the consumer of t.
func (r *Registry) Lookup(t TaskType) (Consumer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.consumers[t]
	return c, ok
}

// Types returns the registered task types, sorted.
func (r *Registry) Types() []TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]TaskType, 0, len(r.consumers))
	for t := range r.consumers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
