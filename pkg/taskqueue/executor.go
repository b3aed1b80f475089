// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"errors"
	"fmt"

	zctx "github.com/LeeDigitalWorks/docindex/pkg/context"
	"github.com/LeeDigitalWorks/docindex/pkg/document"
	"github.com/LeeDigitalWorks/docindex/pkg/logger"
)

// ExecutorConfig configures the task executor.
type ExecutorConfig struct {
	// Store resolves the document head of a task.
	Store Store

	// Revisions resolves the document version of a task.
	Revisions document.RevisionProvider

	Consumers *Registry
}

// Executor runs one task with the consumer registered for its type.
type Executor struct {
	store     Store
	revisions document.RevisionProvider
	consumers *Registry
}

var _ TaskExecutor = (*Executor)(nil)

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Consumers == nil {
		cfg.Consumers = NewRegistry()
	}
	return &Executor{
		store:     cfg.Store,
		revisions: cfg.Revisions,
		consumers: cfg.Consumers,
	}
}

// Execute runs task in a fresh execution scope of its wiki. Errors are
// returned as is; retrying is up to the caller. The error wraps
// ErrUnknownTaskType when no consumer handles the task type and
// document.ErrNotFound when the document version no longer exists. When the
// document itself is gone, a consumer implementing Remover drops it first.
func (x *Executor) Execute(ctx context.Context, task TaskData) error {
	ctx, pop := zctx.Push(ctx, task.WikiID)
	defer pop()

	consumer, ok := x.consumers.Lookup(task.Type)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTaskType, task.Type)
	}

	doc, err := x.store.GetDocument(ctx, task.WikiID, task.DocumentID)
	if err != nil {
		if r, ok := consumer.(Remover); ok && errors.Is(err, document.ErrNotFound) {
			if rmErr := r.Remove(ctx, task.WikiID, task.DocumentID); rmErr != nil {
				return fmt.Errorf("%s consumer: remove deleted document: %w", task.Type, rmErr)
			}
			logger.Ctx(ctx).Debug().EmbedObject(task).Msg("taskqueue: removed deleted document")
		}
		return err
	}
	rev, err := x.revisions.Revision(ctx, doc, task.Version)
	if err != nil {
		return fmt.Errorf("resolve revision: %w", err)
	}

	logger.Ctx(ctx).Debug().
		EmbedObject(task).
		Str("document", doc.Name).
		Msg("taskqueue: executing task")

	if err := consumer.Consume(ctx, rev); err != nil {
		return fmt.Errorf("%s consumer: %w", task.Type, err)
	}
	return nil
}
