// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/logger"
	"github.com/LeeDigitalWorks/docindex/pkg/taskqueue"
)

// Publisher delivers an encoded event. The wiki is used for routing
// (channel suffix, partition key).
type Publisher interface {
	Name() string
	Publish(ctx context.Context, wiki string, data []byte) error
	Close() error
}

// Compile-time interface verification
var _ taskqueue.Listener = (*Notifier)(nil)

// Notifier turns task outcomes into events and fans them out to the
// publishers.
type Notifier struct {
	instance   string
	publishers []Publisher
	timeout    time.Duration
	now        func() time.Time
}

// NotifierConfig configures the notifier.
type NotifierConfig struct {
	// Instance is copied into every event, usually the manager instance id.
	Instance   string
	Publishers []Publisher

	// Timeout bounds the delivery to one publisher (default: 5s).
	Timeout time.Duration
}

// NewNotifier creates a notifier. With no publishers TaskFinished is a
// no-op.
func NewNotifier(cfg NotifierConfig) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Notifier{
		instance:   cfg.Instance,
		publishers: cfg.Publishers,
		timeout:    cfg.Timeout,
		now:        time.Now,
	}
}

// IsEnabled returns whether at least one publisher is configured.
func (n *Notifier) IsEnabled() bool {
	return len(n.publishers) > 0
}

// TaskFinished publishes the outcome to every publisher. Errors are logged
// and never returned to the queue.
func (n *Notifier) TaskFinished(ctx context.Context, o taskqueue.Outcome) {
	if !n.IsEnabled() {
		return
	}

	evt := NewEvent(n.instance, o, n.now())
	data, err := evt.Marshal()
	if err != nil {
		EventsErrorsTotal.WithLabelValues("marshal").Inc()
		logger.Ctx(ctx).Warn().Err(err).EmbedObject(o.Task).Msg("failed to marshal task event")
		return
	}
	EventsEmittedTotal.WithLabelValues(o.Status).Inc()

	// The task context may be cancelled when the manager stops.
	ctx = context.WithoutCancel(ctx)
	for _, p := range n.publishers {
		n.deliver(ctx, p, o.Task, data)
	}
}

func (n *Notifier) deliver(ctx context.Context, p Publisher, task taskqueue.TaskData, data []byte) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	start := time.Now()
	if err := p.Publish(ctx, task.WikiID, data); err != nil {
		EventsDeliveryErrorsTotal.WithLabelValues(p.Name()).Inc()
		logger.Ctx(ctx).Warn().
			Err(err).
			Str("publisher", p.Name()).
			EmbedObject(task).
			Msg("failed to deliver task event")
		return
	}
	EventsDeliveredTotal.WithLabelValues(p.Name()).Inc()
	EventsDeliveryDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
}

// Close closes every publisher.
func (n *Notifier) Close() error {
	var errs []error
	for _, p := range n.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
