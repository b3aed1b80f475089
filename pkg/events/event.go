// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"encoding/json"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/taskqueue"
)

// Event is the JSON document published when a task leaves the queue.
type Event struct {
	Instance   string  `json:"instance"`
	Wiki       string  `json:"wiki"`
	DocumentID int64   `json:"doc_id"`
	Version    string  `json:"version"`
	Type       string  `json:"type"`
	State      string  `json:"state"`
	Status     string  `json:"status"`
	Attempts   int     `json:"attempts"`
	DurationMs float64 `json:"duration_ms"`
	Timestamp  int64   `json:"timestamp"` // unix millis
}

// NewEvent builds the event of an outcome.
func NewEvent(instance string, o taskqueue.Outcome, now time.Time) *Event {
	return &Event{
		Instance:   instance,
		Wiki:       o.Task.WikiID,
		DocumentID: o.Task.DocumentID,
		Version:    o.Task.Version,
		Type:       string(o.Task.Type),
		State:      o.State.String(),
		Status:     o.Status,
		Attempts:   o.Attempts,
		DurationMs: float64(o.Duration.Microseconds()) / 1000,
		Timestamp:  now.UnixMilli(),
	}
}

// Marshal encodes the event.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent decodes an event published by a Notifier.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
