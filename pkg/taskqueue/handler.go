// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/LeeDigitalWorks/docindex/pkg/logger"
)

// QueueStatus is the snapshot served by Handler.
type QueueStatus struct {
	InstanceID string           `json:"instance_id"`
	QueueSize  int              `json:"queue_size"`
	ByType     map[TaskType]int `json:"by_type"`
	Running    *TaskData        `json:"running,omitempty"`
	Pending    []TaskData       `json:"pending"`
}

// Status returns a snapshot of the queue.
func (m *Manager) Status() QueueStatus {
	pending := m.Pending()
	st := QueueStatus{
		InstanceID: m.instanceID,
		QueueSize:  len(pending),
		ByType:     make(map[TaskType]int),
		Pending:    pending,
	}
	for _, t := range pending {
		st.ByType[t.Type]++
	}
	if t, ok := m.Running(); ok {
		st.Running = &t
	}
	return st
}

// Handler serves the queue on the debug mux.
//
//	GET  returns the QueueStatus.
//	POST ?wiki=&doc_id=&version=&type=[&replace=true] queues a task and
//	     returns it with 202. The request does not wait for the task.
func Handler(m *Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, m.Status())
		case http.MethodPost:
			task, err := parseTask(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			var f *Future
			if r.URL.Query().Get("replace") == "true" {
				f = m.ReplaceTask(r.Context(), task.WikiID, task.DocumentID, task.Version, task.Type)
			} else {
				f = m.AddTask(r.Context(), task.WikiID, task.DocumentID, task.Version, task.Type)
			}
			writeJSON(w, http.StatusAccepted, f.Task())
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

type badRequest string

func (e badRequest) Error() string { return string(e) }

func parseTask(r *http.Request) (TaskData, error) {
	q := r.URL.Query()

	task := TaskData{
		WikiID:  q.Get("wiki"),
		Version: q.Get("version"),
		Type:    TaskType(q.Get("type")),
	}
	if task.WikiID == "" || task.Version == "" || task.Type == "" {
		return TaskData{}, badRequest("wiki, doc_id, version and type are required")
	}

	id, err := strconv.ParseInt(q.Get("doc_id"), 10, 64)
	if err != nil || id <= 0 {
		return TaskData{}, badRequest("doc_id must be a positive integer")
	}
	task.DocumentID = id
	return task, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("failed to encode response")
	}
}
