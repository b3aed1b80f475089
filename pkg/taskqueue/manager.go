// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/document"
	"github.com/LeeDigitalWorks/docindex/pkg/logger"
	"github.com/LeeDigitalWorks/docindex/pkg/utils"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ManagerConfig configures the task manager.
type ManagerConfig struct {
	// InstanceID tags the rows this process writes. Recover only finds rows
	// written under the same id.
	InstanceID string

	Store    Store
	Executor TaskExecutor
	// Listener is notified of every finished or cancelled task from a
	// dedicated goroutine, in order. Optional.
	Listener Listener

	// Logger defaults to the global logger.
	Logger *zerolog.Logger

	// RetryDelay is the delay before the first retry of a failed task. It
	// doubles on every further failure up to MaxRetryDelay. Zero retries
	// immediately.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// MaxTasksPerSecond limits execution attempts. Zero means unlimited.
	MaxTasksPerSecond float64
}

// Manager is the in-memory indexing queue of one process. Tasks are executed
// one at a time, in the order they became queued, by a single consumer
// goroutine started with Start.
type Manager struct {
	instanceID    string
	store         Store
	executor      TaskExecutor
	listener      Listener
	log           *zerolog.Logger
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	limiter       *rate.Limiter

	mu      sync.Mutex
	pending *pendingSet
	running *entry
	seq     uint64
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	// writing counts store writes in flight per task. The consumer keeps
	// the row of a finished task while an identical task is being written
	// or is queued, since both share one row.
	writing map[TaskData]int
	// deleting is the task whose row the consumer is removing. deleteDone
	// is closed when the delete returns.
	deleting   TaskData
	deleteDone chan struct{}

	// outcomes waits for the dispatch goroutine.
	outcomes     []Outcome
	notifyWake   chan struct{}
	notifyCancel context.CancelFunc
	notifyDone   chan struct{}

	wake chan struct{}
}

// NewManager creates a stopped manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("task store is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("task executor is required")
	}
	if cfg.InstanceID == "" {
		return nil, fmt.Errorf("instance id is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}

	var limiter *rate.Limiter
	if cfg.MaxTasksPerSecond > 0 {
		burst := max(int(cfg.MaxTasksPerSecond), 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxTasksPerSecond), burst)
	}

	return &Manager{
		instanceID:    cfg.InstanceID,
		store:         cfg.Store,
		executor:      cfg.Executor,
		listener:      cfg.Listener,
		log:           cfg.Logger,
		retryDelay:    cfg.RetryDelay,
		maxRetryDelay: cfg.MaxRetryDelay,
		limiter:       limiter,
		pending:       newPendingSet(),
		writing:       make(map[TaskData]int),
		notifyWake:    make(chan struct{}, 1),
		wake:          make(chan struct{}, 1),
	}, nil
}

// InstanceID returns the id under which this manager persists tasks.
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// AddTask queues a task and returns its future. If the identical task is
// already queued its future is returned and nothing is written. If another
// version of the document is queued for the same type, AddTask behaves like
// ReplaceTask.
//
// A store failure is logged and does not prevent the task from running.
func (m *Manager) AddTask(ctx context.Context, wiki string, docID int64, version string, taskType TaskType) *Future {
	task := TaskData{WikiID: wiki, DocumentID: docID, Version: version, Type: taskType}

	m.mu.Lock()
	if e, ok := m.pending.get(task.Key()); ok {
		if e.task == task {
			m.mu.Unlock()
			m.coalesced(task)
			return e.future
		}
		m.mu.Unlock()
		return m.ReplaceTask(ctx, wiki, docID, version, taskType)
	}
	m.beginWriteLocked(task)

	if err := m.store.AddTask(ctx, wiki, task.Row(m.instanceID)); err != nil {
		m.persistenceFailed(OpAdd, task, err)
	}
	return m.enqueue(task, enqueueAdd)
}

// ReplaceTask supersedes the queued task of the same document and type, if
// any: its future resolves as cancelled. The new task is appended at the
// tail of the queue. A task that already started is not affected and its
// future still resolves with its own value.
func (m *Manager) ReplaceTask(ctx context.Context, wiki string, docID int64, version string, taskType TaskType) *Future {
	task := TaskData{WikiID: wiki, DocumentID: docID, Version: version, Type: taskType}

	m.mu.Lock()
	old, ok := m.pending.get(task.Key())
	if ok {
		m.pending.remove(old)
		m.updateDepthLocked(taskType)
	}
	m.beginWriteLocked(task)

	if ok {
		m.supersede(old)
	}

	if err := m.store.ReplaceTask(ctx, wiki, task.Row(m.instanceID)); err != nil {
		m.persistenceFailed(OpReplace, task, err)
	}
	return m.enqueue(task, enqueueReplace)
}

// QueueSize returns the number of queued tasks that have not started.
func (m *Manager) QueueSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.len()
}

// QueueSizeOf returns the number of queued tasks of taskType that have not
// started.
func (m *Manager) QueueSizeOf(taskType TaskType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.lenOf(taskType)
}

// Pending returns the queued tasks in execution order.
func (m *Manager) Pending() []TaskData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.tasks()
}

// Running returns the task being executed, if any.
func (m *Manager) Running() (TaskData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running == nil {
		return TaskData{}, false
	}
	return m.running.task, true
}

// Recover queues the rows this instance persisted for wikis, oldest first,
// without writing them again. It returns how many tasks were queued. Rows of
// a wiki that cannot be read are skipped and reported in the returned error.
func (m *Manager) Recover(ctx context.Context, wikis ...string) (int, error) {
	var (
		errs      []error
		recovered int
	)

	for _, wiki := range wikis {
		rows, err := m.store.GetAllTasks(ctx, wiki, m.instanceID)
		if err != nil {
			PersistenceErrors.WithLabelValues(OpGetAll).Inc()
			m.log.Warn().Err(err).Str("wiki", wiki).Msg("taskqueue: failed to read persisted tasks")
			errs = append(errs, err)
			continue
		}
		for _, row := range rows {
			if m.recoverRow(ctx, row.Task(wiki)) {
				recovered++
			}
		}
	}

	if recovered > 0 {
		m.signal()
	}
	m.log.Info().
		Int("recovered", recovered).
		Strs("wikis", wikis).
		Msg("taskqueue: recovered persisted tasks")
	return recovered, errors.Join(errs...)
}

func (m *Manager) recoverRow(ctx context.Context, task TaskData) bool {
	m.mu.Lock()
	if e, ok := m.pending.get(task.Key()); ok {
		if e.task == task {
			m.mu.Unlock()
			return false
		}
		if !e.recovered {
			// A live request already replaced this row.
			m.mu.Unlock()
			m.deleteRow(ctx, task)
			return false
		}
	}
	e, superseded := m.insertLocked(task)
	e.recovered = true
	m.mu.Unlock()

	if superseded != nil {
		m.supersede(superseded)
		m.deleteRow(ctx, superseded.task)
	}
	TasksEnqueuedTotal.WithLabelValues(string(task.Type), enqueueRecover).Inc()
	return true
}

// Start launches the consumer goroutine. It is a no-op on a running manager.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	notifyCtx, notifyCancel := context.WithCancel(context.WithoutCancel(ctx))
	m.notifyCancel = notifyCancel
	notifyDone := make(chan struct{})
	m.notifyDone = notifyDone
	ctx, m.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	m.done = done
	queued := m.pending.len()
	m.mu.Unlock()

	m.log.Info().
		Str("instance_id", m.instanceID).
		Int("queued", queued).
		Msg("taskqueue: manager starting")

	go m.dispatch(notifyCtx, notifyDone)
	go m.run(ctx, done)
}

// Stop stops the consumer goroutine and waits for it to exit. A task that
// was running goes back to the head of the queue; queued tasks and their
// persisted rows are kept.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cancel, done := m.cancel, m.done
	notifyCancel, notifyDone := m.notifyCancel, m.notifyDone
	m.mu.Unlock()

	cancel()
	<-done
	notifyCancel()
	<-notifyDone

	m.log.Info().
		Str("instance_id", m.instanceID).
		Int("queued", m.QueueSize()).
		Msg("taskqueue: manager stopped")
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}
		e := m.next()
		if e == nil {
			select {
			case <-m.wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		m.process(ctx, e)
	}
}

// next moves the head of the queue to running.
func (m *Manager) next() *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.pending.popHead()
	if e != nil {
		m.running = e
		m.updateDepthLocked(e.task.Type)
	}
	return e
}

// process executes e until it succeeds, hits a terminal error or the
// manager stops.
func (m *Manager) process(ctx context.Context, e *entry) {
	task := e.task
	status := StatusCompleted
	attempts := 0
	start := time.Now()

	for {
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				m.requeue(e)
				return
			}
		}

		attempts++
		attemptStart := time.Now()
		err := m.executor.Execute(ctx, task)
		TaskExecutionDuration.WithLabelValues(string(task.Type)).Observe(time.Since(attemptStart).Seconds())
		if err == nil {
			break
		}

		if errors.Is(err, ErrUnknownTaskType) {
			m.log.Error().Err(err).EmbedObject(task).Msg("taskqueue: no consumer for task type, dropping task")
			status = StatusNoConsumer
			break
		}
		if errors.Is(err, document.ErrNotFound) {
			m.log.Info().Err(err).EmbedObject(task).Msg("taskqueue: document not found, skipping task")
			status = StatusSkipped
			break
		}
		if ctx.Err() != nil {
			m.requeue(e)
			return
		}

		m.log.Warn().Err(err).EmbedObject(task).Int("attempt", attempts).Msg("taskqueue: task execution failed, retrying")
		TaskRetries.WithLabelValues(string(task.Type)).Inc()

		if delay := utils.Backoff(m.retryDelay, m.maxRetryDelay, attempts); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				m.requeue(e)
				return
			case <-timer.C:
			}
		}
	}

	// The row goes even if the manager is stopping: the work is done.
	m.finishRow(context.WithoutCancel(ctx), task)
	e.future.complete()

	TasksProcessedTotal.WithLabelValues(string(task.Type), status).Inc()
	m.log.Debug().
		EmbedObject(task).
		Str("status", status).
		Int("attempts", attempts).
		Dur("duration", time.Since(start)).
		Msg("taskqueue: task finished")

	m.notify(Outcome{
		Task:     task,
		State:    StateCompleted,
		Status:   status,
		Attempts: attempts,
		Duration: time.Since(start),
	})
}

// requeue puts an interrupted task back at the head of the queue. If a
// newer task for the same key was queued meanwhile, the interrupted one is
// superseded instead.
func (m *Manager) requeue(e *entry) {
	m.mu.Lock()
	m.running = nil
	if _, taken := m.pending.get(e.task.Key()); !taken {
		m.pending.push(e)
		m.updateDepthLocked(e.task.Type)
		m.mu.Unlock()
		m.log.Debug().EmbedObject(e.task).Msg("taskqueue: interrupted task requeued")
		return
	}
	m.mu.Unlock()
	m.supersede(e)
}

func (m *Manager) enqueue(task TaskData, op string) *Future {
	m.mu.Lock()
	m.endWriteLocked(task)
	if e, ok := m.pending.get(task.Key()); ok && e.task == task {
		// Queued by a concurrent caller while the store call was in flight.
		m.mu.Unlock()
		m.coalesced(task)
		return e.future
	}
	e, superseded := m.insertLocked(task)
	m.mu.Unlock()

	if superseded != nil {
		m.supersede(superseded)
	}

	TasksEnqueuedTotal.WithLabelValues(string(task.Type), op).Inc()
	m.log.Debug().EmbedObject(task).Str("op", op).Msg("taskqueue: task queued")
	m.signal()
	return e.future
}

// insertLocked appends task at the tail of the queue, removing the entry
// it supersedes. m.mu must be held.
func (m *Manager) insertLocked(task TaskData) (e *entry, superseded *entry) {
	if old, ok := m.pending.get(task.Key()); ok {
		m.pending.remove(old)
		superseded = old
	}
	m.seq++
	e = &entry{seq: m.seq, task: task, future: newFuture(task)}
	m.pending.push(e)
	m.updateDepthLocked(task.Type)
	return e, superseded
}

func (m *Manager) supersede(e *entry) {
	if !e.future.cancel() {
		return
	}
	TasksCancelledTotal.WithLabelValues(string(e.task.Type)).Inc()
	m.log.Debug().EmbedObject(e.task).Msg("taskqueue: queued task superseded")
	m.notify(Outcome{Task: e.task, State: StateCancelled, Status: StatusCancelled})
}

func (m *Manager) coalesced(task TaskData) {
	TasksCoalescedTotal.WithLabelValues(string(task.Type)).Inc()
	m.log.Debug().EmbedObject(task).Msg("taskqueue: identical task already queued")
}

// beginWriteLocked registers a store write of task and releases m.mu. If
// the consumer is deleting the row of an identical task, it waits for the
// delete so the write lands after it.
func (m *Manager) beginWriteLocked(task TaskData) {
	m.writing[task]++
	var wait chan struct{}
	if m.deleteDone != nil && m.deleting == task {
		wait = m.deleteDone
	}
	m.mu.Unlock()

	if wait != nil {
		<-wait
	}
}

// endWriteLocked ends a write registered by beginWriteLocked. m.mu must be
// held.
func (m *Manager) endWriteLocked(task TaskData) {
	if m.writing[task] <= 1 {
		delete(m.writing, task)
		return
	}
	m.writing[task]--
}

// finishRow clears the running task and deletes its row, unless an
// identical task now owns that row.
func (m *Manager) finishRow(ctx context.Context, task TaskData) {
	m.mu.Lock()
	m.running = nil
	if e, ok := m.pending.get(task.Key()); (ok && e.task == task) || m.writing[task] > 0 {
		m.mu.Unlock()
		m.log.Debug().EmbedObject(task).Msg("taskqueue: row kept for queued identical task")
		return
	}
	done := make(chan struct{})
	m.deleting, m.deleteDone = task, done
	m.mu.Unlock()

	m.deleteRow(ctx, task)

	m.mu.Lock()
	m.deleting, m.deleteDone = TaskData{}, nil
	m.mu.Unlock()
	close(done)
}

func (m *Manager) deleteRow(ctx context.Context, task TaskData) {
	if err := m.store.DeleteTask(ctx, task.WikiID, task.DocumentID, task.Version, task.Type); err != nil {
		m.persistenceFailed(OpDelete, task, err)
	}
}

func (m *Manager) persistenceFailed(op string, task TaskData, err error) {
	PersistenceErrors.WithLabelValues(op).Inc()
	m.log.Warn().
		Err(err).
		EmbedObject(task).
		Str("op", op).
		Msg("taskqueue: failed to persist task, continuing without durability")
}

// notify hands o to the dispatch goroutine. Outcomes produced while the
// manager is stopped are delivered after the next Start.
func (m *Manager) notify(o Outcome) {
	if m.listener == nil {
		return
	}
	m.mu.Lock()
	m.outcomes = append(m.outcomes, o)
	m.mu.Unlock()

	select {
	case m.notifyWake <- struct{}{}:
	default:
	}
}

// dispatch delivers outcomes to the listener until ctx ends, then flushes
// what is left.
func (m *Manager) dispatch(ctx context.Context, done chan struct{}) {
	defer close(done)

	deliver := func() {
		m.mu.Lock()
		batch := m.outcomes
		m.outcomes = nil
		m.mu.Unlock()

		for _, o := range batch {
			m.listener.TaskFinished(context.WithoutCancel(ctx), o)
		}
	}

	for {
		deliver()
		select {
		case <-m.notifyWake:
		case <-ctx.Done():
			deliver()
			return
		}
	}
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// updateDepthLocked refreshes the queue depth gauge of t. m.mu must be held.
func (m *Manager) updateDepthLocked(t TaskType) {
	QueueDepth.WithLabelValues(string(t)).Set(float64(m.pending.lenOf(t)))
}
