// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	zctx "github.com/LeeDigitalWorks/docindex/pkg/context"
	"github.com/LeeDigitalWorks/docindex/pkg/document"
)

// Compile-time interface verification
var _ Store = (*MemoryStore)(nil)

// StoreCall records one write made to a MemoryStore.
type StoreCall struct {
	Op         string
	Wiki       string
	DocumentID int64
	Version    string
	Type       TaskType
}

type memoryRowKey struct {
	docID   int64
	version string
	typ     TaskType
}

type memoryRow struct {
	Row
	seq uint64
}

// MemoryStore is an in-memory implementation of Store for testing.
// NOT for production use - tasks are lost on restart.
type MemoryStore struct {
	docs document.Repository

	mu    sync.Mutex
	rows  map[string]map[memoryRowKey]memoryRow
	seq   uint64
	fail  map[string][]error
	calls []StoreCall
}

// NewMemoryStore creates an empty store. docs resolves GetDocument and may
// be nil, in which case every document is reported missing.
func NewMemoryStore(docs document.Repository) *MemoryStore {
	return &MemoryStore{
		docs: docs,
		rows: make(map[string]map[memoryRowKey]memoryRow),
		fail: make(map[string][]error),
	}
}

// FailNext makes the next call of op return err. Calls queue up.
func (s *MemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = append(s.fail[op], err)
}

// Calls returns the write operations made so far, in order. Failed calls
// are included.
func (s *MemoryStore) Calls() []StoreCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Rows returns every row of wiki, oldest first.
func (s *MemoryStore) Rows(wiki string) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(wiki, func(Row) bool { return true })
}

// injectedLocked pops the error queued for op. s.mu must be held.
func (s *MemoryStore) injectedLocked(op, wiki string) error {
	errs := s.fail[op]
	if len(errs) == 0 {
		return nil
	}
	s.fail[op] = errs[1:]
	return persistenceError(op, wiki, errs[0])
}

func (s *MemoryStore) sortedLocked(wiki string, keep func(Row) bool) []Row {
	stored := make([]memoryRow, 0, len(s.rows[wiki]))
	for _, r := range s.rows[wiki] {
		if keep(r.Row) {
			stored = append(stored, r)
		}
	}
	slices.SortFunc(stored, func(a, b memoryRow) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]Row, len(stored))
	for i, r := range stored {
		out[i] = r.Row
	}
	return out
}

func (s *MemoryStore) upsertLocked(wiki string, row Row) {
	tbl, ok := s.rows[wiki]
	if !ok {
		tbl = make(map[memoryRowKey]memoryRow)
		s.rows[wiki] = tbl
	}
	s.seq++
	row.Timestamp = time.Now()
	tbl[memoryRowKey{row.DocumentID, row.Version, row.Type}] = memoryRow{Row: row, seq: s.seq}
}

func (s *MemoryStore) GetAllTasks(ctx context.Context, wiki, instanceID string) ([]Row, error) {
	_, pop := zctx.Push(ctx, wiki)
	defer pop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injectedLocked(OpGetAll, wiki); err != nil {
		return nil, err
	}
	return s.sortedLocked(wiki, func(r Row) bool { return r.InstanceID == instanceID }), nil
}

func (s *MemoryStore) AddTask(ctx context.Context, wiki string, row Row) error {
	_, pop := zctx.Push(ctx, wiki)
	defer pop()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, StoreCall{OpAdd, wiki, row.DocumentID, row.Version, row.Type})
	if err := s.injectedLocked(OpAdd, wiki); err != nil {
		return err
	}
	s.upsertLocked(wiki, row)
	return nil
}

func (s *MemoryStore) DeleteTask(ctx context.Context, wiki string, docID int64, version string, taskType TaskType) error {
	_, pop := zctx.Push(ctx, wiki)
	defer pop()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, StoreCall{OpDelete, wiki, docID, version, taskType})
	if err := s.injectedLocked(OpDelete, wiki); err != nil {
		return err
	}
	delete(s.rows[wiki], memoryRowKey{docID, version, taskType})
	return nil
}

func (s *MemoryStore) ReplaceTask(ctx context.Context, wiki string, row Row) error {
	_, pop := zctx.Push(ctx, wiki)
	defer pop()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, StoreCall{OpReplace, wiki, row.DocumentID, row.Version, row.Type})
	if err := s.injectedLocked(OpReplace, wiki); err != nil {
		return err
	}
	for k := range s.rows[wiki] {
		if k.docID == row.DocumentID && k.typ == row.Type {
			delete(s.rows[wiki], k)
		}
	}
	s.upsertLocked(wiki, row)
	return nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, wiki string, docID int64) (document.Handle, error) {
	ctx, pop := zctx.Push(ctx, wiki)
	defer pop()

	s.mu.Lock()
	err := s.injectedLocked(OpGetDocument, wiki)
	s.mu.Unlock()
	if err != nil {
		return document.Handle{}, err
	}

	if s.docs == nil {
		return document.Handle{}, persistenceError(OpGetDocument, wiki,
			fmt.Errorf("%w: %s:%d", document.ErrNotFound, wiki, docID))
	}
	h, err := s.docs.Head(ctx, wiki, docID)
	return h, persistenceError(OpGetDocument, wiki, err)
}
