// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"context"
	"fmt"
	"sync"
)

type memoryKey struct {
	wiki string
	id   int64
}

type memoryDoc struct {
	ref       Reference
	head      string
	revisions map[string]Revision
}

// MemoryRepository is an in-memory Source, used by tests and by the
// memory store mode.
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[memoryKey]*memoryDoc
}

var _ Source = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[memoryKey]*memoryDoc)}
}

// Save stores rev and makes it the document head.
func (r *MemoryRepository) Save(rev Revision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := memoryKey{rev.Wiki, rev.ID}
	d, ok := r.docs[k]
	if !ok {
		d = &memoryDoc{revisions: make(map[string]Revision)}
		r.docs[k] = d
	}
	d.ref = rev.Reference
	d.head = rev.Version
	d.revisions[rev.Version] = rev
}

// Delete removes a document and all its revisions.
func (r *MemoryRepository) Delete(wiki string, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, memoryKey{wiki, id})
}

func (r *MemoryRepository) Head(_ context.Context, wiki string, id int64) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.docs[memoryKey{wiki, id}]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %s:%d", ErrNotFound, wiki, id)
	}
	return Handle{Reference: d.ref, Version: d.head}, nil
}

func (r *MemoryRepository) Revision(_ context.Context, doc Handle, version string) (*Revision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.docs[memoryKey{doc.Wiki, doc.ID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, doc.Reference)
	}
	rev, ok := d.revisions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s version %s", ErrNotFound, doc.Reference, version)
	}
	return &rev, nil
}
