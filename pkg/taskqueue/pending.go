// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"github.com/google/btree"
)

// entry is a queued task.
type entry struct {
	seq    uint64
	task   TaskData
	future *Future

	recovered bool // queued from a persisted row by Recover
}

// Less implements btree.Item, ordering entries by enqueue sequence.
func (e *entry) Less(than btree.Item) bool {
	return e.seq < than.(*entry).seq
}

// pendingSet is the queue of tasks that have not started. It is ordered by
// sequence number and indexed by key. Not safe for concurrent use.
type pendingSet struct {
	order  *btree.BTree
	byKey  map[Key]*entry
	byType map[TaskType]int
}

func newPendingSet() *pendingSet {
	return &pendingSet{
		order:  btree.New(2),
		byKey:  make(map[Key]*entry),
		byType: make(map[TaskType]int),
	}
}

func (p *pendingSet) get(k Key) (*entry, bool) {
	e, ok := p.byKey[k]
	return e, ok
}

// push inserts e. The caller guarantees no entry with the same key exists.
func (p *pendingSet) push(e *entry) {
	p.order.ReplaceOrInsert(e)
	p.byKey[e.task.Key()] = e
	p.byType[e.task.Type]++
}

func (p *pendingSet) remove(e *entry) {
	if p.order.Delete(e) == nil {
		return
	}
	delete(p.byKey, e.task.Key())
	p.byType[e.task.Type]--
	if p.byType[e.task.Type] == 0 {
		delete(p.byType, e.task.Type)
	}
}

// popHead removes and returns the oldest entry, or nil if the set is empty.
func (p *pendingSet) popHead() *entry {
	item := p.order.Min()
	if item == nil {
		return nil
	}
	e := item.(*entry)
	p.remove(e)
	return e
}

func (p *pendingSet) len() int {
	return p.order.Len()
}

func (p *pendingSet) lenOf(t TaskType) int {
	return p.byType[t]
}

// tasks returns the queued tasks in execution order.
func (p *pendingSet) tasks() []TaskData {
	out := make([]TaskData, 0, p.order.Len())
	p.order.Ascend(func(item btree.Item) bool {
		out = append(out, item.(*entry).task)
		return true
	})
	return out
}
