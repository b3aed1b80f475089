// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	zctx "github.com/LeeDigitalWorks/docindex/pkg/context"
	"github.com/LeeDigitalWorks/docindex/pkg/document"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Compile-time interface verification
var _ Store = (*LevelDBStore)(nil)

const keySep = '\x00'

// LevelDBStore is an embedded implementation of Store for single node
// deployments. Keys are wiki\x00docID\x00type\x00version and values are
// JSON encoded rows.
type LevelDBStore struct {
	db   *leveldb.DB
	docs document.Repository

	writeOpts *opt.WriteOptions
}

// LevelDBStoreConfig configures the LevelDB store.
type LevelDBStoreConfig struct {
	// Dir is the database directory. Empty keeps the database in memory.
	Dir string

	// Documents resolves GetDocument.
	Documents document.Repository

	// Sync fsyncs every write.
	Sync bool
}

// NewLevelDBStore opens (or creates) the store, recovering a corrupted
// database when possible.
func NewLevelDBStore(cfg LevelDBStoreConfig) (*LevelDBStore, error) {
	if cfg.Documents == nil {
		return nil, fmt.Errorf("document repository is required")
	}

	var (
		db  *leveldb.DB
		err error
	)
	if cfg.Dir == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(cfg.Dir, nil)
		if errors.IsCorrupted(err) {
			db, err = leveldb.RecoverFile(cfg.Dir, nil)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb task store: %w", err)
	}

	return &LevelDBStore{
		db:        db,
		docs:      cfg.Documents,
		writeOpts: &opt.WriteOptions{Sync: cfg.Sync},
	}, nil
}

// Close closes the database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func keyPrefix(wiki string, parts ...string) []byte {
	var b bytes.Buffer
	b.WriteString(wiki)
	b.WriteByte(keySep)
	for _, p := range parts {
		b.WriteString(p)
		b.WriteByte(keySep)
	}
	return b.Bytes()
}

func rowKey(wiki string, docID int64, taskType TaskType, version string) []byte {
	return append(keyPrefix(wiki, strconv.FormatInt(docID, 10), string(taskType)), version...)
}

func (s *LevelDBStore) GetAllTasks(ctx context.Context, wiki, instanceID string) ([]Row, error) {
	_, pop := zctx.Push(ctx, wiki)
	defer pop()

	iter := s.db.NewIterator(util.BytesPrefix(keyPrefix(wiki)), nil)
	defer iter.Release()

	var out []Row
	for iter.Next() {
		var r Row
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, persistenceError(OpGetAll, wiki, fmt.Errorf("decode %q: %w", iter.Key(), err))
		}
		if r.InstanceID == instanceID {
			out = append(out, r)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, persistenceError(OpGetAll, wiki, err)
	}

	slices.SortStableFunc(out, func(a, b Row) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out, nil
}

func (s *LevelDBStore) AddTask(ctx context.Context, wiki string, row Row) error {
	_, pop := zctx.Push(ctx, wiki)
	defer pop()

	row.Timestamp = time.Now()
	data, err := json.Marshal(row)
	if err != nil {
		return persistenceError(OpAdd, wiki, err)
	}
	err = s.db.Put(rowKey(wiki, row.DocumentID, row.Type, row.Version), data, s.writeOpts)
	return persistenceError(OpAdd, wiki, err)
}

func (s *LevelDBStore) DeleteTask(ctx context.Context, wiki string, docID int64, version string, taskType TaskType) error {
	_, pop := zctx.Push(ctx, wiki)
	defer pop()

	err := s.db.Delete(rowKey(wiki, docID, taskType, version), s.writeOpts)
	return persistenceError(OpDelete, wiki, err)
}

// ReplaceTask deletes the versions of (docID, type) and writes row in one
// batch.
func (s *LevelDBStore) ReplaceTask(ctx context.Context, wiki string, row Row) error {
	_, pop := zctx.Push(ctx, wiki)
	defer pop()

	batch := new(leveldb.Batch)

	prefix := keyPrefix(wiki, strconv.FormatInt(row.DocumentID, 10), string(row.Type))
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	for iter.Next() {
		batch.Delete(bytes.Clone(iter.Key()))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return persistenceError(OpReplace, wiki, err)
	}

	row.Timestamp = time.Now()
	data, err := json.Marshal(row)
	if err != nil {
		return persistenceError(OpReplace, wiki, err)
	}
	batch.Put(rowKey(wiki, row.DocumentID, row.Type, row.Version), data)

	return persistenceError(OpReplace, wiki, s.db.Write(batch, s.writeOpts))
}

func (s *LevelDBStore) GetDocument(ctx context.Context, wiki string, docID int64) (document.Handle, error) {
	ctx, pop := zctx.Push(ctx, wiki)
	defer pop()

	h, err := s.docs.Head(ctx, wiki, docID)
	return h, persistenceError(OpGetDocument, wiki, err)
}
