// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/LeeDigitalWorks/docindex/pkg/document"
	"github.com/LeeDigitalWorks/docindex/pkg/logger"
	"github.com/LeeDigitalWorks/docindex/pkg/taskqueue"
	"github.com/LeeDigitalWorks/docindex/pkg/tenant"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Task store kinds
const (
	storeSQL     = "sql"
	storeLevelDB = "leveldb"
	storeMemory  = "memory"
)

// StoreOpts selects the tenant databases and the task store.
type StoreOpts struct {
	InstanceID string
	Wikis      []string

	Store string

	DBDriver       string
	DBDSN          string
	DBMaxOpenConns int
	DBMaxIdleConns int

	LevelDBDir  string
	LevelDBSync bool
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("instance_id", "", "Stable instance id under which queued tasks are persisted (random when empty)")
	f.StringSlice("wikis", nil, "Wikis whose persisted tasks are recovered at startup")
	f.String("store", storeSQL, "Task store (sql, leveldb, memory)")
	f.String("db_driver", string(tenant.DriverPostgres), "Database driver (postgres, cockroachdb, mysql, vitess, sqlite)")
	f.String("db_dsn", "", "Database connection string; {wiki} selects a database per wiki")
	f.Int("db_max_open_conns", 25, "Maximum open connections per database")
	f.Int("db_max_idle_conns", 5, "Maximum idle connections per database")
	f.String("leveldb_dir", "/var/lib/docindex/tasks", "LevelDB directory of the leveldb task store")
	f.Bool("leveldb_sync", false, "Fsync every LevelDB write")
	viper.BindPFlags(f)
}

func loadStoreOpts(cmd *cobra.Command) StoreOpts {
	f := NewFlagLoader(cmd)
	return StoreOpts{
		InstanceID:     f.String("instance_id"),
		Wikis:          f.StringSlice("wikis"),
		Store:          f.String("store"),
		DBDriver:       f.String("db_driver"),
		DBDSN:          f.String("db_dsn"),
		DBMaxOpenConns: f.Int("db_max_open_conns"),
		DBMaxIdleConns: f.Int("db_max_idle_conns"),
		LevelDBDir:     f.String("leveldb_dir"),
		LevelDBSync:    f.Bool("leveldb_sync"),
	}
}

// backend is the storage a docindex process works on. Documents always live
// in the tenant databases; only the task queue store is selectable.
type backend struct {
	pool      *tenant.Pool
	documents *document.SQLRepository
	store     taskqueue.Store

	closeStore func() error
}

func openBackend(opts StoreOpts) (*backend, error) {
	logger.Info().
		Str("driver", opts.DBDriver).
		Str("dsn", maskDSN(opts.DBDSN)).
		Str("store", opts.Store).
		Msg("initializing storage")

	if opts.DBDSN == "" {
		return nil, fmt.Errorf("--db_dsn required")
	}
	cfg := tenant.DefaultConfig(tenant.Driver(opts.DBDriver), opts.DBDSN)
	if opts.DBMaxOpenConns > 0 {
		cfg.MaxOpenConns = opts.DBMaxOpenConns
	}
	if opts.DBMaxIdleConns > 0 {
		cfg.MaxIdleConns = opts.DBMaxIdleConns
	}
	pool, err := tenant.NewPool(cfg)
	if err != nil {
		return nil, err
	}

	b := &backend{
		pool:       pool,
		documents:  document.NewSQLRepository(pool),
		closeStore: func() error { return nil },
	}

	switch opts.Store {
	case storeSQL:
		b.store, err = taskqueue.NewDBStore(taskqueue.DBStoreConfig{Pool: pool, Documents: b.documents})
	case storeLevelDB:
		var s *taskqueue.LevelDBStore
		s, err = taskqueue.NewLevelDBStore(taskqueue.LevelDBStoreConfig{
			Dir:       opts.LevelDBDir,
			Documents: b.documents,
			Sync:      opts.LevelDBSync,
		})
		if err == nil {
			b.store, b.closeStore = s, s.Close
		}
	case storeMemory:
		logger.Warn().Msg("memory task store: queued tasks are lost on restart")
		b.store = taskqueue.NewMemoryStore(b.documents)
	default:
		err = fmt.Errorf("unknown task store %q", opts.Store)
	}
	if err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func (b *backend) Close() error {
	if err := b.closeStore(); err != nil {
		logger.Warn().Err(err).Msg("failed to close task store")
	}
	return b.pool.Close()
}
