// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/LeeDigitalWorks/docindex/pkg/taskqueue"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, taskqueue.TaskData) error { return nil }

func TestMaskDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dsn  string
		want string
	}{
		{"", "(none)"},
		{"short", "***"},
		{"postgres://user:secret@db:5432/main", "postgres:/***/main"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskDSN(tt.dsn))
	}
}

func TestOpenBackend(t *testing.T) {
	t.Parallel()

	sqliteDSN := func() string { return "file:" + uuid.NewString() + "?mode=memory&cache=shared" }

	tests := []struct {
		name    string
		opts    StoreOpts
		want    any
		wantErr string
	}{
		{
			name:    "missing dsn",
			opts:    StoreOpts{Store: storeSQL, DBDriver: "sqlite"},
			wantErr: "--db_dsn required",
		},
		{
			name:    "unknown store",
			opts:    StoreOpts{Store: "redis", DBDriver: "sqlite", DBDSN: sqliteDSN()},
			wantErr: `unknown task store "redis"`,
		},
		{
			name: "sql",
			opts: StoreOpts{Store: storeSQL, DBDriver: "sqlite", DBDSN: sqliteDSN()},
			want: &taskqueue.DBStore{},
		},
		{
			name: "leveldb",
			opts: StoreOpts{Store: storeLevelDB, DBDriver: "sqlite", DBDSN: sqliteDSN(), LevelDBDir: filepath.Join(t.TempDir(), "tasks")},
			want: &taskqueue.LevelDBStore{},
		},
		{
			name: "memory",
			opts: StoreOpts{Store: storeMemory, DBDriver: "sqlite", DBDSN: sqliteDSN()},
			want: &taskqueue.MemoryStore{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := openBackend(tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, b.store)

			// The store works against the tenant database.
			row := taskqueue.Row{InstanceID: "i1", DocumentID: 1, Version: "1", Type: taskqueue.TaskTypeSearch}
			require.NoError(t, b.store.AddTask(context.Background(), "main", row))
			rows, err := b.store.GetAllTasks(context.Background(), "main", "i1")
			require.NoError(t, err)
			assert.Len(t, rows, 1)

			require.NoError(t, b.Close())
		})
	}
}

func TestPostTask(t *testing.T) {
	t.Parallel()

	m, err := taskqueue.NewManager(taskqueue.ManagerConfig{
		InstanceID: "i1",
		Store:      taskqueue.NewMemoryStore(nil),
		Executor:   noopExecutor{},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(taskqueue.Handler(m))
	defer srv.Close()

	ctx := context.Background()
	task, err := postTask(ctx, srv.URL, "main", "42", "1.3", "links", false)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskData{WikiID: "main", DocumentID: 42, Version: "1.3", Type: taskqueue.TaskTypeLinks}, task)

	_, err = postTask(ctx, srv.URL, "main", "42", "1.4", "links", true)
	require.NoError(t, err)
	assert.Equal(t, []taskqueue.TaskData{{WikiID: "main", DocumentID: 42, Version: "1.4", Type: taskqueue.TaskTypeLinks}}, m.Pending())

	_, err = postTask(ctx, srv.URL, "main", "x", "1", "links", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)

	assert.Contains(t, out.String(), "docindex dev")
	assert.Equal(t, "dev", VersionInfo()["version"])
}

func TestServeFlagDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		flag string
		want string
	}{
		{"retry_delay", "0s"},
		{"max_retry_delay", "1m0s"},
		{"max_tasks_per_second", "0"},
		{"events_enabled", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			t.Parallel()
			f := serveCmd.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.want, f.DefValue)
		})
	}
}
