// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package consumers

import (
	"context"
	"strings"
	"testing"

	"github.com/LeeDigitalWorks/docindex/pkg/document"
	"github.com/LeeDigitalWorks/docindex/pkg/tenant"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLinks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"none", "plain text [not a link]", nil},
		{"simple", "see [[Main.WebHome]]", []string{"Main.WebHome"}},
		{"label", "[[the sandbox>>Sandbox.WebHome]]", []string{"Sandbox.WebHome"}},
		{"params", "[[label>>Space.Page||target=\"_blank\"]]", []string{"Space.Page"}},
		{"doc prefix", "[[doc:Space.Page]]", []string{"Space.Page"}},
		{"external", "[[XWiki>>https://xwiki.org]] [[mail>>mailto:a@b.c]]", nil},
		{"dedup and order", "[[B]] [[A]] [[x>>B]] [[ A ]]", []string{"B", "A"}},
		{"empty", "[[label>>]]", nil},
		{"multiline", "first [[One]]\nsecond [[l>>Two]]", []string{"One", "Two"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseLinks(tt.content))
		})
	}
}

func newTestPool(t *testing.T) *tenant.Pool {
	t.Helper()
	pool, err := tenant.NewPool(tenant.DefaultConfig(tenant.DriverSQLite,
		"file:"+uuid.NewString()+"?mode=memory&cache=shared"))
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestLinksConsumer_Consume(t *testing.T) {
	t.Parallel()

	c := NewLinksConsumer(newTestPool(t))
	ctx := context.Background()
	ref := document.Reference{Wiki: "main", ID: 1, Name: "Main.WebHome"}

	require.NoError(t, c.Consume(ctx, &document.Revision{
		Reference: ref, Version: "1.1",
		Content: "[[Sandbox.WebHome]] and [[help>>Help.WebHome]]",
	}))
	require.NoError(t, c.Consume(ctx, &document.Revision{
		Reference: document.Reference{Wiki: "main", ID: 2}, Version: "1.1",
		Content: "[[Sandbox.WebHome]]",
	}))

	links, err := c.Links(ctx, "main", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Help.WebHome", "Sandbox.WebHome"}, links)

	back, err := c.Backlinks(ctx, "main", "Sandbox.WebHome")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, back)

	// A new version replaces the outgoing links.
	require.NoError(t, c.Consume(ctx, &document.Revision{Reference: ref, Version: "1.2", Content: "[[Help.WebHome]]"}))

	back, err = c.Backlinks(ctx, "main", "Sandbox.WebHome")
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, back)

	// Other wikis are isolated.
	back, err = c.Backlinks(ctx, "other", "Sandbox.WebHome")
	require.NoError(t, err)
	assert.Empty(t, back)
}

func TestLinksConsumer_InvalidWiki(t *testing.T) {
	t.Parallel()

	c := NewLinksConsumer(newTestPool(t))
	err := c.Consume(context.Background(), &document.Revision{Reference: document.Reference{Wiki: "no/such", ID: 1}})
	assert.ErrorIs(t, err, tenant.ErrInvalidWiki)
}

func TestLinksConsumer_LongTarget(t *testing.T) {
	t.Parallel()

	c := NewLinksConsumer(newTestPool(t))
	ctx := context.Background()
	target := "Space." + strings.Repeat("VeryLongPageName", 40)
	ref := document.Reference{Wiki: "main", ID: 7, Name: "Main.Long"}

	require.NoError(t, c.Consume(ctx, &document.Revision{Reference: ref, Version: "1.1", Content: "[[" + target + "]]"}))

	links, err := c.Links(ctx, "main", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{target}, links)

	back, err := c.Backlinks(ctx, "main", target)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, back)
}

func TestLinksConsumer_Remove(t *testing.T) {
	t.Parallel()

	c := NewLinksConsumer(newTestPool(t))
	ctx := context.Background()
	for id := range int64(2) {
		require.NoError(t, c.Consume(ctx, &document.Revision{
			Reference: document.Reference{Wiki: "main", ID: id}, Version: "1.1",
			Content: "[[Sandbox.WebHome]]",
		}))
	}

	require.NoError(t, c.Remove(ctx, "main", 0))

	back, err := c.Backlinks(ctx, "main", "Sandbox.WebHome")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, back)
}
