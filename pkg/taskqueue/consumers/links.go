// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package consumers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/LeeDigitalWorks/docindex/pkg/document"
	"github.com/LeeDigitalWorks/docindex/pkg/logger"
	"github.com/LeeDigitalWorks/docindex/pkg/taskqueue"
	"github.com/LeeDigitalWorks/docindex/pkg/tenant"
)

// Compile-time interface verification
var (
	_ taskqueue.Consumer = (*LinksConsumer)(nil)
	_ taskqueue.Remover  = (*LinksConsumer)(nil)
)

var linkPattern = regexp.MustCompile(`\[\[(.+?)\]\]`)

// ParseLinks returns the distinct document targets linked from content, in
// order of first appearance. Supported forms are [[Target]],
// [[label>>Target]] and [[label>>Target||params]]. External links are
// ignored.
func ParseLinks(content string) []string {
	var (
		targets []string
		seen    = make(map[string]struct{})
	)
	for _, m := range linkPattern.FindAllStringSubmatch(content, -1) {
		link := m[1]
		if i := strings.LastIndex(link, ">>"); i >= 0 {
			link = link[i+2:]
		}
		link, _, _ = strings.Cut(link, "||")
		link = strings.TrimPrefix(strings.TrimSpace(link), "doc:")

		if link == "" || strings.Contains(link, "://") || strings.HasPrefix(link, "mailto:") {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		targets = append(targets, link)
	}
	return targets
}

// LinksConsumer maintains the backlinks table of each wiki: one row per
// (source document, link target).
type LinksConsumer struct {
	pool *tenant.Pool
}

// NewLinksConsumer creates a consumer writing to the tenant databases of pool.
func NewLinksConsumer(pool *tenant.Pool) *LinksConsumer {
	return &LinksConsumer{pool: pool}
}

func (c *LinksConsumer) Type() taskqueue.TaskType {
	return taskqueue.TaskTypeLinks
}

// Consume replaces the outgoing links of rev's document with the links
// found in rev.
func (c *LinksConsumer) Consume(ctx context.Context, rev *document.Revision) error {
	conn, err := c.pool.Conn(ctx, rev.Wiki)
	if err != nil {
		return err
	}
	targets := ParseLinks(rev.Content)

	tx, err := conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	table := conn.Table(tenant.TableBacklinks)
	del := conn.Dialect.Rebind(fmt.Sprintf("DELETE FROM %s WHERE source_id = ?", table))
	if _, err := tx.ExecContext(ctx, del, rev.ID); err != nil {
		return fmt.Errorf("clear links of %s: %w", rev.Reference, err)
	}

	ins := conn.Dialect.Rebind(fmt.Sprintf("INSERT INTO %s (source_id, target_hash, target) VALUES (?, ?, ?)", table))
	for _, target := range targets {
		if _, err := tx.ExecContext(ctx, ins, rev.ID, tenant.HashKey(target), target); err != nil {
			return fmt.Errorf("insert link %s -> %s: %w", rev.Reference, target, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	logger.Ctx(ctx).Debug().
		Str("document", rev.Reference.String()).
		Str("version", rev.Version).
		Int("links", len(targets)).
		Msg("links: backlinks updated")
	return nil
}

// Remove drops the outgoing links of a deleted document.
func (c *LinksConsumer) Remove(ctx context.Context, wiki string, sourceID int64) error {
	conn, err := c.pool.Conn(ctx, wiki)
	if err != nil {
		return err
	}
	query := conn.Dialect.Rebind(fmt.Sprintf("DELETE FROM %s WHERE source_id = ?", conn.Table(tenant.TableBacklinks)))
	if _, err := conn.DB.ExecContext(ctx, query, sourceID); err != nil {
		return fmt.Errorf("clear links of %s:%d: %w", wiki, sourceID, err)
	}
	return nil
}

// Links returns the targets linked from a document.
func (c *LinksConsumer) Links(ctx context.Context, wiki string, sourceID int64) ([]string, error) {
	conn, err := c.pool.Conn(ctx, wiki)
	if err != nil {
		return nil, err
	}
	query := conn.Dialect.Rebind(fmt.Sprintf(
		"SELECT target FROM %s WHERE source_id = ? ORDER BY target", conn.Table(tenant.TableBacklinks)))

	rows, err := conn.DB.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// Backlinks returns the ids of the documents of wiki linking to target.
func (c *LinksConsumer) Backlinks(ctx context.Context, wiki, target string) ([]int64, error) {
	conn, err := c.pool.Conn(ctx, wiki)
	if err != nil {
		return nil, err
	}
	query := conn.Dialect.Rebind(fmt.Sprintf(
		"SELECT source_id FROM %s WHERE target_hash = ? ORDER BY source_id", conn.Table(tenant.TableBacklinks)))

	rows, err := conn.DB.QueryContext(ctx, query, tenant.HashKey(target))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
