// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"context"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/cache"
)

type revisionKey struct {
	wiki    string
	id      int64
	version string
}

// CachedRevisions caches the revisions returned by a RevisionProvider.
// A revision never changes once written, so entries are only dropped by
// size and idle time. Not-found results are not cached.
type CachedRevisions struct {
	next  RevisionProvider
	cache *cache.Cache[revisionKey, Revision]
}

var _ RevisionProvider = (*CachedRevisions)(nil)

// NewCachedRevisions wraps next with a cache of at most maxSize revisions
// evicted after ttl without access. Call Close to stop the cache.
func NewCachedRevisions(next RevisionProvider, maxSize int, ttl time.Duration) *CachedRevisions {
	return &CachedRevisions{
		next: next,
		cache: cache.New(
			cache.WithMaxSize[revisionKey, Revision](maxSize),
			cache.WithExpiry[revisionKey, Revision](ttl),
		),
	}
}

func (c *CachedRevisions) Revision(ctx context.Context, doc Handle, version string) (*Revision, error) {
	key := revisionKey{wiki: doc.Wiki, id: doc.ID, version: version}
	if rev, ok := c.cache.Get(key); ok {
		cache.CacheRequests.WithLabelValues("hit").Inc()
		return &rev, nil
	}
	cache.CacheRequests.WithLabelValues("miss").Inc()

	rev, err := c.next.Revision(ctx, doc, version)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, *rev)
	return rev, nil
}

// Close stops the cache.
func (c *CachedRevisions) Close() {
	c.cache.Stop()
}
