// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package consumers holds the built-in task consumers.
package consumers

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/document"
	"github.com/LeeDigitalWorks/docindex/pkg/logger"
	"github.com/LeeDigitalWorks/docindex/pkg/taskqueue"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Compile-time interface verification
var (
	_ taskqueue.Consumer = (*SearchConsumer)(nil)
	_ taskqueue.Remover  = (*SearchConsumer)(nil)
)

// searchDocument is the indexed form of a revision.
type searchDocument struct {
	Wiki      string    `json:"wiki"`
	DocID     int64     `json:"doc_id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	IndexedAt time.Time `json:"indexed_at"`
}

// SearchHit is one search result.
type SearchHit struct {
	Wiki       string
	DocumentID int64
	Name       string
	Version    string
	Title      string
	Score      float64
}

// SearchConfig configures the search consumer.
type SearchConfig struct {
	// Path is the bleve index directory. Empty keeps the index in memory.
	Path string
}

// SearchConsumer keeps a full-text index of the latest indexed revision of
// every document. Documents are indexed under "wiki:docID".
type SearchConsumer struct {
	index bleve.Index
}

// NewSearchConsumer opens the index at cfg.Path, creating it if needed.
func NewSearchConsumer(cfg SearchConfig) (*SearchConsumer, error) {
	var (
		index bleve.Index
		err   error
	)
	switch {
	case cfg.Path == "":
		index, err = bleve.NewMemOnly(buildIndexMapping())
	default:
		if _, statErr := os.Stat(cfg.Path); os.IsNotExist(statErr) {
			index, err = bleve.New(cfg.Path, buildIndexMapping())
		} else {
			index, err = bleve.Open(cfg.Path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}
	return &SearchConsumer{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("wiki", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("name", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("version", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("doc_id", bleve.NewNumericFieldMapping())
	docMapping.AddFieldMappingsAt("indexed_at", bleve.NewDateTimeFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

func searchID(wiki string, docID int64) string {
	return wiki + ":" + strconv.FormatInt(docID, 10)
}

func (c *SearchConsumer) Type() taskqueue.TaskType {
	return taskqueue.TaskTypeSearch
}

// Consume indexes rev, replacing the previously indexed version.
func (c *SearchConsumer) Consume(ctx context.Context, rev *document.Revision) error {
	doc := searchDocument{
		Wiki:      rev.Wiki,
		DocID:     rev.ID,
		Name:      rev.Name,
		Version:   rev.Version,
		Title:     rev.Title,
		Content:   rev.Content,
		IndexedAt: time.Now(),
	}
	if err := c.index.Index(searchID(rev.Wiki, rev.ID), doc); err != nil {
		return fmt.Errorf("index %s: %w", rev.Reference, err)
	}

	logger.Ctx(ctx).Debug().
		Str("document", rev.Reference.String()).
		Str("version", rev.Version).
		Msg("search: document indexed")
	return nil
}

// Remove drops a deleted document from the index.
func (c *SearchConsumer) Remove(ctx context.Context, wiki string, docID int64) error {
	if err := c.index.Delete(searchID(wiki, docID)); err != nil {
		return fmt.Errorf("unindex %s: %w", searchID(wiki, docID), err)
	}
	logger.Ctx(ctx).Debug().Str("id", searchID(wiki, docID)).Msg("search: document removed")
	return nil
}

// Search runs a full-text query over the title and content of the documents
// of wiki.
func (c *SearchConsumer) Search(ctx context.Context, wiki, text string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}

	wikiQuery := bleve.NewTermQuery(wiki)
	wikiQuery.SetField("wiki")

	titleQuery := bleve.NewMatchQuery(text)
	titleQuery.SetField("title")
	titleQuery.SetBoost(2)
	contentQuery := bleve.NewMatchQuery(text)
	contentQuery.SetField("content")

	q := bleve.NewConjunctionQuery(wikiQuery, bleve.NewDisjunctionQuery(titleQuery, contentQuery))

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"name", "version", "title"}

	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", wiki, err)
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		idx := strings.LastIndexByte(h.ID, ':')
		if idx < 0 {
			continue
		}
		docID, err := strconv.ParseInt(h.ID[idx+1:], 10, 64)
		if err != nil {
			continue
		}
		hit := SearchHit{Wiki: h.ID[:idx], DocumentID: docID, Score: h.Score}
		hit.Name, _ = h.Fields["name"].(string)
		hit.Version, _ = h.Fields["version"].(string)
		hit.Title, _ = h.Fields["title"].(string)
		hits = append(hits, hit)
	}
	return hits, nil
}

// DocCount returns the number of indexed documents.
func (c *SearchConsumer) DocCount() (uint64, error) {
	return c.index.DocCount()
}

// Close closes the index.
func (c *SearchConsumer) Close() error {
	return c.index.Close()
}
