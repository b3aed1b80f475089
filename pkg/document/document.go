// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package document is the boundary to document storage and versioning.
// The indexing queue only needs to resolve the head of a document and one
// of its revisions; everything else about documents lives elsewhere.
package document

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document or one of its revisions does not
// exist.
var ErrNotFound = errors.New("document not found")

// Reference identifies a document inside a wiki.
type Reference struct {
	Wiki string `json:"wiki"`
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (r Reference) String() string {
	if r.Name != "" {
		return fmt.Sprintf("%s:%s", r.Wiki, r.Name)
	}
	return fmt.Sprintf("%s:%d", r.Wiki, r.ID)
}

// Handle is the current head of a document.
type Handle struct {
	Reference
	Version string `json:"version"`
}

// Revision is a document at one version.
type Revision struct {
	Reference
	Version string `json:"version"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Repository resolves the head of a document.
type Repository interface {
	Head(ctx context.Context, wiki string, id int64) (Handle, error)
}

// RevisionProvider returns a document at a given version.
type RevisionProvider interface {
	Revision(ctx context.Context, doc Handle, version string) (*Revision, error)
}

// Source combines Repository and RevisionProvider.
type Source interface {
	Repository
	RevisionProvider
}
