// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package context carries the execution scope of a unit of work: the wiki
// (tenant) it runs for and an execution id. Scopes are pushed explicitly and
// popped by the returned release function.
package context

import (
	"context"

	"github.com/LeeDigitalWorks/docindex/pkg/logger"

	"github.com/google/uuid"
)

type (
	wikiKey      struct{}
	executionKey struct{}
	parentKey    struct{}
)

// Scope describes the execution context pushed for one task or store call.
type Scope struct {
	Wiki        string
	ExecutionID string
}

// Push derives a fresh execution scope for wiki from ctx. The returned
// release function pops the scope: it cancels the derived context so work
// started inside the scope cannot outlive it. Callers keep using the parent
// ctx afterwards, which still carries the previous scope.
func Push(ctx context.Context, wiki string) (context.Context, func()) {
	execID := uuid.New().String()
	if prev, ok := Current(ctx); ok {
		ctx = context.WithValue(ctx, parentKey{}, prev)
	}
	ctx = context.WithValue(ctx, wikiKey{}, wiki)
	ctx = context.WithValue(ctx, executionKey{}, execID)
	ctx = logger.WithFields(ctx, "wiki", wiki, "execution_id", execID)
	ctx, cancel := context.WithCancel(ctx)
	return ctx, cancel
}

// Current returns the innermost scope pushed on ctx.
func Current(ctx context.Context) (Scope, bool) {
	wiki, ok := ctx.Value(wikiKey{}).(string)
	if !ok {
		return Scope{}, false
	}
	execID, _ := ctx.Value(executionKey{}).(string)
	return Scope{Wiki: wiki, ExecutionID: execID}, true
}

// Parent returns the scope that was current when the innermost scope was pushed.
func Parent(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(parentKey{}).(Scope)
	return s, ok
}

// Wiki returns the wiki of the current scope, or "" outside any scope.
func Wiki(ctx context.Context) string {
	s, _ := Current(ctx)
	return s.Wiki
}
