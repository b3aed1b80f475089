// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCtx_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, Ctx(nil)) //nolint:staticcheck
	assert.NotNil(t, Ctx(context.Background()))
}

func TestWithFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf))
	ctx = WithFields(ctx, "wiki", "wiki1", "execution_id", "abc")

	Ctx(ctx).Warn().Msg("hello")

	out := buf.String()
	assert.Contains(t, out, `"wiki":"wiki1"`)
	assert.Contains(t, out, `"execution_id":"abc"`)
	assert.Contains(t, out, `"message":"hello"`)
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	Warn().Str("wiki", "wiki1").Msg("redirected")

	out := buf.String()
	assert.Contains(t, out, `"message":"redirected"`)
	assert.Contains(t, out, `"hostname":`)
}
