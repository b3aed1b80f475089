// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		base    time.Duration
		max     time.Duration
		attempt int
		want    time.Duration
	}{
		{name: "zero base is immediate", base: 0, max: time.Second, attempt: 5, want: 0},
		{name: "first attempt", base: 10 * time.Millisecond, max: time.Second, attempt: 1, want: 10 * time.Millisecond},
		{name: "third attempt doubles twice", base: 10 * time.Millisecond, max: time.Second, attempt: 3, want: 40 * time.Millisecond},
		{name: "capped", base: 100 * time.Millisecond, max: 250 * time.Millisecond, attempt: 4, want: 250 * time.Millisecond},
		{name: "no cap", base: time.Second, max: 0, attempt: 4, want: 8 * time.Second},
		{name: "attempt zero", base: time.Second, max: 0, attempt: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(tt.base, tt.max, tt.attempt))
		})
	}
}

func TestJitterUp(t *testing.T) {
	t.Parallel()

	for range 100 {
		d := JitterUp(time.Second, 0.5)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
	assert.Equal(t, time.Second, JitterUp(time.Second, 0))
}
