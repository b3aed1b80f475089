// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package debug

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadiness(t *testing.T) {
	SetNotReady()
	assert.False(t, IsReady())

	SetReady()
	assert.True(t, IsReady())

	SetReadyCheck(func() bool { return false })
	assert.False(t, IsReady())

	SetReadyCheck(nil)
	SetNotReady()
}

func TestGetMux_Endpoints(t *testing.T) {
	RegisterHandlerFunc("/debug/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mux := GetMux()

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/ready", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
		{"/debug/test", http.StatusTeapot},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.want, rec.Code, tt.path)
	}
}
