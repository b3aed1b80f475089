// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"sync"

	"github.com/spf13/viper"
)

const (
	Local      = "local"
	Production = "production"
	Testing    = "testing"
)

var (
	Env string

	once sync.Once
)

// IsLocal reports a developer machine: logs are written for a terminal.
func IsLocal() bool {
	return Env == Local
}

// Load resolves ENV through viper. Safe to call more than once; only the
// first call after configuration is loaded has an effect.
func Load() {
	once.Do(func() {
		Env = viper.GetString("ENV")
		if Env == "" {
			Env = Local
		}
	})
}
