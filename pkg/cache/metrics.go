// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"github.com/LeeDigitalWorks/docindex/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docindex",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Cache lookups through GetOrLoad",
	}, []string{"result"}) // result: "hit", "miss"

	CacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docindex",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries evicted to respect the max size",
	})
)

func init() {
	debug.Registry().MustRegister(CacheRequests, CacheEvictions)
}
