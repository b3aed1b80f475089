// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package events publishes task completion events so other services can
// react to a document being indexed.
//
// A Notifier is registered as the taskqueue Listener. Every task that
// leaves the queue is encoded as an Event and fanned out to the configured
// publishers (Redis Pub/Sub, Kafka). Delivery is fire and forget: a
// publisher failure is logged and counted, never retried.
package events

import (
	"time"
)

// Config holds event notification configuration.
type Config struct {
	// Enabled controls whether events are published at all.
	Enabled bool `mapstructure:"enabled"`

	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

const (
	defaultRedisAddr    = "localhost:6379"
	defaultRedisChannel = "docindex:tasks"
	defaultKafkaTopic   = "docindex-tasks"
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	redis := DefaultRedisConfig(defaultRedisAddr)
	kafka := DefaultKafkaConfig(nil)
	return Config{Redis: redis, Kafka: kafka}
}

// Validate applies defaults for invalid values.
func (c *Config) Validate() {
	if c.Redis.Addr == "" {
		c.Redis.Addr = defaultRedisAddr
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = defaultRedisChannel
	}
	if c.Redis.DialTimeout <= 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = defaultKafkaTopic
	}
	if c.Kafka.RequiredAcks < -1 || c.Kafka.RequiredAcks > 1 {
		c.Kafka.RequiredAcks = 1
	}
	if c.Kafka.Compression == "" {
		c.Kafka.Compression = "snappy"
	}
	if c.Kafka.BatchSize <= 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout <= 0 {
		c.Kafka.BatchTimeout = time.Second
	}
}

// HasPublishers returns true if at least one publisher is enabled.
func (c *Config) HasPublishers() bool {
	return c.Enabled && (c.Redis.Enabled || c.Kafka.Enabled)
}

// NewPublishers creates every enabled publisher. On error the publishers
// created so far are closed.
func (c *Config) NewPublishers() ([]Publisher, error) {
	if !c.Enabled {
		return nil, nil
	}

	var pubs []Publisher
	closeAll := func() {
		for _, p := range pubs {
			p.Close()
		}
	}

	if c.Redis.Enabled {
		p, err := NewRedisPublisher(c.Redis)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}
	if c.Kafka.Enabled {
		p, err := NewKafkaPublisher(c.Kafka)
		if err != nil {
			closeAll()
			return nil, err
		}
		pubs = append(pubs, p)
	}
	return pubs, nil
}
