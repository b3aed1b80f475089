// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xdg-go/scram"
)

func TestKafkaConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := DefaultKafkaConfig([]string{"localhost:9092"})

	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, "docindex-tasks", cfg.Topic)
	assert.Equal(t, 1, cfg.RequiredAcks)
	assert.Equal(t, "snappy", cfg.Compression)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchTimeout)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaPublisher(KafkaConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one Kafka broker is required")
}

func TestKafkaPublisher_Publish(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "main" {
			return errors.New("expected key to be the wiki")
		}
		if msg.Topic != "docindex-tasks" {
			return errors.New("expected topic to be docindex-tasks")
		}
		return nil
	})

	pub := &KafkaPublisher{producer: producer, topic: "docindex-tasks"}
	assert.Equal(t, "kafka", pub.Name())

	err := pub.Publish(context.Background(), "main", []byte(`{"doc_id":42}`))
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(errors.New("broker unavailable"))

	pub := &KafkaPublisher{producer: producer, topic: "docindex-tasks"}

	err := pub.Publish(context.Background(), "main", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka publish")
	assert.Contains(t, err.Error(), "broker unavailable")
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_CloseNil(t *testing.T) {
	t.Parallel()

	pub := &KafkaPublisher{}
	assert.NoError(t, pub.Close())
}

func TestSaramaConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         KafkaConfig
		compression sarama.CompressionCodec
		acks        sarama.RequiredAcks
		mechanism   sarama.SASLMechanism
	}{
		{
			name:        "defaults",
			cfg:         DefaultKafkaConfig([]string{"b:9092"}),
			compression: sarama.CompressionSnappy,
			acks:        sarama.WaitForLocal,
		},
		{
			name:        "gzip all acks",
			cfg:         KafkaConfig{Compression: "gzip", RequiredAcks: -1},
			compression: sarama.CompressionGZIP,
			acks:        sarama.WaitForAll,
		},
		{
			name:        "no compression no acks",
			cfg:         KafkaConfig{Compression: "none", RequiredAcks: 0},
			compression: sarama.CompressionNone,
			acks:        sarama.NoResponse,
		},
		{
			name:        "unknown compression",
			cfg:         KafkaConfig{Compression: "brotli", RequiredAcks: 99},
			compression: sarama.CompressionSnappy,
			acks:        sarama.WaitForLocal,
		},
		{
			name:        "scram sha512",
			cfg:         KafkaConfig{Compression: "zstd", RequiredAcks: 1, SASLEnabled: true, SASLMechanism: "SCRAM-SHA-512"},
			compression: sarama.CompressionZSTD,
			acks:        sarama.WaitForLocal,
			mechanism:   sarama.SASLTypeSCRAMSHA512,
		},
		{
			name:        "plain sasl",
			cfg:         KafkaConfig{Compression: "lz4", RequiredAcks: 1, SASLEnabled: true},
			compression: sarama.CompressionLZ4,
			acks:        sarama.WaitForLocal,
			mechanism:   sarama.SASLTypePlaintext,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			config := saramaConfig(tt.cfg)
			assert.Equal(t, tt.compression, config.Producer.Compression)
			assert.Equal(t, tt.acks, config.Producer.RequiredAcks)
			assert.True(t, config.Producer.Return.Successes)
			if tt.mechanism != "" {
				assert.True(t, config.Net.SASL.Enable)
				assert.Equal(t, tt.mechanism, config.Net.SASL.Mechanism)
			}
		})
	}
}

func TestScramClient(t *testing.T) {
	t.Parallel()

	c := &scramClient{mechanism: scram.SHA256}
	require.NoError(t, c.Begin("user", "pencil", ""))

	first, err := c.Step("")
	require.NoError(t, err)
	assert.Contains(t, first, "n=user")
	assert.False(t, c.Done())
}
