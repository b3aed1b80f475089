// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/debug"
	"github.com/LeeDigitalWorks/docindex/pkg/document"
	"github.com/LeeDigitalWorks/docindex/pkg/events"
	"github.com/LeeDigitalWorks/docindex/pkg/logger"
	"github.com/LeeDigitalWorks/docindex/pkg/taskqueue"
	"github.com/LeeDigitalWorks/docindex/pkg/taskqueue/consumers"
	"github.com/LeeDigitalWorks/docindex/pkg/utils"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type ServeOpts struct {
	StoreOpts

	IP        string
	DebugPort int

	RetryDelay        time.Duration
	MaxRetryDelay     time.Duration
	MaxTasksPerSecond float64

	SearchIndexDir string

	RevisionCacheSize int
	RevisionCacheTTL  time.Duration

	Events events.Config
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the indexing queue",
	Long: `Run the indexing queue of this instance:
- recovers the tasks persisted by a previous run of the same instance_id
- executes queued tasks one at a time with the search and links consumers
- serves metrics, health and /debug/tasks on the debug port
- optionally publishes task events to Redis and Kafka`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addStoreFlags(serveCmd)

	f := serveCmd.Flags()
	f.String("ip", utils.DetectedHostAddress(), "IP address to bind to")
	f.Int("debug_port", 8095, "Debug HTTP port (metrics, health, /debug/tasks)")

	f.Duration("retry_delay", 0, "Delay before retrying a failed task, doubled on every failure (0 retries immediately)")
	f.Duration("max_retry_delay", time.Minute, "Upper bound of the retry delay")
	f.Float64("max_tasks_per_second", 0, "Limit task executions per second (0 = unlimited)")

	f.String("search_index_dir", "/var/lib/docindex/search", "Search index directory (empty keeps it in memory)")
	f.Int("revision_cache_size", 10000, "Document revisions kept in memory (0 disables the cache)")
	f.Duration("revision_cache_ttl", 10*time.Minute, "Evict cached revisions not used for this long")

	// Task events
	f.Bool("events_enabled", false, "Publish task events")
	f.Bool("redis_enabled", false, "Publish task events to Redis Pub/Sub")
	f.String("redis_addr", "localhost:6379", "Redis address")
	f.String("redis_password", "", "Redis password")
	f.Int("redis_db", 0, "Redis database number")
	f.String("redis_channel", "docindex:tasks", "Redis channel prefix, events go to {prefix}:{wiki}")
	f.Bool("kafka_enabled", false, "Publish task events to Kafka")
	f.StringSlice("kafka_brokers", nil, "Kafka broker addresses")
	f.String("kafka_topic", "docindex-tasks", "Kafka topic")
	f.Int("kafka_required_acks", 1, "Kafka required acks (0=none, 1=leader, -1=all)")
	f.String("kafka_compression", "snappy", "Kafka compression (none, gzip, snappy, lz4, zstd)")
	f.Bool("kafka_tls", false, "Use TLS for Kafka connections")
	f.Bool("kafka_sasl_enabled", false, "Enable Kafka SASL authentication")
	f.String("kafka_sasl_mechanism", "PLAIN", "Kafka SASL mechanism (PLAIN, SCRAM-SHA-256, SCRAM-SHA-512)")
	f.String("kafka_sasl_username", "", "Kafka SASL username")
	f.String("kafka_sasl_password", "", "Kafka SASL password (use env var DOCINDEX_KAFKA_SASL_PASSWORD)")

	viper.BindPFlags(f)
}

func runServe(cmd *cobra.Command, args []string) {
	opts := loadServeOpts(cmd)
	ctx := cmd.Context()

	debug.SetNotReady()

	if opts.InstanceID == "" {
		opts.InstanceID = uuid.New().String()
		logger.Warn().
			Str("instance_id", opts.InstanceID).
			Msg("no instance_id configured, tasks of this run cannot be recovered after a restart")
	}

	b, err := openBackend(opts.StoreOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer b.Close()

	search, err := consumers.NewSearchConsumer(consumers.SearchConfig{Path: opts.SearchIndexDir})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open search index")
	}
	defer search.Close()

	var revisions document.RevisionProvider = b.documents
	if opts.RevisionCacheSize > 0 {
		cached := document.NewCachedRevisions(b.documents, opts.RevisionCacheSize, opts.RevisionCacheTTL)
		defer cached.Close()
		revisions = cached
	}

	executor := taskqueue.NewExecutor(taskqueue.ExecutorConfig{
		Store:     b.store,
		Revisions: revisions,
		Consumers: taskqueue.NewRegistry(search, consumers.NewLinksConsumer(b.pool)),
	})

	cfg := taskqueue.ManagerConfig{
		InstanceID:        opts.InstanceID,
		Store:             b.store,
		Executor:          executor,
		RetryDelay:        opts.RetryDelay,
		MaxRetryDelay:     opts.MaxRetryDelay,
		MaxTasksPerSecond: opts.MaxTasksPerSecond,
	}

	publishers, err := opts.Events.NewPublishers()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize event publishers")
	}
	notifier := events.NewNotifier(events.NotifierConfig{
		Instance:   opts.InstanceID,
		Publishers: publishers,
	})
	defer notifier.Close()
	if notifier.IsEnabled() {
		cfg.Listener = notifier
	}

	manager, err := taskqueue.NewManager(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create task manager")
	}
	recovered, err := manager.Recover(ctx, opts.Wikis...)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to recover some persisted tasks")
	}
	logger.Info().
		Int("recovered", recovered).
		Strs("wikis", opts.Wikis).
		Msg("recovered persisted tasks")

	debug.RegisterHandler("/debug/tasks", taskqueue.Handler(manager))
	debug.RegisterHandlerFunc("/debug/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(VersionInfo()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	manager.Start(ctx)
	debugServer := startHTTPServer(debug.GetMux(), opts.IP, opts.DebugPort)

	debug.SetReady()
	waitForShutdown()
	debug.SetNotReady()

	manager.Stop()
	logger.Info().Int("queued", manager.QueueSize()).Msg("task manager stopped")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	debugServer.Shutdown(shutdownCtx)
}

func loadServeOpts(cmd *cobra.Command) ServeOpts {
	f := NewFlagLoader(cmd)

	ev := events.Config{
		Enabled: f.Bool("events_enabled"),
		Redis: events.RedisConfig{
			Enabled:  f.Bool("redis_enabled"),
			Addr:     f.String("redis_addr"),
			Password: f.String("redis_password"),
			DB:       f.Int("redis_db"),
			Channel:  f.String("redis_channel"),
		},
		Kafka: events.KafkaConfig{
			Enabled:       f.Bool("kafka_enabled"),
			Brokers:       f.StringSlice("kafka_brokers"),
			Topic:         f.String("kafka_topic"),
			RequiredAcks:  f.Int("kafka_required_acks"),
			Compression:   f.String("kafka_compression"),
			TLS:           f.Bool("kafka_tls"),
			SASLEnabled:   f.Bool("kafka_sasl_enabled"),
			SASLMechanism: f.String("kafka_sasl_mechanism"),
			SASLUsername:  f.String("kafka_sasl_username"),
			SASLPassword:  f.String("kafka_sasl_password"),
		},
	}
	ev.Validate()

	return ServeOpts{
		StoreOpts:         loadStoreOpts(cmd),
		IP:                f.String("ip"),
		DebugPort:         f.Int("debug_port"),
		RetryDelay:        f.Duration("retry_delay"),
		MaxRetryDelay:     f.Duration("max_retry_delay"),
		MaxTasksPerSecond: f.Float64("max_tasks_per_second"),
		SearchIndexDir:    f.String("search_index_dir"),
		RevisionCacheSize: f.Int("revision_cache_size"),
		RevisionCacheTTL:  f.Duration("revision_cache_ttl"),
		Events:            ev,
	}
}
