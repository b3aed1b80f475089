// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmd provides the docindex command line.
package cmd

import (
	"os"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/env"
	"github.com/LeeDigitalWorks/docindex/pkg/logger"
	"github.com/LeeDigitalWorks/docindex/pkg/utils"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "docindex",
	Short: "docindex - document indexing task queue",
	Long: `docindex keeps the search index and the backlinks of a wiki farm up to
date. Document changes are queued as indexing tasks, persisted per wiki and
executed in order by a single consumer.`,
	PersistentPreRun: initializeLogging,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
	rootCmd.PersistentFlags().String("log_level", "info", "Log level (debug, info, warn, error, fatal)")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log_level"))
}

// initializeLogging loads the configuration file and applies the log level.
func initializeLogging(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("docindex", false)
	env.Load()
	if env.IsLocal() {
		logger.SetOutput(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("environment", env.Env)
	})

	level, err := zerolog.ParseLevel(viper.GetString("log_level"))
	if err != nil || level == zerolog.NoLevel {
		logger.Warn().Str("log_level", viper.GetString("log_level")).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	logger.SetLevel(level)
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
