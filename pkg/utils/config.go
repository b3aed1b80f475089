// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"os"
	"strings"

	"github.com/LeeDigitalWorks/docindex/pkg/logger"

	"github.com/spf13/viper"
)

var (
	ConfigurationFileDirectory string
)

// LoadConfiguration merges <configFileName>.{yaml,toml,json} from the usual
// locations into viper and enables environment overrides (DOCINDEX_ prefix).
func LoadConfiguration(configFileName string, required bool) bool {
	viper.SetConfigName(configFileName)
	viper.AddConfigPath(ResolvePath(ConfigurationFileDirectory))
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.docindex")
	viper.AddConfigPath("/etc/docindex/")
	viper.SetEnvPrefix("docindex")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if required {
				logger.Fatal().Str("config", configFileName).Msg("config file not found")
			}
			logger.Info().Str("config", configFileName).Msg("config file not found, using flags and environment")
			return false
		}

		if required {
			logger.Fatal().Err(err).Str("config", configFileName).Msg("failed to load required config file")
		}
		logger.Warn().Err(err).Str("config", configFileName).Msg("failed to load config file")
		return false
	}
	logger.Info().Str("file", viper.ConfigFileUsed()).Msg("loaded config file")

	return true
}

// ResolvePath expands a leading ~ to the user's home directory.
func ResolvePath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + strings.TrimPrefix(path, "~")
		}
	}
	return path
}
