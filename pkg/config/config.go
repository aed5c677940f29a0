package config

// Package config provides a reusable loader for overflowgraph's
// configuration files and environment variables. It is versioned so that
// applications can depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"overflowgraph/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for an overflowgraph
// instance. It mirrors the structure of the YAML files under
// cmd/graphstore/config.
type Config struct {
	Eviction struct {
		BatchSize             int  `mapstructure:"batch_size" json:"batch_size"`
		WorkerCount           int  `mapstructure:"worker_count" json:"worker_count"`
		MaxBackpressureWaitMS int  `mapstructure:"max_backpressure_wait_ms" json:"max_backpressure_wait_ms"`
		DirtyOnly             bool `mapstructure:"dirty_only" json:"dirty_only"`
	} `mapstructure:"eviction" json:"eviction"`

	Codec struct {
		MaxCollectionSize int `mapstructure:"max_collection_size" json:"max_collection_size"`
	} `mapstructure:"codec" json:"codec"`

	Persistence struct {
		Backend string `mapstructure:"backend" json:"backend"` // "memory" or "file"
		Dir     string `mapstructure:"dir" json:"dir"`          // used when backend == "file"
	} `mapstructure:"persistence" json:"persistence"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is
// loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/graphstore/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("OVERFLOWGRAPH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // picks up OVERFLOWGRAPH_* from the process environment

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the OVERFLOWGRAPH_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("OVERFLOWGRAPH_ENV", ""))
}
