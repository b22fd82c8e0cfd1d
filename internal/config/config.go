// Package config provides configuration types and loading for toolsyncd.
//
// All values have safe defaults so the daemon can run unattended; a config
// file and TOOLSYNC_-prefixed environment variables override them.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the top-level configuration for toolsyncd.
type Config struct {
	// Consumer configures the incremental update consumer.
	Consumer ConsumerConfig `yaml:"consumer" mapstructure:"consumer"`

	// Recovery configures drift detection thresholds and the resync
	// protocol toward the agent.
	Recovery RecoveryConfig `yaml:"recovery" mapstructure:"recovery"`

	// Redis configures the shared queue store.
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`

	// Storage configures the persisted tool mirror.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Admin configures the operational HTTP surface.
	Admin AdminConfig `yaml:"admin" mapstructure:"admin"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" mapstructure:"log"`
}

// ConsumerConfig controls the queue polling loop.
type ConsumerConfig struct {
	// Enabled controls whether the consumer starts. Default: true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// QueueKey is the shared list key carrying update messages.
	// Default: "tools:updates".
	QueueKey string `yaml:"queue_key" mapstructure:"queue_key" validate:"required"`

	// PollTimeout bounds each blocking pop. Default: 5s.
	PollTimeout time.Duration `yaml:"poll_timeout" mapstructure:"poll_timeout" validate:"min=100ms"`

	// MaxMessageAge is the freshness window for update messages; messages
	// older (or further in the future) than this are dropped as invalid.
	// Zero disables the check. Default: 30m.
	MaxMessageAge time.Duration `yaml:"max_message_age" mapstructure:"max_message_age"`

	// StopGracePeriod bounds how long Stop waits for the polling loop to
	// finish its current iteration. Default: 10s.
	StopGracePeriod time.Duration `yaml:"stop_grace_period" mapstructure:"stop_grace_period" validate:"min=1s"`
}

// RecoveryConfig controls failure detection and full-snapshot recovery.
type RecoveryConfig struct {
	// Enabled controls whether resync recovery may run. Default: true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// AgentBaseURL is the base URL of the agent's HTTP API.
	// Default: "http://localhost:5001".
	AgentBaseURL string `yaml:"agent_base_url" mapstructure:"agent_base_url" validate:"required,url"`

	// ResyncPath is the resync endpoint path on the agent.
	// Default: "/api/tools/resync".
	ResyncPath string `yaml:"resync_path" mapstructure:"resync_path" validate:"required,startswith=/"`

	// HTTPTimeout bounds a single resync HTTP attempt. Default: 10s.
	HTTPTimeout time.Duration `yaml:"http_timeout" mapstructure:"http_timeout" validate:"min=1s"`

	// MaxRetries is the HTTP attempt budget per recovery. Default: 3.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries" validate:"min=1"`

	// InitialDelay seeds the exponential backoff between attempts.
	// Default: 1s.
	InitialDelay time.Duration `yaml:"initial_delay" mapstructure:"initial_delay" validate:"min=10ms"`

	// FailureThreshold is the consecutive processing-failure count that
	// trips recovery. Default: 5.
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"min=1"`

	// InvalidThreshold is the invalid-message count within InvalidWindow
	// that trips recovery. Default: 10.
	InvalidThreshold int `yaml:"invalid_threshold" mapstructure:"invalid_threshold" validate:"min=1"`

	// InvalidWindow is the sliding window for invalid-message counting.
	// Default: 1m.
	InvalidWindow time.Duration `yaml:"invalid_window" mapstructure:"invalid_window" validate:"min=1s"`
}

// RedisConfig configures the shared queue store connection.
type RedisConfig struct {
	// Addr is the host:port of the Redis server. Default: "localhost:6379".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"required"`

	// Password is optional.
	Password string `yaml:"password" mapstructure:"password"`

	// DB selects the logical database. Default: 0.
	DB int `yaml:"db" mapstructure:"db" validate:"min=0"`
}

// StorageConfig configures the persisted mirror.
type StorageConfig struct {
	// Driver selects the mirror backend: "sqlite" or "memory".
	// Default: "sqlite".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite memory"`

	// DSN is the sqlite data source. Default: "file:toolsync.db".
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// AdminConfig configures the operational HTTP listener.
type AdminConfig struct {
	// Addr is the listen address. Default: ":8780".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"required"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: "info".
	Level string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
}

// SetDefaults registers every default with Viper. Called before loading.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("consumer.enabled", true)
	v.SetDefault("consumer.queue_key", "tools:updates")
	v.SetDefault("consumer.poll_timeout", "5s")
	v.SetDefault("consumer.max_message_age", "30m")
	v.SetDefault("consumer.stop_grace_period", "10s")

	v.SetDefault("recovery.enabled", true)
	v.SetDefault("recovery.agent_base_url", "http://localhost:5001")
	v.SetDefault("recovery.resync_path", "/api/tools/resync")
	v.SetDefault("recovery.http_timeout", "10s")
	v.SetDefault("recovery.max_retries", 3)
	v.SetDefault("recovery.initial_delay", "1s")
	v.SetDefault("recovery.failure_threshold", 5)
	v.SetDefault("recovery.invalid_threshold", 10)
	v.SetDefault("recovery.invalid_window", "1m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "file:toolsync.db")

	v.SetDefault("admin.addr", ":8780")
	v.SetDefault("log.level", "info")
}

// Validate validates the configuration using struct tags plus cross-field
// rules, returning an actionable error on the first violation.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		return fmt.Errorf("storage: dsn is required when driver is sqlite")
	}
	return nil
}

// formatValidationErrors converts validator errors into readable messages.
func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if ok := asValidationErrors(err, &verrs); !ok {
		return err
	}
	for _, fe := range verrs {
		return fmt.Errorf("config: field %s failed rule %q (value %v)",
			fe.Namespace(), fe.Tag(), fe.Value())
	}
	return err
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}
