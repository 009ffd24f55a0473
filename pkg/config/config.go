package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Queue    QueueConfig    `yaml:"queue"`
	Worker   WorkerConfig   `yaml:"worker"`
	Liveness LivenessConfig `yaml:"liveness"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for worker-facing endpoints (empty disables auth)
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// QueueConfig dispatch queue configuration
type QueueConfig struct {
	Concurrency     int `yaml:"concurrency"`       // worker slots per worker process
	MaxRetry        int `yaml:"max_retry"`         // maximum dispatch retry count
	RetryBaseDelay  int `yaml:"retry_base_delay"`  // backoff base delay (seconds)
	RetryMaxDelay   int `yaml:"retry_max_delay"`   // backoff delay cap (seconds)
	RetentionPeriod int `yaml:"retention_period"`  // completed dispatch record retention (seconds)
}

// WorkerConfig worker runtime configuration
type WorkerConfig struct {
	ID                string `yaml:"id"`                 // worker id, generated when empty
	Type              string `yaml:"type"`               // local, cloud
	HeartbeatInterval int    `yaml:"heartbeat_interval"` // heartbeat push interval (seconds)
	ServerURL         string `yaml:"server_url"`         // coordinator base URL for start/result reporting
	DefaultTimeout    int    `yaml:"default_timeout"`    // default task timeout (seconds)
	MaxTimeout        int    `yaml:"max_timeout"`        // maximum accepted task timeout (seconds)
}

// LivenessConfig heartbeat age thresholds for derived worker status
type LivenessConfig struct {
	ActiveWithin int `yaml:"active_within"` // age below this is active (seconds)
	IdleWithin   int `yaml:"idle_within"`   // age below this is idle; at or beyond, gone (seconds)
}

// SweepConfig background sweep configuration
type SweepConfig struct {
	RequeueInterval    int `yaml:"requeue_interval"`    // queued-task requeue sweep interval (seconds)
	RequeueGrace       int `yaml:"requeue_grace"`       // re-enqueue QUEUED tasks older than this (seconds)
	TimeoutInterval    int `yaml:"timeout_interval"`    // running-task timeout sweep interval (seconds)
	DeadLetterInterval int `yaml:"deadletter_interval"` // dead-letter bridge sweep interval (seconds)
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// ActiveThreshold returns the active heartbeat-age threshold as a duration.
func (c LivenessConfig) ActiveThreshold() time.Duration {
	return time.Duration(c.ActiveWithin) * time.Second
}

// ExpiryThreshold returns the heartbeat expiry threshold as a duration.
// Workers whose last heartbeat is older than this are treated as gone.
func (c LivenessConfig) ExpiryThreshold() time.Duration {
	return time.Duration(c.IdleWithin) * time.Second
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	cfg.applyDefaults()
	GlobalConfig = &cfg
	return nil
}

func (c *Config) applyDefaults() {
	if c.Queue.Concurrency <= 0 {
		c.Queue.Concurrency = 1
	}
	if c.Queue.MaxRetry <= 0 {
		c.Queue.MaxRetry = 3
	}
	if c.Queue.RetryBaseDelay <= 0 {
		c.Queue.RetryBaseDelay = 2
	}
	if c.Queue.RetryMaxDelay <= 0 {
		c.Queue.RetryMaxDelay = 60
	}
	if c.Queue.RetentionPeriod <= 0 {
		c.Queue.RetentionPeriod = 3600
	}
	if c.Worker.HeartbeatInterval <= 0 {
		c.Worker.HeartbeatInterval = 5
	}
	if c.Worker.Type == "" {
		c.Worker.Type = "local"
	}
	if c.Worker.DefaultTimeout <= 0 {
		c.Worker.DefaultTimeout = 300
	}
	if c.Worker.MaxTimeout <= 0 {
		c.Worker.MaxTimeout = 3600
	}
	if c.Liveness.ActiveWithin <= 0 {
		c.Liveness.ActiveWithin = 15
	}
	if c.Liveness.IdleWithin <= 0 {
		c.Liveness.IdleWithin = 30
	}
	if c.Sweep.RequeueInterval <= 0 {
		c.Sweep.RequeueInterval = 30
	}
	if c.Sweep.RequeueGrace <= 0 {
		c.Sweep.RequeueGrace = 60
	}
	if c.Sweep.TimeoutInterval <= 0 {
		c.Sweep.TimeoutInterval = 30
	}
	if c.Sweep.DeadLetterInterval <= 0 {
		c.Sweep.DeadLetterInterval = 60
	}
}
