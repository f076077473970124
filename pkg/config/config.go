package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file
const (
	EnvDatabaseDSN    = "MODERATOR_DATABASE_DSN"
	EnvDatabaseDriver = "MODERATOR_DATABASE_DRIVER"
	EnvRedisURL       = "MODERATOR_REDIS_URL"
	EnvClassifier     = "MODERATOR_CLASSIFIER"
	EnvHamCutoff      = "MODERATOR_HAM_CUTOFF"
	EnvSpamCutoff     = "MODERATOR_SPAM_CUTOFF"
	EnvAbuseCutoff    = "MODERATOR_ABUSE_CUTOFF"
	EnvServerAddress  = "MODERATOR_SERVER_ADDRESS"
	EnvLogLevel       = "MODERATOR_LOG_LEVEL"
)

// Config represents the comment moderator configuration
type Config struct {
	// Classification thresholds and backend selection
	Moderator ModeratorConfig `yaml:"moderator"`

	// Relational database holding comments, votes and classifications
	Database DatabaseConfig `yaml:"database"`

	// Redis word statistics backend
	Redis RedisConfig `yaml:"redis"`

	// Classifier tuning
	Learning LearningConfig `yaml:"learning"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// Vote event workers
	Worker WorkerConfig `yaml:"worker"`

	Logging LoggingConfig `yaml:"logging"`
}

// ModeratorConfig contains classification settings
type ModeratorConfig struct {
	// Word statistics backend: "sql" or "redis"
	Classifier string `yaml:"classifier"`

	// Scores below ham_cutoff are ham, above spam_cutoff spam, unsure between
	HamCutoff  float64 `yaml:"ham_cutoff"`
	SpamCutoff float64 `yaml:"spam_cutoff"`

	// Down votes that report a comment
	AbuseCutoff int `yaml:"abuse_cutoff"`

	// Classify comments as they are created
	RealtimeClassification bool `yaml:"realtime_classification"`

	// Date moderator replies one second before the comment instead of after
	ReplyBeforeComment bool `yaml:"reply_before_comment"`

	// Default number of spam and of ham comments used by "train"
	TrainSampleCount int `yaml:"train_sample_count"`
}

// DatabaseConfig contains relational database settings
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres
	DSN    string `yaml:"dsn"`
}

// RedisConfig contains Redis backend settings
type RedisConfig struct {
	RedisURL    string `yaml:"redis_url"`
	KeyPrefix   string `yaml:"key_prefix"`
	DatabaseNum int    `yaml:"database_num"`
	BatchSize   int    `yaml:"batch_size"`
}

// LearningConfig contains classifier parameters
type LearningConfig struct {
	MinTokenLength      int     `yaml:"min_token_length"`
	MaxTokenLength      int     `yaml:"max_token_length"`
	UnknownWordProb     float64 `yaml:"unknown_word_prob"`
	UnknownWordStrength float64 `yaml:"unknown_word_strength"`
	MinimumProbStrength float64 `yaml:"minimum_prob_strength"`
	MaxDiscriminators   int     `yaml:"max_discriminators"`
}

// ServerConfig contains HTTP settings
type ServerConfig struct {
	Address         string `yaml:"address"`
	ReadTimeoutMs   int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs  int    `yaml:"write_timeout_ms"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_ms"`
}

// WorkerConfig contains vote dispatcher settings
type WorkerConfig struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	File   string `yaml:"file"`   // log file path, empty = stderr
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Moderator: ModeratorConfig{
			Classifier:             "sql",
			HamCutoff:              0.3,
			SpamCutoff:             0.7,
			AbuseCutoff:            3,
			RealtimeClassification: true,
			TrainSampleCount:       10000,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "moderator.db",
		},
		Redis: RedisConfig{
			RedisURL:    "redis://localhost:6379",
			KeyPrefix:   "moderator:bayes:",
			DatabaseNum: 0,
			BatchSize:   1000,
		},
		Learning: LearningConfig{
			MinTokenLength:      3,
			MaxTokenLength:      12,
			UnknownWordProb:     0.5,
			UnknownWordStrength: 0.45,
			MinimumProbStrength: 0.1,
			MaxDiscriminators:   150,
		},
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeoutMs:   10000,
			WriteTimeoutMs:  10000,
			ShutdownTimeout: 15000,
		},
		Worker: WorkerConfig{
			QueueSize: 1024,
			Workers:   2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			File:   "",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from file, then applies a .env file next to
// the working directory and MODERATOR_* environment variables on top
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	if configPath != "" {
		// Check if config file exists
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}

		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// a missing .env is fine
	_ = godotenv.Load()

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides settings from MODERATOR_* environment variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(EnvDatabaseDriver); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Redis.RedisURL = v
	}
	if v := os.Getenv(EnvClassifier); v != "" {
		c.Moderator.Classifier = v
	}
	if v := os.Getenv(EnvServerAddress); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(EnvHamCutoff); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHamCutoff, err)
		}
		c.Moderator.HamCutoff = f
	}
	if v := os.Getenv(EnvSpamCutoff); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvSpamCutoff, err)
		}
		c.Moderator.SpamCutoff = f
	}
	if v := os.Getenv(EnvAbuseCutoff); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvAbuseCutoff, err)
		}
		c.Moderator.AbuseCutoff = n
	}

	return nil
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	m := c.Moderator

	if m.Classifier != "sql" && m.Classifier != "redis" {
		return fmt.Errorf("unknown classifier backend: %s", m.Classifier)
	}

	if m.HamCutoff < 0 || m.SpamCutoff > 1 || m.HamCutoff > m.SpamCutoff {
		return fmt.Errorf("cutoffs must satisfy 0 <= ham_cutoff <= spam_cutoff <= 1")
	}

	if m.AbuseCutoff < 1 {
		return fmt.Errorf("abuse_cutoff must be >= 1")
	}

	if m.TrainSampleCount < 1 {
		return fmt.Errorf("train_sample_count must be >= 1")
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("database driver must be 'sqlite' or 'postgres'")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn cannot be empty")
	}

	if m.Classifier == "redis" && c.Redis.RedisURL == "" {
		return fmt.Errorf("redis_url cannot be empty when the redis classifier is used")
	}

	l := c.Learning
	if l.MinTokenLength < 1 {
		return fmt.Errorf("min_token_length must be >= 1")
	}
	if l.MaxTokenLength != 0 && l.MaxTokenLength < l.MinTokenLength {
		return fmt.Errorf("max_token_length must be 0 or >= min_token_length")
	}
	if l.UnknownWordProb <= 0 || l.UnknownWordProb >= 1 {
		return fmt.Errorf("unknown_word_prob must be between 0 and 1")
	}
	if l.UnknownWordStrength <= 0 {
		return fmt.Errorf("unknown_word_strength must be > 0")
	}
	if l.MinimumProbStrength < 0 || l.MinimumProbStrength >= 0.5 {
		return fmt.Errorf("minimum_prob_strength must be in [0, 0.5)")
	}
	if l.MaxDiscriminators < 1 {
		return fmt.Errorf("max_discriminators must be >= 1")
	}

	if c.Server.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	if c.Worker.QueueSize < 1 || c.Worker.Workers < 1 {
		return fmt.Errorf("worker queue_size and workers must be >= 1")
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error"}
	validLevel := false
	for _, level := range validLevels {
		if c.Logging.Level == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging format must be 'json' or 'text'")
	}

	return nil
}

// ReadTimeout returns the HTTP read timeout
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the HTTP write timeout
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMs) * time.Millisecond
}

// ShutdownGrace returns how long in-flight requests get on shutdown
func (s ServerConfig) ShutdownGrace() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Millisecond
}
