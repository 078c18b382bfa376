// Package config provides configuration management for coordcore.
// It supports loading configuration from environment variables, flags, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for coordcore.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Shared  SharedConfig  `mapstructure:"shared"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration for the reference services
// and the orchestrator's admin API.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// SharedConfig holds the filesystem layout shared by every component.
type SharedConfig struct {
	// SharedDir is the root for the fallback log, cursors, and artifact
	// subdirectories (specifications/, builds/, reports/).
	SharedDir string `mapstructure:"sharedDir"`
	// KnowledgeRoot is the data directory for the Knowledge Store service.
	KnowledgeRoot string `mapstructure:"knowledgeRoot"`
	// StorageDir is the data directory for the Vector/Document Search service.
	StorageDir string `mapstructure:"storageDir"`
	// TaskDBPath is the sqlite file backing the durable Task Registry.
	TaskDBPath string `mapstructure:"taskDbPath"`
}

// NATSConfig holds broker connection configuration for the primary
// Transport path. An empty URL disables the primary path entirely and
// the Transport always uses the fallback log.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// AgentConfig holds the identity of a launched agent process.
type AgentConfig struct {
	ID   string `mapstructure:"id"`
	Role string `mapstructure:"role"`
	// ReceiveTimeoutSeconds is how long a single Transport.Receive call
	// blocks waiting for a message before returning nil.
	ReceiveTimeoutSeconds int `mapstructure:"receiveTimeoutSeconds"`
	// IdleThreshold is the number of consecutive empty receives before
	// on_idle is invoked.
	IdleThreshold int `mapstructure:"idleThreshold"`
	// DedupSize is the minimum capacity of the bounded LRU dedup set.
	DedupSize int `mapstructure:"dedupSize"`
}

// BridgeConfig holds endpoints and retry policy for the Service Bridge.
type BridgeConfig struct {
	KnowledgeURL    string `mapstructure:"knowledgeUrl"`
	VectorURL       string `mapstructure:"vectorUrl"`
	CoordinationURL string `mapstructure:"coordinationUrl"`
	TimeoutSeconds  int    `mapstructure:"timeoutSeconds"`
	MaxRetries      int    `mapstructure:"maxRetries"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// ReceiveTimeout returns the configured Transport receive timeout.
func (a *AgentConfig) ReceiveTimeout() time.Duration {
	return time.Duration(a.ReceiveTimeoutSeconds) * time.Second
}

// Timeout returns the configured Bridge per-call timeout.
func (b *BridgeConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	// 0 is a sentinel: each binary applies its own default port (§6 "HTTP
	// surface" — 8501 Knowledge, 8502 Vector, 8503 Coordination) unless
	// SERVER_PORT overrides it.
	v.SetDefault("server.port", 0)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("shared.sharedDir", "./shared")
	v.SetDefault("shared.knowledgeRoot", "./shared/knowledge")
	v.SetDefault("shared.storageDir", "./shared/documents")
	v.SetDefault("shared.taskDbPath", "./shared/tasks.db")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "coordcore")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("agent.id", "")
	v.SetDefault("agent.role", "")
	v.SetDefault("agent.receiveTimeoutSeconds", 5)
	v.SetDefault("agent.idleThreshold", 10)
	v.SetDefault("agent.dedupSize", 10000)

	v.SetDefault("bridge.knowledgeUrl", "http://localhost:8501")
	v.SetDefault("bridge.vectorUrl", "http://localhost:8502")
	v.SetDefault("bridge.coordinationUrl", "http://localhost:8503")
	v.SetDefault("bridge.timeoutSeconds", 5)
	v.SetDefault("bridge.maxRetries", 2)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads configuration from environment variables, config file, and defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings matching the exact environment variable names the
	// spec names in §6, which do not follow the mapstructure camelCase keys.
	_ = v.BindEnv("shared.sharedDir", "SHARED_DIR")
	_ = v.BindEnv("nats.url", "BROKER_URL")
	_ = v.BindEnv("shared.knowledgeRoot", "KNOWLEDGE_ROOT")
	_ = v.BindEnv("shared.storageDir", "STORAGE_DIR")
	_ = v.BindEnv("agent.id", "AGENT_ID")
	_ = v.BindEnv("agent.role", "AGENT_ROLE")
	_ = v.BindEnv("bridge.knowledgeUrl", "KNOWLEDGE_URL")
	_ = v.BindEnv("bridge.vectorUrl", "VECTOR_URL")
	_ = v.BindEnv("bridge.coordinationUrl", "COORDINATION_URL")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/coordcore/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535 (0 selects the binary's own default)")
	}

	if cfg.Agent.ReceiveTimeoutSeconds <= 0 {
		errs = append(errs, "agent.receiveTimeoutSeconds must be positive")
	}
	if cfg.Agent.IdleThreshold <= 0 {
		errs = append(errs, "agent.idleThreshold must be positive")
	}
	if cfg.Agent.DedupSize < 10000 {
		errs = append(errs, "agent.dedupSize must be at least 10000")
	}

	if cfg.Bridge.MaxRetries < 0 {
		errs = append(errs, "bridge.maxRetries must be non-negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, console")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
