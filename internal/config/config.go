package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"credence/workspace-portal/credentials-engine/pkg/chain"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Workspace     WorkspaceConfig     `json:"workspace"`
	Chains        []chain.ChainConfig `json:"chains"`
	Notifications NotificationsConfig `json:"notifications"`
	Worker        WorkerConfig        `json:"worker"`
	Logging       LoggingConfig       `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// DSN renders the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// WorkspaceConfig holds the workspace-facing settings.
type WorkspaceConfig struct {
	// AppURL is the base URL embedded into credential permalinks.
	AppURL string `json:"app_url"`
}

// NotificationsConfig configures the credential event bus.
type NotificationsConfig struct {
	Region   string `json:"region"`
	TopicARN string `json:"topic_arn"`
}

// WorkerConfig configures the reconcile worker.
type WorkerConfig struct {
	// CronSchedule is the reconciliation trigger schedule.
	CronSchedule string `json:"cron_schedule"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// LoadConfig reads the JSON config file and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// FromEnv builds a configuration from environment variables only.
func FromEnv() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    time.Hour,
		},
		Worker:  WorkerConfig{CronSchedule: "@every 5m"},
		Logging: LoggingConfig{Level: "info"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DATABASE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DATABASE_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DATABASE_DBNAME"); v != "" {
		cfg.Database.DBName = v
	}
	if v := os.Getenv("APP_URL"); v != "" {
		cfg.Workspace.AppURL = v
	}
	if v := os.Getenv("NOTIFICATIONS_TOPIC_ARN"); v != "" {
		cfg.Notifications.TopicARN = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Notifications.Region = v
	}
	if v := os.Getenv("RECONCILE_CRON"); v != "" {
		cfg.Worker.CronSchedule = v
	}
}
