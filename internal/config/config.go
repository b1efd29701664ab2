package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	ServerAddress string    `json:"serverAddress" yaml:"server_address"`
	DatabasePath  string    `json:"databasePath" yaml:"database_path"`
	DatabaseURL   string    `json:"databaseUrl" yaml:"database_url"`
	LogLevel      string    `json:"logLevel" yaml:"log_level"`
	Security      Security  `json:"security" yaml:"security"`
	Upgrade       Upgrade   `json:"upgrade" yaml:"upgrade"`
	MQTT          MQTT      `json:"mqtt" yaml:"mqtt"`
	Telemetry     Telemetry `json:"telemetry" yaml:"telemetry"`
}

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// Security configuration. APIKeyHash is a bcrypt hash; when only APIKey
// is set the key is hashed at startup.
type Security struct {
	APIKey       string `json:"apiKey" yaml:"api_key"`
	APIKeyHash   string `json:"apiKeyHash" yaml:"api_key_hash"`
	APIKeyHeader string `json:"apiKeyHeader" yaml:"api_key_header"`
}

// Upgrade configures how device upgrade states are accepted
type Upgrade struct {
	StrictTransitions bool `json:"strictTransitions" yaml:"strict_transitions"`
	TimeoutMinutes    int  `json:"timeoutMinutes" yaml:"timeout_minutes"`
}

// Timeout returns TimeoutMinutes as a duration
func (u Upgrade) Timeout() time.Duration {
	return time.Duration(u.TimeoutMinutes) * time.Minute
}

// MQTT configures the optional change-event mirror
type MQTT struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Broker      string `json:"broker" yaml:"broker"`
	ClientID    string `json:"clientId" yaml:"client_id"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	TopicPrefix string `json:"topicPrefix" yaml:"topic_prefix"`
}

// Telemetry configures OTLP export
type Telemetry struct {
	Enabled               bool    `json:"enabled" yaml:"enabled"`
	Endpoint              string  `json:"endpoint" yaml:"endpoint"`
	Insecure              bool    `json:"insecure" yaml:"insecure"`
	Environment           string  `json:"environment" yaml:"environment"`
	SampleRatio           float64 `json:"sampleRatio" yaml:"sample_ratio"`
	ExportIntervalSeconds int     `json:"exportIntervalSeconds" yaml:"export_interval_seconds"`
}

// ExportInterval returns ExportIntervalSeconds as a duration
func (t Telemetry) ExportInterval() time.Duration {
	return time.Duration(t.ExportIntervalSeconds) * time.Second
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":5080",
		DatabasePath:  "fotastore.db",
		LogLevel:      "info",
		Security: Security{
			APIKeyHeader: "X-API-Key",
		},
		Upgrade: Upgrade{
			StrictTransitions: true,
			TimeoutMinutes:    30,
		},
		MQTT: MQTT{
			Broker:      "tcp://localhost:1883",
			ClientID:    "fotastore",
			TopicPrefix: "fota",
		},
		Telemetry: Telemetry{
			Endpoint:              "localhost:4317",
			Insecure:              true,
			Environment:           "development",
			SampleRatio:           1,
			ExportIntervalSeconds: 30,
		},
	}
}

// Load builds the configuration from defaults, then the file at path
// (CONFIG_PATH or config.json when empty; .yaml/.yml files are parsed as
// YAML), then a .env file, then environment variables
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	explicit := path != "" || os.Getenv("CONFIG_PATH") != ""
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.json"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// .env is optional
	_ = godotenv.Load()

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func applyEnv(cfg *Config) {
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.ServerAddress = addr
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		cfg.Security.APIKey = apiKey
	}
	if hash := os.Getenv("API_KEY_HASH"); hash != "" {
		cfg.Security.APIKeyHash = hash
	}

	if strict := os.Getenv("UPGRADE_STRICT_TRANSITIONS"); strict != "" {
		cfg.Upgrade.StrictTransitions = parseBool(strict)
	}
	if timeout := os.Getenv("UPGRADE_TIMEOUT_MINUTES"); timeout != "" {
		if minutes, err := strconv.Atoi(timeout); err == nil && minutes >= 0 {
			cfg.Upgrade.TimeoutMinutes = minutes
		}
	}

	if enabled := os.Getenv("MQTT_ENABLED"); enabled != "" {
		cfg.MQTT.Enabled = parseBool(enabled)
	}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		cfg.MQTT.Broker = broker
	}
	if clientID := os.Getenv("MQTT_CLIENT_ID"); clientID != "" {
		cfg.MQTT.ClientID = clientID
	}
	if username := os.Getenv("MQTT_USERNAME"); username != "" {
		cfg.MQTT.Username = username
	}
	if password := os.Getenv("MQTT_PASSWORD"); password != "" {
		cfg.MQTT.Password = password
	}

	if enabled := os.Getenv("OTEL_ENABLED"); enabled != "" {
		cfg.Telemetry.Enabled = parseBool(enabled)
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Telemetry.Endpoint = endpoint
	}
	if insecure := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); insecure != "" {
		cfg.Telemetry.Insecure = parseBool(insecure)
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Telemetry.Environment = env
	}
	if ratio := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); ratio != "" {
		if v, err := strconv.ParseFloat(ratio, 64); err == nil {
			cfg.Telemetry.SampleRatio = v
		}
	}
}

func parseBool(s string) bool {
	return s == "true" || s == "1"
}

// Validate checks settings that would otherwise fail at runtime
func (c *Config) Validate() error {
	if c.ServerAddress == "" {
		return errors.New("serverAddress cannot be empty")
	}
	if !c.UsePostgres() && c.DatabasePath == "" {
		return errors.New("databasePath or databaseUrl is required")
	}
	if c.Security.APIKeyHeader == "" {
		return errors.New("security.apiKeyHeader cannot be empty")
	}
	if c.Upgrade.TimeoutMinutes < 0 {
		return errors.New("upgrade.timeoutMinutes cannot be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sampleRatio must be between 0 and 1")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}
