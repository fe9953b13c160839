package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the fusion engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Fusion   FusionConfig   `yaml:"fusion"`
	Rules    RulesConfig    `yaml:"rules"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// DatabaseConfig configures the PostgreSQL store.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslMode"`
	MaxConns int    `yaml:"maxConns"`
	MaxIdle  int    `yaml:"maxIdle"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig controls the cache used for analyzer responses and the latest
// tactical picture. Disabled by default; the engine runs fine without it.
type RedisConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	AnalysisTTL time.Duration `yaml:"analysisTTL"`
	PictureTTL  time.Duration `yaml:"pictureTTL"`
}

// MQTTConfig controls the optional field-sensor position feed.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientID"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// AnalyzerConfig configures access to the generative AI analysis backend.
type AnalyzerConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	ImagePath string        `yaml:"imagePath"`
	TextPath  string        `yaml:"textPath"`
	Timeout   time.Duration `yaml:"timeout"`
}

// FusionConfig carries the correlation defaults used when a request does not
// override them.
type FusionConfig struct {
	CorrelationRadiusKm float64 `yaml:"correlationRadiusKm"`
	TimeWindowHours     float64 `yaml:"timeWindowHours"`
	ProximityThresholdM float64 `yaml:"proximityThresholdMeters"`
	HistoricalDays      int     `yaml:"historicalDays"`
	HorizonHours        int     `yaml:"horizonHours"`
}

// RulesConfig controls rule-pack loading for the recommender.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment
// overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("AEGIS_FUSION_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "aegis",
			Database: "aegis_fusion",
			SSLMode:  "disable",
			MaxConns: 10,
			MaxIdle:  5,
		},
		Redis: RedisConfig{
			Enabled:     false,
			AnalysisTTL: 5 * time.Minute,
			PictureTTL:  30 * time.Second,
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			ClientID: "aegis-fusion",
			Topic:    "tracking/+/position",
			QoS:      1,
		},
		Analyzer: AnalyzerConfig{
			ImagePath: "/api/v1/analyze/image",
			TextPath:  "/api/v1/analyze/text",
			Timeout:   30 * time.Second,
		},
		Fusion: FusionConfig{
			CorrelationRadiusKm: 0.5,
			TimeWindowHours:     1.0,
			ProximityThresholdM: 1000,
			HistoricalDays:      7,
			HorizonHours:        24,
		},
		Rules:   RulesConfig{Path: "configs/rules/default.yaml"},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AEGIS_FUSION_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("AEGIS_FUSION_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("AEGIS_FUSION_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("AEGIS_FUSION_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("AEGIS_FUSION_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("AEGIS_FUSION_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("AEGIS_FUSION_DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("AEGIS_FUSION_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("AEGIS_FUSION_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AEGIS_FUSION_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = isTruthy(v)
	}
	if v := os.Getenv("AEGIS_FUSION_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AEGIS_FUSION_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("AEGIS_FUSION_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = isTruthy(v)
	}
	if v := os.Getenv("AEGIS_FUSION_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("AEGIS_FUSION_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.ClientID = v
	}
	if v := os.Getenv("AEGIS_FUSION_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("AEGIS_FUSION_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("AEGIS_FUSION_MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}
	if v := os.Getenv("AEGIS_FUSION_ANALYZER_URL"); v != "" {
		cfg.Analyzer.BaseURL = v
	}
	if v := os.Getenv("AEGIS_FUSION_ANALYZER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analyzer.Timeout = d
		}
	}
	if v := os.Getenv("AEGIS_FUSION_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("AEGIS_FUSION_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AEGIS_FUSION_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

func isTruthy(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
