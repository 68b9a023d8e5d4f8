package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Log         LogConfig         `yaml:"log"`
	Matchmaking MatchmakingConfig `yaml:"matchmaking"`
	Enforcement EnforcementConfig `yaml:"enforcement"`
	Notify      NotifyConfig      `yaml:"notify"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr" env:"ARENAQ_LISTEN_ADDR"`
	HTTPPort       int      `yaml:"http_port" env:"ARENAQ_HTTP_PORT"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ARENAQ_ALLOWED_ORIGINS" envSeparator:","`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path" env:"ARENAQ_DB_PATH"`
}

// AuthConfig holds token settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret" env:"ARENAQ_JWT_SECRET"`
	TokenDuration time.Duration `yaml:"token_duration" env:"ARENAQ_TOKEN_DURATION"`
}

// LogConfig selects logrus level and formatter
type LogConfig struct {
	Level  string `yaml:"level" env:"ARENAQ_LOG_LEVEL"`
	Format string `yaml:"format" env:"ARENAQ_LOG_FORMAT"`
}

// MatchmakingConfig tunes the ticket engine
type MatchmakingConfig struct {
	TicketTTL     time.Duration `yaml:"ticket_ttl" env:"ARENAQ_TICKET_TTL"`
	DefaultMode   string        `yaml:"default_mode" env:"ARENAQ_DEFAULT_MODE"`
	MatchAttempts int           `yaml:"match_attempts" env:"ARENAQ_MATCH_ATTEMPTS"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"ARENAQ_SWEEP_INTERVAL"`
	NotifyBuffer  int           `yaml:"notify_buffer" env:"ARENAQ_NOTIFY_BUFFER"`
	PartyMaxSize  int           `yaml:"party_max_size" env:"ARENAQ_PARTY_MAX_SIZE"`
}

// EnforcementConfig chooses where moderation decisions come from. With a
// redis address the moderation service's records are read; otherwise the
// static lists apply.
type EnforcementConfig struct {
	RedisAddr     string   `yaml:"redis_addr" env:"ARENAQ_REDIS_ADDR"`
	RedisPassword string   `yaml:"redis_password" env:"ARENAQ_REDIS_PASSWORD"`
	RedisDB       int      `yaml:"redis_db" env:"ARENAQ_REDIS_DB"`
	KeyPrefix     string   `yaml:"key_prefix" env:"ARENAQ_MODERATION_PREFIX"`
	Banned        []string `yaml:"banned"`
	TierLocked    []string `yaml:"tier_locked"`
	Practice      []string `yaml:"practice"`
	Shadow        []string `yaml:"shadow"`
}

// NotifyConfig configures event fan-out beyond the websocket hub
type NotifyConfig struct {
	NATSURL       string   `yaml:"nats_url" env:"ARENAQ_NATS_URL"`
	EmbeddedNATS  bool     `yaml:"embedded_nats" env:"ARENAQ_EMBEDDED_NATS"`
	EmbeddedHost  string   `yaml:"embedded_host" env:"ARENAQ_EMBEDDED_NATS_HOST"`
	EmbeddedPort  int      `yaml:"embedded_port" env:"ARENAQ_EMBEDDED_NATS_PORT"`
	SubjectPrefix string   `yaml:"subject_prefix" env:"ARENAQ_SUBJECT_PREFIX"`
	KafkaBrokers  []string `yaml:"kafka_brokers" env:"ARENAQ_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic    string   `yaml:"kafka_topic" env:"ARENAQ_KAFKA_TOPIC"`
}

// Load reads configuration from a YAML file, then applies environment
// overrides. A missing file is fine when the environment covers the rest.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// env only fills fields whose variable is set, section by section
	for _, section := range []interface{}{
		&cfg.Server, &cfg.Database, &cfg.Auth, &cfg.Log,
		&cfg.Matchmaking, &cfg.Enforcement, &cfg.Notify,
	} {
		if err := env.Parse(section); err != nil {
			return nil, fmt.Errorf("parsing environment: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/arenaq/arenaq.db"
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	m := &cfg.Matchmaking
	if m.TicketTTL == 0 {
		m.TicketTTL = 2 * time.Minute
	}
	if m.DefaultMode == "" {
		m.DefaultMode = "duel"
	}
	if m.MatchAttempts == 0 {
		m.MatchAttempts = 2
	}
	if m.SweepInterval == 0 {
		m.SweepInterval = 30 * time.Second
	}
	if m.NotifyBuffer == 0 {
		m.NotifyBuffer = 256
	}
	if m.PartyMaxSize == 0 {
		m.PartyMaxSize = 5
	}

	if cfg.Enforcement.KeyPrefix == "" {
		cfg.Enforcement.KeyPrefix = "moderation"
	}
	if cfg.Notify.SubjectPrefix == "" {
		cfg.Notify.SubjectPrefix = "arenaq"
	}
	if cfg.Notify.KafkaTopic == "" {
		cfg.Notify.KafkaTopic = "arenaq.matches"
	}
	if cfg.Notify.EmbeddedHost == "" {
		cfg.Notify.EmbeddedHost = "127.0.0.1"
	}
	if cfg.Notify.EmbeddedPort == 0 {
		cfg.Notify.EmbeddedPort = 4222
	}
}

// Validate rejects settings the server cannot start with
func (cfg *Config) Validate() error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if cfg.Matchmaking.TicketTTL < 0 || cfg.Matchmaking.SweepInterval < 0 {
		return errors.New("matchmaking durations must be positive")
	}
	if cfg.Matchmaking.MatchAttempts < 0 || cfg.Matchmaking.PartyMaxSize < 0 {
		return errors.New("matchmaking counts must be positive")
	}
	if cfg.Matchmaking.PartyMaxSize == 1 {
		return errors.New("matchmaking.party_max_size must allow at least two players")
	}
	return nil
}
