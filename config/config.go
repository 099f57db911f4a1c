/*
Package config loads the server configuration.

SOURCES (later wins):
  1. Default()
  2. config file: TOML (.toml) or YAML (.yaml, .yml), chosen by extension
  3. .env file in the working directory (optional, loaded into the process env)
  4. HR_* environment variables

EXAMPLE (hr.toml):
  [server]
  port = 8080

  [database]
  type = "sqlite"
  path = "hr.db"

  [storage]
  type = "filesystem"
  root = "./uploads"

  [probation]
  enabled   = true
  interval  = "1h"
  companies = ["acme"]
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Database  DatabaseConfig  `toml:"database" yaml:"database"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	Auth      AuthConfig      `toml:"auth" yaml:"auth"`
	Probation ProbationConfig `toml:"probation" yaml:"probation"`
	Notify    NotifyConfig    `toml:"notify" yaml:"notify"`
}

type ServerConfig struct {
	Port           int      `toml:"port" yaml:"port"`
	AllowedOrigins []string `toml:"allowed_origins" yaml:"allowed_origins"`
}

// DatabaseConfig is a tagged union on Type.
type DatabaseConfig struct {
	Type string `toml:"type" yaml:"type"` // "sqlite", "postgres" or "memory"
	Path string `toml:"path" yaml:"path"` // sqlite file, ":memory:" allowed
	DSN  string `toml:"dsn" yaml:"dsn"`   // postgres
	// ORM selects the gorm-backed store for sqlite too.
	ORM bool `toml:"orm" yaml:"orm"`
}

// StorageConfig is a tagged union on Type.
type StorageConfig struct {
	Type string `toml:"type" yaml:"type"` // "memory", "filesystem" or "s3"
	Root string `toml:"root" yaml:"root"`

	Bucket          string `toml:"bucket" yaml:"bucket"`
	Prefix          string `toml:"prefix" yaml:"prefix"`
	Region          string `toml:"region" yaml:"region"`
	Endpoint        string `toml:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key" yaml:"secret_access_key"`

	// EncryptKey is an age X25519 identity; when set, files are encrypted at rest.
	EncryptKey string `toml:"encrypt_key" yaml:"encrypt_key"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret" yaml:"jwt_secret"`
}

type ProbationConfig struct {
	Enabled   bool     `toml:"enabled" yaml:"enabled"`
	Interval  Duration `toml:"interval" yaml:"interval"`
	Companies []string `toml:"companies" yaml:"companies"`
}

type NotifyConfig struct {
	Language       string   `toml:"language" yaml:"language"`
	KafkaBrokers   []string `toml:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic     string   `toml:"kafka_topic" yaml:"kafka_topic"`
	TelegramToken  string   `toml:"telegram_token" yaml:"telegram_token"`
	TelegramChatID int64    `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
}

// Duration reads "1h30m" style values from TOML, YAML and env.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
		Database:  DatabaseConfig{Type: "sqlite", Path: "hr.db"},
		Storage:   StorageConfig{Type: "filesystem", Root: "uploads"},
		Probation: ProbationConfig{Interval: Duration{time.Hour}},
		Notify:    NotifyConfig{Language: "en", KafkaTopic: "hr-notifications"},
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads path (may be empty), then .env, then HR_* variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		if err := Decode(f, formatOf(path), cfg); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

// Decode overlays the document in r onto cfg.
func Decode(r io.Reader, format string, cfg *Config) error {
	switch format {
	case "yaml":
		if err := yaml.NewDecoder(r).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to decode yaml config: %w", err)
		}
	case "toml":
		if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
			return fmt.Errorf("failed to decode toml config: %w", err)
		}
	default:
		return fmt.Errorf("unknown config format: %s", format)
	}
	return nil
}

// ApplyEnv overrides cfg from HR_* variables found through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(name); ok {
			*dst = splitList(v)
		}
	}

	str("HR_DATABASE_TYPE", &cfg.Database.Type)
	str("HR_DATABASE_PATH", &cfg.Database.Path)
	str("HR_DATABASE_DSN", &cfg.Database.DSN)
	str("HR_STORAGE_TYPE", &cfg.Storage.Type)
	str("HR_STORAGE_ROOT", &cfg.Storage.Root)
	str("HR_STORAGE_BUCKET", &cfg.Storage.Bucket)
	str("HR_STORAGE_REGION", &cfg.Storage.Region)
	str("HR_STORAGE_ENDPOINT", &cfg.Storage.Endpoint)
	str("HR_STORAGE_ACCESS_KEY_ID", &cfg.Storage.AccessKeyID)
	str("HR_STORAGE_SECRET_ACCESS_KEY", &cfg.Storage.SecretAccessKey)
	str("HR_STORAGE_ENCRYPT_KEY", &cfg.Storage.EncryptKey)
	str("HR_JWT_SECRET", &cfg.Auth.JWTSecret)
	str("HR_NOTIFY_LANGUAGE", &cfg.Notify.Language)
	str("HR_KAFKA_TOPIC", &cfg.Notify.KafkaTopic)
	str("HR_TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	list("HR_ALLOWED_ORIGINS", &cfg.Server.AllowedOrigins)
	list("HR_KAFKA_BROKERS", &cfg.Notify.KafkaBrokers)
	list("HR_PROBATION_COMPANIES", &cfg.Probation.Companies)

	if v, ok := lookup("HR_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HR_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("HR_DATABASE_ORM"); ok {
		orm, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid HR_DATABASE_ORM %q: %w", v, err)
		}
		cfg.Database.ORM = orm
	}
	if v, ok := lookup("HR_PROBATION_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid HR_PROBATION_ENABLED %q: %w", v, err)
		}
		cfg.Probation.Enabled = enabled
	}
	if v, ok := lookup("HR_PROBATION_INTERVAL"); ok {
		if err := cfg.Probation.Interval.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("invalid HR_PROBATION_INTERVAL: %w", err)
		}
	}
	if v, ok := lookup("HR_TELEGRAM_CHAT_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid HR_TELEGRAM_CHAT_ID %q: %w", v, err)
		}
		cfg.Notify.TelegramChatID = id
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// =============================================================================
// VALIDATION
// =============================================================================

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("sqlite database requires database.path")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("postgres database requires database.dsn")
		}
	default:
		return fmt.Errorf("unknown database type: %s", c.Database.Type)
	}

	switch c.Storage.Type {
	case "memory":
	case "filesystem":
		if c.Storage.Root == "" {
			return fmt.Errorf("filesystem storage requires storage.root")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("s3 storage requires storage.bucket")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	if c.Probation.Enabled {
		if c.Probation.Interval.Duration <= 0 {
			return fmt.Errorf("probation.interval must be positive")
		}
		if len(c.Probation.Companies) == 0 {
			return fmt.Errorf("probation scanner enabled without companies")
		}
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		return fmt.Errorf("notify.telegram_token set without notify.telegram_chat_id")
	}
	return nil
}
