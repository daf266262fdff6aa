// Package config loads runtime configuration with the precedence
// runtime overrides > environment > config file > defaults.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "FIELDTALLY"

// Config is the full runtime configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Authority   AuthorityConfig   `mapstructure:"authority"`
	Attachments AttachmentsConfig `mapstructure:"attachments"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Client      ClientConfig      `mapstructure:"client"`
}

// ServerConfig configures the serve listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

// StoreConfig locates the technician's local result store.
type StoreConfig struct {
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// AuthorityConfig covers both sides of reconciliation: the client's
// base URL and the server's database.
type AuthorityConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	DSN             string        `mapstructure:"dsn"`
	DuplicateWindow time.Duration `mapstructure:"duplicate_window"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
}

// AttachmentsConfig selects the failure-photo backend.
type AttachmentsConfig struct {
	Backend string `mapstructure:"backend"` // "file" or "s3"
	Dir     string `mapstructure:"dir"`

	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// LoggingConfig tunes process logging.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// ClientConfig tunes technician-side behavior.
type ClientConfig struct {
	// DedupeWindow is the double-tap suppression window on result
	// append.
	DedupeWindow time.Duration `mapstructure:"dedupe_window"`
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit_rps", 50.0)
	v.SetDefault("server.rate_limit_burst", 100)

	v.SetDefault("store.path", defaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("authority.base_url", "http://localhost:8080")
	v.SetDefault("authority.dsn", "")
	v.SetDefault("authority.duplicate_window", "10s")
	v.SetDefault("authority.max_open_conns", 25)

	v.SetDefault("attachments.backend", "file")
	v.SetDefault("attachments.dir", defaultAttachmentsDir())
	v.SetDefault("attachments.force_path_style", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("client.dedupe_window", "2s")
}

// Flat env aliases in addition to the FIELDTALLY_SECTION_KEY form.
var envAliases = map[string]string{
	"server.host":                "FIELDTALLY_HOST",
	"server.port":                "FIELDTALLY_PORT",
	"server.read_timeout":        "FIELDTALLY_READ_TIMEOUT",
	"server.write_timeout":       "FIELDTALLY_WRITE_TIMEOUT",
	"server.shutdown_timeout":    "FIELDTALLY_SHUTDOWN_TIMEOUT",
	"store.path":                 "FIELDTALLY_STORE_PATH",
	"store.url":                  "FIELDTALLY_STORE_URL",
	"store.auth_token":           "FIELDTALLY_STORE_AUTH_TOKEN",
	"authority.base_url":         "FIELDTALLY_AUTHORITY_URL",
	"authority.dsn":              "FIELDTALLY_AUTHORITY_DSN",
	"authority.duplicate_window": "FIELDTALLY_DUPLICATE_WINDOW",
	"logging.level":              "FIELDTALLY_LOG_LEVEL",
	"client.dedupe_window":       "FIELDTALLY_DEDUPE_WINDOW",
}

// Load builds the configuration. Later overrides win over earlier
// ones; any override wins over environment and defaults. The loaded
// config becomes the one GetConfig returns.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	_ = ctx

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envVar := range envAliases {
		if err := v.BindEnv(key, envVar); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", envVar, err)
		}
	}

	v.SetConfigName("fieldtally")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".fieldtally"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for _, o := range overrides {
		mergeOverrides(v, "", o)
	}

	cfg := &Config{}
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = cfg
	configMu.Unlock()
	return cfg, nil
}

// GetConfig returns the most recently loaded config, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// Validate rejects configurations no command could run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server port %d out of range", c.Server.Port)
	}
	if c.Authority.DuplicateWindow < 0 {
		return fmt.Errorf("config: authority duplicate window must not be negative")
	}
	if c.Client.DedupeWindow < 0 {
		return fmt.Errorf("config: client dedupe window must not be negative")
	}
	switch c.Attachments.Backend {
	case "file", "s3":
	default:
		return fmt.Errorf("config: unknown attachments backend %q", c.Attachments.Backend)
	}
	return nil
}

func mergeOverrides(v *viper.Viper, prefix string, values map[string]any) {
	for key, value := range values {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			mergeOverrides(v, full, nested)
			continue
		}
		v.Set(full, value)
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fieldtally.db"
	}
	return filepath.Join(home, ".fieldtally", "fieldtally.db")
}

func defaultAttachmentsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "attachments"
	}
	return filepath.Join(home, ".fieldtally", "attachments")
}
