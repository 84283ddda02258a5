package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces environment overrides, e.g. VKSAVER_SERVER_PORT.
const envPrefix = "VKSAVER_"

// DefaultConfigPaths lists where the config file is searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/vksaver/config.yaml",
}

// Config is the whole process configuration: loaded once at startup from
// defaults, an optional YAML file and environment overrides, then immutable.
type Config struct {
	Server      ServerConfig         `koanf:"server"`
	User        UserConfig           `koanf:"user" validate:"required"`
	Plugin      PluginConfig         `koanf:"plugin"`
	Communities map[string]Community `koanf:"communities" validate:"required,dive"`
}

// ServerConfig holds the webhook HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// UserConfig identifies the owner on whose behalf posts are scheduled.
type UserConfig struct {
	ID    int64  `koanf:"id" validate:"required"`
	Token string `koanf:"token" validate:"required"`
}

// PluginConfig holds the shared secret for browser-extension events.
type PluginConfig struct {
	Secret string `koanf:"secret"`
}

// Community is the per-community configuration, keyed by community id in the
// communities map. Immutable for the duration of one event.
type Community struct {
	Name             string `koanf:"name"`
	Secret           string `koanf:"secret" validate:"required"`
	ConfirmationCode string `koanf:"confirmation_code"`
	AccessToken      string `koanf:"access_token" validate:"required"`
	PostInterval     int    `koanf:"post_interval_hours" validate:"gte=0"`
	LikedOnly        bool   `koanf:"liked_only"`
	Handler          string `koanf:"handler"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads configuration from path (or the first existing default path when
// path is empty), applies VKSAVER_* environment overrides and validates the
// result. A non-empty userToken takes precedence over both file and
// environment, so an interactively entered token never has to pass through
// the process environment.
func Load(path, userToken string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if userToken != "" {
		if err := k.Set("user.token", userToken); err != nil {
			return nil, fmt.Errorf("set user token: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Community looks up a community's configuration by its numeric id.
func (c *Config) Community(id int64) (Community, bool) {
	community, ok := c.Communities[strconv.FormatInt(id, 10)]
	return community, ok
}

func findConfigFile() string {
	for _, candidate := range DefaultConfigPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// envTransform maps VKSAVER_SERVER_PORT to server.port. Keys that themselves
// contain underscores (post_interval_hours) are not addressable this way;
// those belong in the config file.
func envTransform(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
}
