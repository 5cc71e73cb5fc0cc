package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. DOTBOX_SANDBOX_REGISTRY.
const EnvPrefix = "DOTBOX"

type SandboxConfig struct {
	// Registry is the image repository, or "local" for locally built
	// sandbox:{version} images.
	Registry       string        `mapstructure:"registry"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	ReapInterval   time.Duration `mapstructure:"reap_interval"`
	ExecTimeout    time.Duration `mapstructure:"exec_timeout"`
	BuildTimeout   time.Duration `mapstructure:"build_timeout"`
	SnippetTimeout time.Duration `mapstructure:"snippet_timeout"`
}

type NuGetConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	// DBPath is the journal database. Empty disables the journal.
	DBPath string `mapstructure:"db_path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type Config struct {
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	NuGet   NuGetConfig   `mapstructure:"nuget"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sandbox.registry", "ghcr.io/domibies/dotbox-mcp/dotnet-sandbox")
	v.SetDefault("sandbox.idle_timeout", "30m")
	v.SetDefault("sandbox.reap_interval", "5m")
	v.SetDefault("sandbox.exec_timeout", "30s")
	v.SetDefault("sandbox.build_timeout", "2m")
	v.SetDefault("sandbox.snippet_timeout", "30s")
	v.SetDefault("nuget.base_url", "https://api.nuget.org/v3-flatcontainer")
	v.SetDefault("nuget.timeout", "5s")
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".dotbox", "dotbox.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Load reads dotbox.yaml from configFile, or from . and $HOME/.dotbox when
// configFile is empty. A missing default file is not an error. bind, when
// set, can attach command-line flags to keys before decoding.
func Load(configFile string, bind func(*viper.Viper) error) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("dotbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.dotbox")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if bind != nil {
		if err := bind(v); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Sandbox.Registry) == "" {
		return errors.New("sandbox.registry must not be empty")
	}
	for key, d := range map[string]time.Duration{
		"sandbox.idle_timeout":    c.Sandbox.IdleTimeout,
		"sandbox.reap_interval":   c.Sandbox.ReapInterval,
		"sandbox.exec_timeout":    c.Sandbox.ExecTimeout,
		"sandbox.build_timeout":   c.Sandbox.BuildTimeout,
		"sandbox.snippet_timeout": c.Sandbox.SnippetTimeout,
		"nuget.timeout":           c.NuGet.Timeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}
