// Package config handles configuration loading and management for hermes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	defaultConfig "github.com/inercia/hermes/config"
	"github.com/inercia/hermes/internal/appdir"
	"github.com/inercia/hermes/internal/kernel"
	"github.com/inercia/hermes/internal/logging"
)

// Environment variables consulted by ApplyEnv.
const (
	TokenEnv        = "HERMES_TOKEN"
	JupyterTokenEnv = "JUPYTER_TOKEN"
	ServerEnv       = "HERMES_SERVER"
)

// ServerConfig locates the Jupyter server.
type ServerConfig struct {
	// URL is the HTTP base URL of the server.
	URL string `yaml:"url"`
	// WSURL overrides the WebSocket base derived from URL.
	WSURL string `yaml:"ws_url"`
	Token string `yaml:"token"`
}

// KernelConfig selects the kernel and how requests reach it.
type KernelConfig struct {
	// Name is the kernel spec to attach to or start.
	Name string `yaml:"name"`
	// ID, if set, attaches to that kernel instead of resolving by name.
	ID string `yaml:"id"`
	// ReplyTimeout bounds every exchange. Zero waits forever.
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
	// Channel is "per_call" or "persistent".
	Channel string `yaml:"channel"`
}

// OutputConfig controls rendering.
type OutputConfig struct {
	MaxShownInputLength int    `yaml:"max_shown_input_length"`
	ArtifactsDir        string `yaml:"artifacts_dir"`
}

// LoggingConfig controls logging.
type LoggingConfig struct {
	Level      string   `yaml:"level"`
	File       string   `yaml:"file"`
	JSON       bool     `yaml:"json"`
	Components []string `yaml:"components"`
}

// Config represents the complete hermes configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Kernel  KernelConfig  `yaml:"kernel"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfigPath returns the configuration file path for the current
// platform. See appdir.RCPath.
func DefaultConfigPath() string {
	p, err := appdir.RCPath()
	if err != nil {
		return appdir.RCFileName
	}
	return p
}

// Default returns the embedded default configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfig.DefaultConfigYAML, &cfg); err != nil {
		panic(fmt.Sprintf("embedded default configuration: %v", err))
	}
	return &cfg
}

// Load reads and parses the configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// LoadOrDefault loads path, falling back to the embedded default when the
// file does not exist. found reports whether the file was read.
func LoadOrDefault(path string) (cfg *Config, found bool, err error) {
	cfg, err = Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// Parse parses YAML configuration data. Fields missing from data keep their
// default values. The result is validated.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.url: %q is not an http(s) URL", c.Server.URL)
	}
	if c.Server.WSURL != "" {
		u, err := url.Parse(c.Server.WSURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("server.ws_url: %q is not a ws(s) URL", c.Server.WSURL)
		}
	}
	if c.Kernel.ReplyTimeout < 0 {
		return fmt.Errorf("kernel.reply_timeout: must not be negative")
	}
	if _, err := kernel.ParseChannelMode(c.Kernel.Channel); err != nil {
		return fmt.Errorf("kernel.channel: %w", err)
	}
	if c.Output.MaxShownInputLength < 0 {
		return fmt.Errorf("output.max_shown_input_length: must not be negative")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// ChannelMode returns the parsed kernel.channel setting.
func (c *Config) ChannelMode() kernel.ChannelMode {
	m, _ := kernel.ParseChannelMode(c.Kernel.Channel)
	return m
}

// ApplyEnv overrides settings from the environment: HERMES_SERVER for the
// server URL and HERMES_TOKEN, then JUPYTER_TOKEN, for the token.
func (c *Config) ApplyEnv() {
	if s := os.Getenv(ServerEnv); s != "" {
		c.Server.URL = s
	}
	for _, env := range []string{TokenEnv, JupyterTokenEnv} {
		if t := os.Getenv(env); t != "" {
			c.Server.Token = t
			return
		}
	}
}
