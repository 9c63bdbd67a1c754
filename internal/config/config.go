// Package config handles the XDG configuration directory, file paths and
// the optional config.yaml settings file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// AppName is the application directory name.
	AppName = "tasksync"

	// ConfigFile is the settings filename.
	ConfigFile = "config.yaml"

	// SessionFile stores the HTTP backend session.
	SessionFile = "session.json"

	// OAuthClientFile is the OAuth client credentials filename (googletasks backend).
	OAuthClientFile = "oauth_client.json"

	// TokenFile is the stored OAuth token filename (googletasks backend).
	TokenFile = "token.json"

	// EnvPrefix prefixes environment overrides, e.g. TASKSYNC_BASE_URL.
	EnvPrefix = "TASKSYNC"
)

// Backend names.
const (
	BackendHTTP        = "http"
	BackendGoogleTasks = "googletasks"
)

// Defaults.
const (
	DefaultBaseURL  = "http://localhost:8000"
	DefaultTimeout  = 30 * time.Second
	DefaultTaskList = "@default"
)

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	// JSON switches command output to JSON.
	JSON bool

	// Backend selects the remote store implementation.
	Backend string

	// BaseURL is the origin of the HTTP task store.
	BaseURL string

	// Timeout bounds each remote call. Zero disables it.
	Timeout time.Duration

	// TaskList is the Google Tasks list acting as the actor.
	TaskList string
}

// New creates a new Config with the default or specified config directory
// and loads config.yaml from it when present.
// If configDir is empty, uses XDG_CONFIG_HOME/tasksync or $HOME/.config/tasksync.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	cfg := &Config{Dir: dir}
	if err := cfg.load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) load() error {
	v := viper.New()
	v.SetDefault("backend", BackendHTTP)
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("task_list", DefaultTaskList)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(c.Path())
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("invalid %s: %w", c.Path(), err)
	}

	c.Backend = strings.ToLower(strings.TrimSpace(v.GetString("backend")))
	c.BaseURL = strings.TrimSpace(v.GetString("base_url"))
	c.Timeout = v.GetDuration("timeout")
	c.TaskList = strings.TrimSpace(v.GetString("task_list"))

	switch c.Backend {
	case BackendHTTP, BackendGoogleTasks:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendHTTP, BackendGoogleTasks)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.TaskList == "" {
		c.TaskList = DefaultTaskList
	}
	return nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// Path returns the path to config.yaml.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, ConfigFile)
}

// SessionPath returns the path to the stored HTTP session.
func (c *Config) SessionPath() string {
	return filepath.Join(c.Dir, SessionFile)
}

// OAuthClientPath returns the path to the OAuth client credentials file.
func (c *Config) OAuthClientPath() string {
	return filepath.Join(c.Dir, OAuthClientFile)
}

// TokenPath returns the path to the stored OAuth token file.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Dir, TokenFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasOAuthClient checks if the OAuth client credentials file exists.
func (c *Config) HasOAuthClient() bool {
	_, err := os.Stat(c.OAuthClientPath())
	return err == nil
}

// HasToken checks if the token file exists.
func (c *Config) HasToken() bool {
	_, err := os.Stat(c.TokenPath())
	return err == nil
}

// RemoveToken deletes the token file.
func (c *Config) RemoveToken() error {
	return os.Remove(c.TokenPath())
}

// Logger returns the debug logger: w when Debug is set, a discarding logger otherwise.
func (c *Config) Logger(w io.Writer) *log.Logger {
	if !c.Debug || w == nil {
		return log.New(io.Discard, "", 0)
	}
	return log.New(w, AppName+": ", log.Ltime|log.Lmicroseconds)
}
