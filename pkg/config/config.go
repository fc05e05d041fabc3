package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	envConfigPath  = "HOSTBRIDGE_CONFIG"
	envContentRoot = "HOSTBRIDGE_CONTENT_ROOT"
	envHostPage    = "HOSTBRIDGE_HOST_PAGE"
	envDevPort     = "HOSTBRIDGE_DEV_PORT"
)

const (
	DefaultScheme        = "app"
	DefaultHost          = "localhost"
	DefaultContentRoot   = "wwwroot"
	DefaultHostPage      = "index.html"
	DefaultRootComponent = "App"
	DefaultMountSelector = "#app"
	DefaultDevHost       = "127.0.0.1"
	DefaultDevPort       = 18791
	DefaultDebounceMS    = 150
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	App     AppConfig     `json:"app"`
	DevHost DevHostConfig `json:"dev_host"`
	Watch   WatchConfig   `json:"watch"`
	Logging LoggingConfig `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`

	// Components maps a component name such as "devhost.server" to a level
	// that replaces Level for that component's logger.
	Components map[string]string `json:"components,omitempty"`
}

// AppConfig describes the hosted application: where its assets live and how
// the virtual scheme exposes them.
type AppConfig struct {
	Scheme        string `json:"scheme"`
	Host          string `json:"host"`
	ContentRoot   string `json:"content_root"`
	HostPage      string `json:"host_page"`
	RootComponent string `json:"root_component"`
	MountSelector string `json:"mount_selector"`
}

// DevHostConfig configures the loopback engine's HTTP bind settings.
type DevHostConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// WatchConfig controls live reload when files under the content root change.
type WatchConfig struct {
	Enabled        bool `json:"enabled"`
	DebounceMillis int  `json:"debounce_ms"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// BaseURI returns the origin the hosted application is served from, e.g. app://localhost/.
func (a AppConfig) BaseURI() string {
	return a.Scheme + "://" + a.Host + "/"
}

// LoadConfig resolves config.json, unmarshals it, applies defaults and environment overrides.
//
// A missing config file is not an error unless HOSTBRIDGE_CONFIG names one.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the bridge cannot start with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}

	scheme := c.App.Scheme
	if !validScheme(scheme) {
		return fmt.Errorf("app.scheme %q is not a valid URI scheme", scheme)
	}
	switch scheme {
	case "http", "https", "file", "data", "about", "blob", "javascript":
		return fmt.Errorf("app.scheme %q is reserved by the browser engine", scheme)
	}

	if strings.TrimSpace(c.App.Host) == "" {
		return errors.New("app.host is required")
	}
	if strings.TrimSpace(c.App.ContentRoot) == "" {
		return errors.New("app.content_root is required")
	}

	hostPage := strings.TrimSpace(c.App.HostPage)
	if hostPage == "" {
		return errors.New("app.host_page is required")
	}
	if strings.HasPrefix(hostPage, "/") || filepath.IsAbs(hostPage) {
		return fmt.Errorf("app.host_page %q must be relative to the content root", hostPage)
	}

	if strings.TrimSpace(c.App.MountSelector) == "" {
		return errors.New("app.mount_selector is required")
	}

	if c.DevHost.Port < 0 || c.DevHost.Port > 65535 {
		return fmt.Errorf("dev_host.port %d is out of range", c.DevHost.Port)
	}

	return nil
}

func applyDefaults(cfg *Config) {
	cfg.App.Scheme = strings.ToLower(strings.TrimSpace(cfg.App.Scheme))
	if cfg.App.Scheme == "" {
		cfg.App.Scheme = DefaultScheme
	}
	if strings.TrimSpace(cfg.App.Host) == "" {
		cfg.App.Host = DefaultHost
	}
	if strings.TrimSpace(cfg.App.ContentRoot) == "" {
		cfg.App.ContentRoot = DefaultContentRoot
	}
	if strings.TrimSpace(cfg.App.HostPage) == "" {
		cfg.App.HostPage = DefaultHostPage
	}
	if strings.TrimSpace(cfg.App.RootComponent) == "" {
		cfg.App.RootComponent = DefaultRootComponent
	}
	if strings.TrimSpace(cfg.App.MountSelector) == "" {
		cfg.App.MountSelector = DefaultMountSelector
	}
	if strings.TrimSpace(cfg.DevHost.Host) == "" {
		cfg.DevHost.Host = DefaultDevHost
	}
	if cfg.DevHost.Port == 0 {
		cfg.DevHost.Port = DefaultDevPort
	}
	if cfg.Watch.DebounceMillis <= 0 {
		cfg.Watch.DebounceMillis = DefaultDebounceMS
	}
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if root := strings.TrimSpace(os.Getenv(envContentRoot)); root != "" {
		cfg.App.ContentRoot = root
	}

	if page := strings.TrimSpace(os.Getenv(envHostPage)); page != "" {
		cfg.App.HostPage = page
	}

	if rawPort := strings.TrimSpace(os.Getenv(envDevPort)); rawPort != "" {
		port, err := strconv.Atoi(rawPort)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", envDevPort, err)
		}
		cfg.DevHost.Port = port
	}

	return nil
}

// validScheme follows RFC 3986: ALPHA *( ALPHA / DIGIT / "+" / "-" / "." ).
func validScheme(scheme string) bool {
	if scheme == "" {
		return false
	}
	for i, r := range scheme {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}

	return true
}

// findConfigPath resolves the active config file location.
//
// Precedence is HOSTBRIDGE_CONFIG first, then cwd-local fallback paths. An
// empty path with a nil error means no config file exists.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
