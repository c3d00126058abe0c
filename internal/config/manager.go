package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/portalcast/internal/logger"
	"gopkg.in/yaml.v3"
)

// ErrUnknownKey is returned by GetKey and Set for keys that do not exist.
var ErrUnknownKey = errors.New("unknown config key")

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/portalcast/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "portalcast", "config.yaml"), nil
}

// NewManager creates a new configuration manager. An empty configFile
// selects DefaultPath. A missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{configPath: actualConfigPath}

	cfg, err := m.load()
	switch {
	case err == nil:
		m.config = cfg
	case os.IsNotExist(err):
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("capture_backend", m.config.Capture.Backend).
		Bool("api_enabled", m.config.API.Enabled).
		Msg("Config loaded")

	return m, nil
}

// load reads and validates the configuration on disk
func (m *Manager) load() (*Config, error) {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.fillDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Reload re-reads the file. On error the current configuration is kept.
func (m *Manager) Reload() (*Config, error) {
	cfg, err := m.load()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return cfg.clone(), nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	return m.config.clone()
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	cfg := m.Get()

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg.clone()
	m.mu.Unlock()
	return m.Save()
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

type field struct {
	get func(*Config) string
	set func(*Config, string) error
}

var fields = map[string]field{
	"log_level": {
		get: func(c *Config) string { return c.LogLevel },
		set: func(c *Config, v string) error { c.LogLevel = v; return nil },
	},
	"log_pretty": {
		get: func(c *Config) string { return strconv.FormatBool(c.LogPretty) },
		set: func(c *Config, v string) (err error) { c.LogPretty, err = strconv.ParseBool(v); return },
	},
	"bus_name": {
		get: func(c *Config) string { return c.BusName },
		set: func(c *Config, v string) error { c.BusName = v; return nil },
	},
	"object_path": {
		get: func(c *Config) string { return c.ObjectPath },
		set: func(c *Config, v string) error { c.ObjectPath = v; return nil },
	},
	"capture.backend": {
		get: func(c *Config) string { return c.Capture.Backend },
		set: func(c *Config, v string) error { c.Capture.Backend = v; return nil },
	},
	"capture.framerate": {
		get: func(c *Config) string { return strconv.Itoa(c.Capture.Framerate) },
		set: func(c *Config, v string) (err error) { c.Capture.Framerate, err = strconv.Atoi(v); return },
	},
	"capture.node_timeout": {
		get: func(c *Config) string { return c.Capture.NodeTimeout.String() },
		set: func(c *Config, v string) (err error) { c.Capture.NodeTimeout, err = time.ParseDuration(v); return },
	},
	"capture.gst_launch": {
		get: func(c *Config) string { return c.Capture.GstLaunch },
		set: func(c *Config, v string) error { c.Capture.GstLaunch = v; return nil },
	},
	"capture.pw_dump": {
		get: func(c *Config) string { return c.Capture.PwDump },
		set: func(c *Config, v string) error { c.Capture.PwDump = v; return nil },
	},
	"selector.command": {
		get: func(c *Config) string {
			out, _ := yaml.Marshal(&yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle, Content: scalars(c.Selector.Command)})
			return strings.TrimSpace(string(out))
		},
		// Takes a YAML flow sequence: [slurp, -o, -f, "%x %y %w %h"].
		// [] picks slurp or slop from the session type.
		set: func(c *Config, v string) error {
			var argv []string
			if err := yaml.Unmarshal([]byte(v), &argv); err != nil {
				return fmt.Errorf("expected a list such as [slurp, -o]: %w", err)
			}
			c.Selector.Command = argv
			return nil
		},
	},
	"api.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.API.Enabled) },
		set: func(c *Config, v string) (err error) { c.API.Enabled, err = strconv.ParseBool(v); return },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
}

func scalars(values []string) []*yaml.Node {
	nodes := make([]*yaml.Node, 0, len(values))
	for _, v := range values {
		nodes = append(nodes, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
	}
	return nodes
}

// Keys lists every settable key in sorted order
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetKey returns the string form of a single key
func (m *Manager) GetKey(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return f.get(m.Get()), nil
}

// Set parses value into key, validates the result and saves it.
func (m *Manager) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	m.mu.Lock()
	next := Defaults()
	if m.config != nil {
		next = m.config.clone()
	}
	if err := f.set(next, value); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := Validate(next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = next
	m.mu.Unlock()

	return m.Save()
}

// Validate rejects configurations the backend cannot run with
func Validate(c *Config) error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch c.Capture.Backend {
	case "subprocess", "gstreamer":
	default:
		return fmt.Errorf("capture.backend must be subprocess or gstreamer, got %q", c.Capture.Backend)
	}
	if c.Capture.Framerate <= 0 {
		return fmt.Errorf("capture.framerate must be positive, got %d", c.Capture.Framerate)
	}
	if c.Capture.NodeTimeout <= 0 {
		return fmt.Errorf("capture.node_timeout must be positive, got %s", c.Capture.NodeTimeout)
	}
	if len(c.Selector.Command) > 0 && c.Selector.Command[0] == "" {
		return errors.New("selector.command must name a program")
	}
	if !strings.HasPrefix(c.ObjectPath, "/") {
		return fmt.Errorf("object_path must be absolute, got %q", c.ObjectPath)
	}
	if c.BusName == "" {
		return errors.New("bus_name must not be empty")
	}
	return nil
}
