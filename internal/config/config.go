package config

import (
	"time"
)

// Config is the on-disk configuration of the backend.
type Config struct {
	LogLevel   string         `json:"log_level" yaml:"log_level"`
	LogPretty  bool           `json:"log_pretty" yaml:"log_pretty"`
	BusName    string         `json:"bus_name" yaml:"bus_name"`
	ObjectPath string         `json:"object_path" yaml:"object_path"`
	Capture    CaptureConfig  `json:"capture" yaml:"capture"`
	Selector   SelectorConfig `json:"selector" yaml:"selector"`
	API        APIConfig      `json:"api" yaml:"api"`
}

// CaptureConfig configures how capture workers are launched
type CaptureConfig struct {
	Backend     string        `json:"backend" yaml:"backend"`
	Framerate   int           `json:"framerate" yaml:"framerate"`
	NodeTimeout time.Duration `json:"node_timeout" yaml:"node_timeout"`
	GstLaunch   string        `json:"gst_launch" yaml:"gst_launch"`
	PwDump      string        `json:"pw_dump" yaml:"pw_dump"`
}

// SelectorConfig holds the argv of the interactive region picker. An empty
// command picks slurp on Wayland and slop on X11.
type SelectorConfig struct {
	Command []string `json:"command" yaml:"command"`
}

// APIConfig configures the optional local status API
type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Listen  string `json:"listen" yaml:"listen"`
}

// Defaults returns the configuration used when no file exists
func Defaults() *Config {
	return &Config{
		LogLevel:   "info",
		LogPretty:  false,
		BusName:    "org.freedesktop.impl.portal.desktop.portalcast",
		ObjectPath: "/org/freedesktop/portal/desktop",
		Capture: CaptureConfig{
			Backend:     "subprocess",
			Framerate:   30,
			NodeTimeout: 5 * time.Second,
			GstLaunch:   "gst-launch-1.0",
			PwDump:      "pw-dump",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8787",
		},
	}
}

// clone deep-copies cfg.
func (c *Config) clone() *Config {
	out := *c
	out.Selector.Command = append([]string(nil), c.Selector.Command...)
	return &out
}

// fillDefaults replaces zero values left by a partial file.
func (c *Config) fillDefaults() {
	d := Defaults()
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.BusName == "" {
		c.BusName = d.BusName
	}
	if c.ObjectPath == "" {
		c.ObjectPath = d.ObjectPath
	}
	if c.Capture.Backend == "" {
		c.Capture.Backend = d.Capture.Backend
	}
	if c.Capture.Framerate == 0 {
		c.Capture.Framerate = d.Capture.Framerate
	}
	if c.Capture.NodeTimeout == 0 {
		c.Capture.NodeTimeout = d.Capture.NodeTimeout
	}
	if c.Capture.GstLaunch == "" {
		c.Capture.GstLaunch = d.Capture.GstLaunch
	}
	if c.Capture.PwDump == "" {
		c.Capture.PwDump = d.Capture.PwDump
	}
	if c.API.Listen == "" {
		c.API.Listen = d.API.Listen
	}
}
