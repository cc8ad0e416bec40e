// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the mount daemon configuration.
type Config struct {
	// Device is the path to the backing image file or block device.
	Device string `yaml:"device"`

	// Mountpoint is the directory the filesystem is mounted on.
	Mountpoint string `yaml:"mountpoint"`

	// AllowOther exposes the mount to users other than the mounting
	// user. Requires user_allow_other in /etc/fuse.conf when the
	// daemon itself is unprivileged.
	AllowOther bool `yaml:"allow_other"`

	// CreateImageSize, when nonzero, creates the device path as a
	// sparse image file of this many bytes if it does not already
	// exist. Zero means the device must already exist.
	CreateImageSize int64 `yaml:"create_image_size"`

	// LogLevel is one of "debug", "info", "warn", "error". Empty
	// defaults to "info".
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no config file is given.
func Default() Config {
	return Config{
		LogLevel: "info",
	}
}

// Load reads and validates a configuration file. Unknown keys are
// rejected so that typos fail loudly instead of silently falling back
// to defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is complete enough to mount.
func (c Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("device path is required")
	}
	if c.Mountpoint == "" {
		return fmt.Errorf("mountpoint is required")
	}
	if c.CreateImageSize < 0 {
		return fmt.Errorf("create_image_size must not be negative: %d", c.CreateImageSize)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps the configured log level name to a slog.Level.
func (c Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
}
