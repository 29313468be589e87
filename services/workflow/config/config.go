// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads ccw configuration in three layers: embedded
// defaults, an optional per-project overlay at
// <stateRoot>/config/config.yaml, and CCW_* environment overrides.
// Later layers win key by key.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/ccw/services/workflow"
	"github.com/AleutianAI/ccw/services/workflow/locator"
)

// MaxYAMLFileSize is the maximum allowed overlay file size (1MB).
// Prevents memory issues from oversized or hostile files.
const MaxYAMLFileSize = 1024 * 1024

// OverlayFileName is the per-project configuration file name.
const OverlayFileName = "config.yaml"

//go:embed defaults.yaml
var defaultConfigYAML []byte

// configValidate is the validator instance for configuration structs.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
}

// Config is the full ccw configuration tree.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Tools     ToolsConfig     `yaml:"tools" json:"tools"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ServerConfig controls the dashboard HTTP server.
type ServerConfig struct {
	// Port is the dashboard listen port.
	Port int `yaml:"port" json:"port" validate:"gte=1,lte=65535"`

	// UIProxy is the reverse-proxy target for unmatched routes.
	// Empty disables proxying.
	UIProxy string `yaml:"ui_proxy" json:"ui_proxy" validate:"omitempty,url"`
}

// ToolsConfig controls the tool-calling server.
type ToolsConfig struct {
	// Enabled is a comma-separated tool list, or "all". Empty exposes
	// no tools.
	Enabled string `yaml:"enabled" json:"enabled"`

	// TimeoutSeconds bounds each tools/call handler.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds" validate:"gte=1,lte=3600"`
}

// Timeout returns the per-call timeout as a duration.
func (c ToolsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TelemetryConfig selects trace and metric exporters.
type TelemetryConfig struct {
	TraceExporter  string  `yaml:"trace_exporter" json:"trace_exporter" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" json:"metric_exporter" validate:"oneof=prometheus stdout none"`
	SampleRate     float64 `yaml:"sample_rate" json:"sample_rate" validate:"gte=0,lte=1"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json" json:"json"`
}

// Default returns the embedded default configuration.
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("%w: embedded defaults: %v", workflow.ErrParse, err)
	}
	return &cfg, nil
}

// Load builds the effective configuration for one project.
//
// Description:
//
//	Starts from the embedded defaults, overlays the project's
//	config/config.yaml when present, applies CCW_* environment
//	overrides, then validates the result. A missing overlay file is
//	normal; a present but unreadable or invalid one is an error, not
//	a silent fallback.
//
// Inputs:
//
//	stateRoot - The project's state directory (locator.Location.StateRoot)
//
// Outputs:
//
//	*Config - The validated effective configuration
//	error - Parse, IO, or validation failure
func Load(stateRoot string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	overlayPath := filepath.Join(stateRoot, locator.ConfigDirName, OverlayFileName)
	data, err := readOverlay(overlayPath)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", workflow.ErrParse, overlayPath, err)
		}
		slog.Debug("loaded config overlay", "path", overlayPath)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readOverlay reads the overlay file, returning nil data when the file
// does not exist.
func readOverlay(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: stat config: %v", workflow.ErrIO, err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes (max %d)",
			workflow.ErrParameter, info.Size(), MaxYAMLFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config: %v", workflow.ErrIO, err)
	}
	return data, nil
}

// applyEnv applies CCW_* environment overrides onto the config.
// Unparsable numeric values are ignored with a warning rather than
// failing startup.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CCW_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("ignoring invalid CCW_PORT", "value", v)
		} else {
			cfg.Server.Port = port
		}
	}
	if v, ok := os.LookupEnv("CCW_ENABLED_TOOLS"); ok {
		// Empty is meaningful: it disables every tool.
		cfg.Tools.Enabled = v
	}
	if v := os.Getenv("CCW_TOOL_TIMEOUT_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("ignoring invalid CCW_TOOL_TIMEOUT_SECONDS", "value", v)
		} else {
			cfg.Tools.TimeoutSeconds = secs
		}
	}
	if v := os.Getenv("CCW_UI_PROXY"); v != "" {
		cfg.Server.UIProxy = v
	}
	if v := os.Getenv("CCW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration against its field constraints.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", workflow.ErrParameter, err)
	}
	return nil
}
