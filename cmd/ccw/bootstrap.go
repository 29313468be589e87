// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AleutianAI/ccw/pkg/logging"
	"github.com/AleutianAI/ccw/services/workflow/config"
	"github.com/AleutianAI/ccw/services/workflow/locator"
	"github.com/AleutianAI/ccw/services/workflow/telemetry"
)

// envProjectRoot pins the project path for servers spawned by agent
// harnesses that cannot pass flags.
const envProjectRoot = "CCW_PROJECT_ROOT"

// bootstrapped carries everything a subcommand needs after startup.
type bootstrapped struct {
	root   string
	loc    locator.ProjectLocation
	cfg    *config.Config
	logger *logging.Logger
}

// resolveProjectRoot picks the project path: --path flag, then
// CCW_PROJECT_ROOT, then the working directory.
func resolveProjectRoot() (string, error) {
	if projectPath != "" {
		return projectPath, nil
	}
	if env := os.Getenv(envProjectRoot); env != "" {
		return env, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	return wd, nil
}

// bootstrap locates the project state root, ensures its layout, loads
// configuration, and installs the process logger.
//
// Inputs:
//
//	ctx - Startup context
//	service - Component name stamped on every log entry ("rpc",
//	          "dashboard", "cli")
//
// Outputs:
//
//	*bootstrapped - Resolved location, config, and logger
//	error - Locator, layout, or config failure
func bootstrap(ctx context.Context, service string) (*bootstrapped, error) {
	root, err := resolveProjectRoot()
	if err != nil {
		return nil, err
	}

	loc, err := locator.Locate(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("locating project state: %w", err)
	}
	if err := locator.EnsureLayout(loc); err != nil {
		return nil, fmt.Errorf("preparing state root: %w", err)
	}

	cfg, err := config.Load(loc.StateRoot)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  filepath.Join(loc.StateRoot, locator.CacheDirName, "logs"),
		Service: service,
		JSON:    cfg.Logging.JSON,
	})
	slog.SetDefault(logger.Slog())

	slog.Debug("project state resolved",
		"projectId", loc.ProjectID,
		"stateRoot", loc.StateRoot)

	return &bootstrapped{root: loc.ProjectPath, loc: loc, cfg: cfg, logger: logger}, nil
}

// telemetryConfig maps the loaded config onto the telemetry package.
func telemetryConfig(cfg *config.Config, service string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceName = service
	tc.ServiceVersion = version
	tc.TraceExporter = cfg.Telemetry.TraceExporter
	tc.MetricExporter = cfg.Telemetry.MetricExporter
	tc.SampleRate = cfg.Telemetry.SampleRate
	return tc
}
