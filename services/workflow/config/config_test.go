// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ccw/services/workflow"
)

// writeOverlay places a config.yaml under the state root's config dir.
func writeOverlay(t *testing.T, stateRoot string, content []byte) {
	t.Helper()
	dir := filepath.Join(stateRoot, "config")
	require.NoError(t, os.MkdirAll(dir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, OverlayFileName), content, 0640))
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 3456, cfg.Server.Port)
	assert.Empty(t, cfg.Server.UIProxy)
	assert.Equal(t, "all", cfg.Tools.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Tools.Timeout())
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
	assert.Equal(t, "prometheus", cfg.Telemetry.MetricExporter)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.JSON)
}

func TestLoad_NoOverlay(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	defaults, err := Default()
	require.NoError(t, err)
	assert.Equal(t, defaults, cfg)
}

func TestLoad_OverlayOverridesKeyByKey(t *testing.T) {
	stateRoot := t.TempDir()
	writeOverlay(t, stateRoot, []byte("server:\n  port: 9000\ntools:\n  enabled: \"outline,smart_search\"\n"))

	cfg, err := Load(stateRoot)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "outline,smart_search", cfg.Tools.Enabled)
	// Keys absent from the overlay keep their defaults.
	assert.Equal(t, 30, cfg.Tools.TimeoutSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	stateRoot := t.TempDir()
	writeOverlay(t, stateRoot, []byte("server:\n  port: 9000\n"))

	t.Setenv("CCW_PORT", "8123")
	t.Setenv("CCW_ENABLED_TOOLS", "")
	t.Setenv("CCW_LOG_LEVEL", "debug")

	cfg, err := Load(stateRoot)
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Server.Port)
	// A present-but-empty CCW_ENABLED_TOOLS disables every tool.
	assert.Equal(t, "", cfg.Tools.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidEnvNumberIgnored(t *testing.T) {
	t.Setenv("CCW_PORT", "not-a-number")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3456, cfg.Server.Port)
}

func TestLoad_InvalidOverlayYAML(t *testing.T) {
	stateRoot := t.TempDir()
	writeOverlay(t, stateRoot, []byte("server: [not: valid"))

	_, err := Load(stateRoot)
	require.ErrorIs(t, err, workflow.ErrParse)
}

func TestLoad_OversizeOverlayRejected(t *testing.T) {
	stateRoot := t.TempDir()
	writeOverlay(t, stateRoot, bytes.Repeat([]byte("# padding\n"), MaxYAMLFileSize/10+1))

	_, err := Load(stateRoot)
	require.ErrorIs(t, err, workflow.ErrParameter)
}

func TestLoad_ValidationFailures(t *testing.T) {
	t.Run("port out of range", func(t *testing.T) {
		stateRoot := t.TempDir()
		writeOverlay(t, stateRoot, []byte("server:\n  port: 99999\n"))

		_, err := Load(stateRoot)
		require.ErrorIs(t, err, workflow.ErrParameter)
	})

	t.Run("unknown log level", func(t *testing.T) {
		stateRoot := t.TempDir()
		writeOverlay(t, stateRoot, []byte("logging:\n  level: loud\n"))

		_, err := Load(stateRoot)
		require.ErrorIs(t, err, workflow.ErrParameter)
	})

	t.Run("unknown exporter", func(t *testing.T) {
		stateRoot := t.TempDir()
		writeOverlay(t, stateRoot, []byte("telemetry:\n  trace_exporter: jaeger\n"))

		_, err := Load(stateRoot)
		require.ErrorIs(t, err, workflow.ErrParameter)
	})

	t.Run("ui proxy must be a url", func(t *testing.T) {
		stateRoot := t.TempDir()
		writeOverlay(t, stateRoot, []byte("server:\n  ui_proxy: \"not a url\"\n"))

		_, err := Load(stateRoot)
		require.ErrorIs(t, err, workflow.ErrParameter)
	})
}
