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
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ccw/services/workflow/events"
	"github.com/AleutianAI/ccw/services/workflow/telemetry"
	"github.com/AleutianAI/ccw/services/workflow/history"
	"github.com/AleutianAI/ccw/services/workflow/rpc"
	"github.com/AleutianAI/ccw/services/workflow/store"
	"github.com/AleutianAI/ccw/services/workflow/tools"
)

// runServe starts the JSON-RPC tool server on stdin/stdout.
//
// Description:
//
//	Wires store → tools → executor → rpc server for one project. The
//	server runs until stdin closes (the agent process exited) or the
//	process receives SIGINT/SIGTERM. stdout is owned by the protocol,
//	so stdout-writing telemetry exporters are forced off here.
func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot, err := bootstrap(ctx, "rpc")
	if err != nil {
		return err
	}
	defer boot.logger.Close()

	if serveTools != "" {
		boot.cfg.Tools.Enabled = serveTools
	}
	if serveTimeout > 0 {
		boot.cfg.Tools.TimeoutSeconds = serveTimeout
	}

	tcfg := telemetryConfig(boot.cfg, "ccw-rpc")
	if tcfg.TraceExporter == "stdout" {
		slog.Warn("stdout trace exporter conflicts with the rpc protocol stream, disabling")
		tcfg.TraceExporter = "none"
	}
	if tcfg.MetricExporter == "stdout" {
		slog.Warn("stdout metric exporter conflicts with the rpc protocol stream, disabling")
		tcfg.MetricExporter = "none"
	}
	shutdownTelemetry, err := telemetryInit(ctx, tcfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	bus := events.NewBus()
	defer bus.Close()
	st := store.New(boot.loc.StateRoot, store.WithBus(bus))

	workspace, err := tools.NewWorkspace(boot.root)
	if err != nil {
		return err
	}

	searchTool := tools.NewSmartSearch(boot.root, boot.loc.StateRoot)
	defer func() {
		if err := searchTool.Close(); err != nil {
			slog.Warn("closing search index", "error", err)
		}
	}()

	registry := tools.NewRegistry(tools.ParseEnabled(boot.cfg.Tools.Enabled))
	registry.Register(tools.NewSessionManager(st))
	registry.Register(tools.NewWriteFile(workspace))
	registry.Register(tools.NewEditFile(workspace))
	registry.Register(searchTool)
	registry.Register(tools.NewOutline(workspace))
	slog.Info("tool catalog assembled",
		"enabled", registry.Names(),
		"timeout", boot.cfg.Tools.Timeout())

	executor := tools.NewExecutor(registry, tools.WithTimeout(boot.cfg.Tools.Timeout()))
	transcript := history.New(boot.loc.StateRoot)

	server := rpc.NewServer(os.Stdin, os.Stdout, executor,
		rpc.ServerInfo{Name: "ccw", Version: version},
		rpc.WithTranscript(transcript))

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// telemetryInit wraps telemetry.Init with a bounded-shutdown closure so
// commands can defer it without plumbing contexts.
func telemetryInit(ctx context.Context, tcfg telemetry.Config) (func(), error) {
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return nil, err
	}
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}, nil
}
