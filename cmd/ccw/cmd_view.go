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
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ccw/services/workflow/dashboard"
	"github.com/AleutianAI/ccw/services/workflow/events"
	"github.com/AleutianAI/ccw/services/workflow/store"
	"github.com/AleutianAI/ccw/services/workflow/telemetry"
	"github.com/AleutianAI/ccw/services/workflow/watch"
)

// runView starts the dashboard HTTP/WebSocket server.
//
// Description:
//
//	Wires store → bus → dashboard for one project and starts the
//	session watcher so external writes (agents mutating state through
//	their own serve process) surface as events here too. Runs until
//	SIGINT/SIGTERM.
func runView(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot, err := bootstrap(ctx, "dashboard")
	if err != nil {
		return err
	}
	defer boot.logger.Close()

	if servePort > 0 {
		boot.cfg.Server.Port = servePort
	}
	if serveUIProxy != "" {
		boot.cfg.Server.UIProxy = serveUIProxy
	}

	shutdownTelemetry, err := telemetryInit(ctx, telemetryConfig(boot.cfg, "ccw-dashboard"))
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	bus := events.NewBus()
	defer bus.Close()
	st := store.New(boot.loc.StateRoot, store.WithBus(bus))

	watcher, err := watch.New(boot.loc.StateRoot, bus, nil)
	if err != nil {
		slog.Warn("session watcher unavailable, external writes will not stream", "error", err)
	} else {
		if err := watcher.Start(ctx); err != nil {
			slog.Warn("session watcher failed to start", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	opts := []dashboard.Option{}
	if boot.cfg.Server.UIProxy != "" {
		target, err := url.Parse(boot.cfg.Server.UIProxy)
		if err != nil {
			return fmt.Errorf("invalid --ui-proxy target: %w", err)
		}
		opts = append(opts, dashboard.WithUIProxy(target))
	}
	if boot.cfg.Telemetry.MetricExporter == "prometheus" {
		opts = append(opts, dashboard.WithMetricsHandler(telemetry.MetricsHandler()))
	}

	server := dashboard.NewServer(boot.loc, st, bus, opts...)
	addr := fmt.Sprintf("127.0.0.1:%d", boot.cfg.Server.Port)
	slog.Info("dashboard listening",
		"addr", addr,
		"project", boot.loc.ProjectID,
		"uiProxy", boot.cfg.Server.UIProxy)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx, addr)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
