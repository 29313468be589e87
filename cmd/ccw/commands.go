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
	"github.com/spf13/cobra"
)

// version is stamped by the release build; "dev" for local builds.
var version = "dev"

// --- Global Command Variables ---
var (
	projectPath    string // --path project root override
	servePort      int    // --port dashboard listen port
	serveUIProxy   string // --ui-proxy dev-server target for unmatched routes
	serveTools     string // --tools enabled-tool list override
	serveTimeout   int    // --timeout per-call tool timeout in seconds
	statusJSON     bool   // --json machine-readable status output
	statusLocation string // --location restrict status to one session root

	rootCmd = &cobra.Command{
		Use:   "ccw",
		Short: "Workstation orchestrator for agent-driven coding workflows",
		Long: `ccw records AI coding workflow sessions, serves tools to agents
over JSON-RPC on stdio, and streams live session state to a local
web dashboard.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool-calling surface to an agent over stdio",
		Long: `Starts the JSON-RPC 2.0 tool server on stdin/stdout.

stdout carries protocol frames exclusively; all logs go to stderr.
The catalog is controlled by CCW_ENABLED_TOOLS (comma list or "all");
an empty value exposes no tools.`,
		RunE: runServe, // Defined in cmd_serve.go
	}

	viewCmd = &cobra.Command{
		Use:   "view",
		Short: "Serve the dashboard HTTP/WebSocket bridge",
		Long: `Starts the local dashboard server: WebSocket event fan-out on /ws,
fire-and-forget notifications on POST /api/hook, and read-only
snapshot endpoints for dashboard hydration.`,
		RunE: runView, // Defined in cmd_view.go
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the project's storage location and session digests",
		RunE:  runStatus, // Defined in cmd_status.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&projectPath, "path", "",
		"Project root (default: CCW_PROJECT_ROOT or the working directory)")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveTools, "tools", "",
		"Enabled tools, comma-separated or \"all\" (overrides CCW_ENABLED_TOOLS)")
	serveCmd.Flags().IntVar(&serveTimeout, "timeout", 0,
		"Per-call tool timeout in seconds (overrides config)")

	rootCmd.AddCommand(viewCmd)
	viewCmd.Flags().IntVar(&servePort, "port", 0,
		"Dashboard listen port (overrides CCW_PORT and config)")
	viewCmd.Flags().StringVar(&serveUIProxy, "ui-proxy", "",
		"Proxy unmatched routes to this UI dev-server URL")

	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false,
		"Output as JSON for scripting")
	statusCmd.Flags().StringVar(&statusLocation, "location", "all",
		"Session root to list: active, archived, lite-plan, lite-fix, or all")
}
