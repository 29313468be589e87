// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ccw is the workstation orchestrator for agent-driven coding
// workflows.
//
// ccw records multi-turn AI coding sessions (plans, tasks, reviews, fix
// cycles) under a per-project state root, exposes a tool-calling surface
// to agent processes over JSON-RPC on stdio, and streams live session
// state to a local web dashboard over WebSocket.
//
// Usage:
//
//	ccw serve --path /path/to/project
//	ccw view --path /path/to/project --port 8765
//	ccw status --path /path/to/project
//
// Agent integration (stdio JSON-RPC, one frame per line):
//
//	CCW_ENABLED_TOOLS=all ccw serve --path .
//
// Dashboard with a UI dev server proxied behind it:
//
//	ccw view --path . --ui-proxy http://localhost:5173
//
// Notify the dashboard from a hook script:
//
//	curl -X POST http://localhost:8765/api/hook \
//	  -H "Content-Type: application/json" \
//	  -d '{"type": "SESSION_UPDATED", "sessionId": "WFS-001"}'
//
// State lives under ~/.ccw (override with CCW_DATA_DIR). The project
// path defaults to the working directory; CCW_PROJECT_ROOT pins it for
// spawned servers that cannot pass flags.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ccw: %v\n", err)
		os.Exit(1)
	}
}
