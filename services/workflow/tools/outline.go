// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"

	"github.com/AleutianAI/ccw/services/workflow/outline"
)

// Outline parses a source file into its symbol tree.
//
// Thread Safety: Outline is safe for concurrent use; each call builds
// its own parser.
type Outline struct {
	workspace *Workspace
}

// NewOutline creates the outline tool over a workspace.
func NewOutline(ws *Workspace) *Outline {
	return &Outline{workspace: ws}
}

// Name returns "outline".
func (t *Outline) Name() string { return "outline" }

// Definition describes the outline parameters.
func (t *Outline) Definition() Definition {
	return Definition{
		Name: "outline",
		Description: "Parse a source file into a symbol outline: functions, methods, " +
			"types, classes, and constants with lines, signatures, and doc " +
			"comments. Supports Go, Python, JavaScript, and TypeScript.",
		Parameters: map[string]ParamDef{
			"path": {
				Type:        ParamTypeString,
				Description: "Source file path, absolute or relative to the project root.",
				Required:    true,
			},
		},
	}
}

// Execute outlines the file.
func (t *Outline) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	target, err := t.workspace.Resolve(stringArg(params, "path"))
	if err != nil {
		return nil, err
	}

	result, err := outline.File(ctx, target)
	if err != nil {
		return nil, err
	}

	// Report the path project-relative, matching the other tools.
	result.File = t.workspace.Rel(target)
	return jsonResult(result)
}
