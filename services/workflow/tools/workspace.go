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
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/ccw/services/workflow"
)

// Workspace confines file tools to one project root. Every path a tool
// touches goes through Resolve, which canonicalizes through symlinks and
// rejects anything that lands outside the root.
//
// Thread Safety: Workspace is immutable after construction and safe for
// concurrent use.
type Workspace struct {
	// root is the canonical absolute project root.
	root string
}

// NewWorkspace creates a workspace rooted at projectRoot. The root is
// resolved through symlinks once (macOS /var vs /private/var) so later
// containment checks compare canonical paths.
func NewWorkspace(projectRoot string) (*Workspace, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving project root: %v", workflow.ErrInvalidPath, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return &Workspace{root: abs}, nil
}

// Root returns the canonical project root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve canonicalizes a tool-supplied path and verifies containment.
//
// Description:
//
//	Relative paths are joined onto the project root. The result is
//	resolved through symlinks via its nearest existing ancestor, so
//	paths for files that do not exist yet still canonicalize. A path
//	whose canonical form is outside the root fails with an invalid
//	path error.
//
// Outputs:
//
//	string - The canonical absolute path, inside the root
//	error - Wraps workflow.ErrInvalidPath on escape or resolution failure
func (w *Workspace) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", workflow.ErrInvalidPath)
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(w.root, target)
	}
	target = filepath.Clean(target)

	real := resolveWithAncestors(target)
	if real != w.root && !strings.HasPrefix(real, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q resolves outside the project root", workflow.ErrInvalidPath, path)
	}
	return real, nil
}

// Rel returns the path relative to the root, for display in results.
// Falls back to the input when it cannot be made relative.
func (w *Workspace) Rel(path string) string {
	if rel, err := filepath.Rel(w.root, path); err == nil {
		return rel
	}
	return path
}

// resolveWithAncestors resolves symlinks via the nearest existing
// ancestor, handling targets that do not exist yet.
func resolveWithAncestors(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}

	current := path
	var pending []string

	for {
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		if real, err := filepath.EvalSymlinks(parent); err == nil {
			real = filepath.Join(real, filepath.Base(current))
			for i := len(pending) - 1; i >= 0; i-- {
				real = filepath.Join(real, pending[i])
			}
			return real
		}
		pending = append(pending, filepath.Base(current))
		current = parent
	}

	return path
}
