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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/ccw/services/workflow"
)

// MaxEditFileSize caps the size of files edit_file will touch.
const MaxEditFileSize = 10 * 1024 * 1024

// Edit modes.
const (
	EditModeUpdate = "update"
	EditModeInsert = "insert"
	EditModeDelete = "delete"
)

// Edit errors for specific failure modes.
var (
	ErrNoMatch       = errors.New("oldText not found in file")
	ErrMultipleMatch = errors.New("oldText matches multiple times")
)

// EditError carries the match count and a fix-it hint alongside the
// underlying failure. The message is surfaced verbatim to the agent.
type EditError struct {
	// Err is the underlying error.
	Err error

	// MatchCount is the number of matches found.
	MatchCount int

	// Suggestion provides guidance for fixing the error.
	Suggestion string
}

// Error implements the error interface.
func (e *EditError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v (suggestion: %s)", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *EditError) Unwrap() error {
	return e.Err
}

// EditFile makes surgical text edits to files inside the project root.
//
// Thread Safety: EditFile is safe for concurrent use. Concurrent edits
// to the same file are last-write-wins, like every other write in the
// system.
type EditFile struct {
	workspace *Workspace
}

// NewEditFile creates the edit_file tool over a workspace.
func NewEditFile(ws *Workspace) *EditFile {
	return &EditFile{workspace: ws}
}

// Name returns "edit_file".
func (t *EditFile) Name() string { return "edit_file" }

// Definition describes the edit_file parameters.
func (t *EditFile) Definition() Definition {
	return Definition{
		Name: "edit_file",
		Description: "Make a surgical edit by exact text match. oldText must occur " +
			"exactly once (including whitespace). Modes: update replaces it, " +
			"insert places newText after it, delete removes it.",
		SideEffects: true,
		Parameters: map[string]ParamDef{
			"path": {
				Type:        ParamTypeString,
				Description: "File path, absolute or relative to the project root.",
				Required:    true,
			},
			"oldText": {
				Type:        ParamTypeString,
				Description: "Exact text to locate. Must be unique in the file.",
				Required:    true,
			},
			"newText": {
				Type:        ParamTypeString,
				Description: "Replacement (update), insertion (insert), or empty (delete).",
				Required:    true,
			},
			"mode": {
				Type:        ParamTypeString,
				Description: "Edit mode.",
				Required:    true,
				Enum:        []any{EditModeUpdate, EditModeInsert, EditModeDelete},
			},
		},
	}
}

// Execute applies the edit and reports a unified diff of the change.
func (t *EditFile) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	path := stringArg(params, "path")
	oldText := stringArg(params, "oldText")
	newText := stringArg(params, "newText")
	mode := stringArg(params, "mode")

	if oldText == "" {
		return nil, fmt.Errorf("%w: oldText must not be empty", workflow.ErrParameter)
	}
	if mode == EditModeDelete && newText != "" {
		return nil, fmt.Errorf("%w: newText must be empty in delete mode", workflow.ErrParameter)
	}
	if mode == EditModeUpdate && oldText == newText {
		return nil, fmt.Errorf("%w: oldText and newText are identical", workflow.ErrParameter)
	}

	target, err := t.workspace.Resolve(path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", workflow.ErrNotFound, t.workspace.Rel(target))
		}
		return nil, fmt.Errorf("%w: reading file: %v", workflow.ErrIO, err)
	}
	if len(raw) > MaxEditFileSize {
		return nil, fmt.Errorf("%w: file too large for edit (%d bytes, max %d)", workflow.ErrParameter, len(raw), MaxEditFileSize)
	}

	oldContent := string(raw)
	if err := requireSingleMatch(oldContent, oldText); err != nil {
		return nil, err
	}

	var newContent string
	switch mode {
	case EditModeUpdate:
		newContent = strings.Replace(oldContent, oldText, newText, 1)
	case EditModeInsert:
		newContent = strings.Replace(oldContent, oldText, oldText+newText, 1)
	case EditModeDelete:
		newContent = strings.Replace(oldContent, oldText, "", 1)
	}

	diff := generateUnifiedDiff(t.workspace.Rel(target), oldContent, newContent)

	if err := writeFileAtomic(target, []byte(newContent), 0644); err != nil {
		return nil, err
	}

	return jsonResult(map[string]any{
		"success":      true,
		"path":         t.workspace.Rel(target),
		"mode":         mode,
		"replacements": 1,
		"diff":         diff,
	})
}

// requireSingleMatch enforces the exactly-one-occurrence contract.
func requireSingleMatch(content, oldText string) error {
	count := strings.Count(content, oldText)
	if count == 0 {
		return &EditError{
			Err:        ErrNoMatch,
			Suggestion: "verify the exact text including whitespace, or use smart_search to find it",
		}
	}
	if count > 1 {
		return &EditError{
			Err:        ErrMultipleMatch,
			MatchCount: count,
			Suggestion: fmt.Sprintf("matches %d times; include more surrounding context to make it unique", count),
		}
	}
	return nil
}

// =============================================================================
// Diff Generation
// =============================================================================

// generateUnifiedDiff creates a simple unified diff format output.
func generateUnifiedDiff(path, oldContent, newContent string) string {
	oldLines := strings.Split(oldContent, "\n")
	newLines := strings.Split(newContent, "\n")

	var diff strings.Builder
	diff.WriteString(fmt.Sprintf("--- %s (original)\n", path))
	diff.WriteString(fmt.Sprintf("+++ %s (modified)\n", path))

	changes := findChanges(oldLines, newLines)
	for _, change := range changes {
		diff.WriteString(fmt.Sprintf("@@ -%d,%d +%d,%d @@\n",
			change.oldStart+1, change.oldCount,
			change.newStart+1, change.newCount))

		// Context before (up to 3 lines)
		contextStart := max(0, change.oldStart-3)
		for i := contextStart; i < change.oldStart; i++ {
			diff.WriteString(fmt.Sprintf(" %s\n", oldLines[i]))
		}

		for i := change.oldStart; i < change.oldStart+change.oldCount; i++ {
			if i < len(oldLines) {
				diff.WriteString(fmt.Sprintf("-%s\n", oldLines[i]))
			}
		}

		for i := change.newStart; i < change.newStart+change.newCount; i++ {
			if i < len(newLines) {
				diff.WriteString(fmt.Sprintf("+%s\n", newLines[i]))
			}
		}

		// Context after (up to 3 lines)
		contextEnd := min(len(oldLines), change.oldStart+change.oldCount+3)
		for i := change.oldStart + change.oldCount; i < contextEnd; i++ {
			diff.WriteString(fmt.Sprintf(" %s\n", oldLines[i]))
		}
	}

	return diff.String()
}

// changeRegion represents a region of change in the diff.
type changeRegion struct {
	oldStart int
	oldCount int
	newStart int
	newCount int
}

// findChanges identifies the region that differs between old and new
// content: first differing line to last differing line. Single-region
// output is enough here because every edit is one contiguous change.
func findChanges(oldLines, newLines []string) []changeRegion {
	var changes []changeRegion

	firstDiff := -1
	minLen := min(len(oldLines), len(newLines))

	for i := 0; i < minLen; i++ {
		if oldLines[i] != newLines[i] {
			firstDiff = i
			break
		}
	}

	if firstDiff == -1 {
		if len(oldLines) != len(newLines) {
			firstDiff = minLen
		} else {
			return changes
		}
	}

	oldIdx := len(oldLines) - 1
	newIdx := len(newLines) - 1
	for oldIdx >= firstDiff && newIdx >= firstDiff {
		if oldLines[oldIdx] != newLines[newIdx] {
			break
		}
		oldIdx--
		newIdx--
	}

	if firstDiff <= oldIdx || firstDiff <= newIdx {
		changes = append(changes, changeRegion{
			oldStart: firstDiff,
			oldCount: oldIdx - firstDiff + 1,
			newStart: firstDiff,
			newCount: newIdx - firstDiff + 1,
		})
	}

	return changes
}
