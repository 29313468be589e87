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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ccw/services/workflow"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	return ws
}

func decodeResult(t *testing.T, result *Result) map[string]any {
	t.Helper()
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Text), &decoded))
	return decoded
}

// =============================================================================
// Workspace
// =============================================================================

func TestWorkspace_ResolveRelative(t *testing.T) {
	ws := newTestWorkspace(t)

	resolved, err := ws.Resolve("sub/dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Root(), "sub", "dir", "file.txt"), resolved)
}

func TestWorkspace_ResolveRejectsEscape(t *testing.T) {
	ws := newTestWorkspace(t)

	for _, path := range []string{
		"../outside.txt",
		"sub/../../outside.txt",
		"/etc/passwd",
	} {
		_, err := ws.Resolve(path)
		assert.ErrorIs(t, err, workflow.ErrInvalidPath, "path %q", path)
	}
}

func TestWorkspace_ResolveRejectsSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	ws := newTestWorkspace(t)

	link := filepath.Join(ws.Root(), "link")
	require.NoError(t, os.Symlink(outside, link))

	_, err := ws.Resolve("link/secret.txt")
	assert.ErrorIs(t, err, workflow.ErrInvalidPath)
}

func TestWorkspace_ResolveEmptyPath(t *testing.T) {
	ws := newTestWorkspace(t)

	_, err := ws.Resolve("")
	assert.ErrorIs(t, err, workflow.ErrInvalidPath)
}

// =============================================================================
// write_file
// =============================================================================

func TestWriteFile_CreatesFileAndParents(t *testing.T) {
	ws := newTestWorkspace(t)
	tool := NewWriteFile(ws)

	result, err := tool.Execute(context.Background(), map[string]any{
		"path":    "nested/deep/hello.txt",
		"content": "hello world\n",
	})
	require.NoError(t, err)

	decoded := decodeResult(t, result)
	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, true, decoded["created"])
	assert.Equal(t, float64(12), decoded["bytes"])

	data, err := os.ReadFile(filepath.Join(ws.Root(), "nested", "deep", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", string(data))
}

func TestWriteFile_ReplacesExisting(t *testing.T) {
	ws := newTestWorkspace(t)
	tool := NewWriteFile(ws)

	path := filepath.Join(ws.Root(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	result, err := tool.Execute(context.Background(), map[string]any{
		"path":    "file.txt",
		"content": "new",
	})
	require.NoError(t, err)

	decoded := decodeResult(t, result)
	assert.Equal(t, false, decoded["created"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestWriteFile_RejectsEscape(t *testing.T) {
	ws := newTestWorkspace(t)
	tool := NewWriteFile(ws)

	_, err := tool.Execute(context.Background(), map[string]any{
		"path":    "../escape.txt",
		"content": "nope",
	})
	assert.ErrorIs(t, err, workflow.ErrInvalidPath)
}

func TestWriteFile_LeavesNoTempFileBehind(t *testing.T) {
	ws := newTestWorkspace(t)
	tool := NewWriteFile(ws)

	_, err := tool.Execute(context.Background(), map[string]any{
		"path":    "out.txt",
		"content": "data",
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(ws.Root())
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp-")
	}
}

// =============================================================================
// edit_file
// =============================================================================

func seedFile(t *testing.T, ws *Workspace, name, content string) string {
	t.Helper()
	path := filepath.Join(ws.Root(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestEditFile_Update(t *testing.T) {
	ws := newTestWorkspace(t)
	tool := NewEditFile(ws)
	path := seedFile(t, ws, "main.go", "package main\n\nfunc oldName() {}\n")

	result, err := tool.Execute(context.Background(), map[string]any{
		"path":    "main.go",
		"oldText": "func oldName(",
		"newText": "func newName(",
		"mode":    "update",
	})
	require.NoError(t, err)

	decoded := decodeResult(t, result)
	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, float64(1), decoded["replacements"])
	assert.Contains(t, decoded["diff"], "-func oldName() {}")
	assert.Contains(t, decoded["diff"], "+func newName() {}")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "package main\n\nfunc newName() {}\n", string(data))
}

func TestEditFile_Insert(t *testing.T) {
	ws := newTestWorkspace(t)
	tool := NewEditFile(ws)
	path := seedFile(t, ws, "list.txt", "alpha\ngamma\n")

	_, err := tool.Execute(context.Background(), map[string]any{
		"path":    "list.txt",
		"oldText": "alpha\n",
		"newText": "beta\n",
		"mode":    "insert",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alpha\nbeta\ngamma\n", string(data))
}

func TestEditFile_Delete(t *testing.T) {
	ws := newTestWorkspace(t)
	tool := NewEditFile(ws)
	path := seedFile(t, ws, "list.txt", "alpha\nbeta\ngamma\n")

	_, err := tool.Execute(context.Background(), map[string]any{
		"path":    "list.txt",
		"oldText": "beta\n",
		"newText": "",
		"mode":    "delete",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alpha\ngamma\n", string(data))
}

func TestEditFile_DeleteRejectsNewText(t *testing.T) {
	ws := newTestWorkspace(t)
	tool := NewEditFile(ws)
	seedFile(t, ws, "list.txt", "alpha\n")

	_, err := tool.Execute(context.Background(), map[string]any{
		"path":    "list.txt",
		"oldText": "alpha",
		"newText": "replacement",
		"mode":    "delete",
	})
	assert.ErrorIs(t, err, workflow.ErrParameter)
}

func TestEditFile_NoMatch(t *testing.T) {
	ws := newTestWorkspace(t)
	tool := NewEditFile(ws)
	seedFile(t, ws, "main.go", "package main\n")

	_, err := tool.Execute(context.Background(), map[string]any{
		"path":    "main.go",
		"oldText": "does not exist",
		"newText": "x",
		"mode":    "update",
	})
	require.ErrorIs(t, err, ErrNoMatch)
	assert.Contains(t, err.Error(), "suggestion")
}

func TestEditFile_MultipleMatches(t *testing.T) {
	ws := newTestWorkspace(t)
	tool := NewEditFile(ws)
	seedFile(t, ws, "main.go", "x := 1\nx := 1\nx := 1\n")

	_, err := tool.Execute(context.Background(), map[string]any{
		"path":    "main.go",
		"oldText": "x := 1",
		"newText": "y := 2",
		"mode":    "update",
	})
	require.ErrorIs(t, err, ErrMultipleMatch)

	var editErr *EditError
	require.ErrorAs(t, err, &editErr)
	assert.Equal(t, 3, editErr.MatchCount)
	assert.Contains(t, err.Error(), "3 times")
}

func TestEditFile_FileNotFound(t *testing.T) {
	ws := newTestWorkspace(t)
	tool := NewEditFile(ws)

	_, err := tool.Execute(context.Background(), map[string]any{
		"path":    "ghost.go",
		"oldText": "a",
		"newText": "b",
		"mode":    "update",
	})
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestEditFile_IdenticalTextsRejected(t *testing.T) {
	ws := newTestWorkspace(t)
	tool := NewEditFile(ws)
	seedFile(t, ws, "main.go", "package main\n")

	_, err := tool.Execute(context.Background(), map[string]any{
		"path":    "main.go",
		"oldText": "package",
		"newText": "package",
		"mode":    "update",
	})
	assert.ErrorIs(t, err, workflow.ErrParameter)
}

func TestGenerateUnifiedDiff(t *testing.T) {
	diff := generateUnifiedDiff("file.txt", "a\nb\nc\n", "a\nB\nc\n")

	assert.Contains(t, diff, "--- file.txt (original)")
	assert.Contains(t, diff, "+++ file.txt (modified)")
	assert.Contains(t, diff, "-b")
	assert.Contains(t, diff, "+B")
	assert.Contains(t, diff, "@@ -2,1 +2,1 @@")
}

func TestGenerateUnifiedDiff_NoChanges(t *testing.T) {
	diff := generateUnifiedDiff("file.txt", "same\n", "same\n")
	assert.NotContains(t, diff, "@@")
}
