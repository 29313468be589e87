// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package locator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupGlobalRoot points CCW_DATA_DIR at a fresh temp dir and clears the
// location cache for the test.
func setupGlobalRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	ResetCache()
	t.Cleanup(ResetCache)
	return dir
}

func TestProjectID(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"unix path", "/home/dev/api", "--home--dev--api"},
		{"root", "/", "--"},
		{"windows drive", `C:\work\api`, "C----work--api"},
		{"dots preserved", "/home/dev/my.project", "--home--dev--my.project"},
		{"spaces preserved", "/home/dev/my project", "--home--dev--my project"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectID(tt.path))
		})
	}
}

// TestLocate_FlatProject verifies a project with no known ancestors gets a
// flat state root.
func TestLocate_FlatProject(t *testing.T) {
	globalRoot := setupGlobalRoot(t)
	project := t.TempDir()

	loc, err := Locate(context.Background(), project)
	require.NoError(t, err)

	assert.Equal(t, ProjectID(loc.ProjectPath), loc.ProjectID)
	assert.Empty(t, loc.ParentProjectID)
	assert.Empty(t, loc.RelativeFromParent)
	assert.False(t, loc.Nested())
	assert.Equal(t, filepath.Join(globalRoot, "projects", loc.ProjectID), loc.StateRoot)
}

// TestLocate_NestedProject verifies the deepest registered ancestor becomes
// the parent and the state root nests inside it.
func TestLocate_NestedProject(t *testing.T) {
	globalRoot := setupGlobalRoot(t)

	parent := t.TempDir()
	child := filepath.Join(parent, "services", "api")
	require.NoError(t, os.MkdirAll(child, 0o755))

	// Register the parent by creating its project directory.
	parentLoc, err := Locate(context.Background(), parent)
	require.NoError(t, err)
	require.NoError(t, EnsureLayout(parentLoc))
	ResetCache()

	loc, err := Locate(context.Background(), child)
	require.NoError(t, err)

	assert.Equal(t, parentLoc.ProjectID, loc.ParentProjectID)
	assert.Equal(t, "services/api", loc.RelativeFromParent)
	assert.True(t, loc.Nested())
	assert.Equal(t,
		filepath.Join(globalRoot, "projects", parentLoc.ProjectID, "services", "api"),
		loc.StateRoot)
}

// TestLocate_DeepestAncestorWins verifies that with two registered
// ancestors, the closer one is chosen as the parent.
func TestLocate_DeepestAncestorWins(t *testing.T) {
	setupGlobalRoot(t)

	grand := t.TempDir()
	mid := filepath.Join(grand, "mid")
	leaf := filepath.Join(mid, "leaf")
	require.NoError(t, os.MkdirAll(leaf, 0o755))

	for _, p := range []string{grand, mid} {
		l, err := Locate(context.Background(), p)
		require.NoError(t, err)
		require.NoError(t, EnsureLayout(l))
		ResetCache()
	}

	midLoc, err := Locate(context.Background(), mid)
	require.NoError(t, err)
	ResetCache()

	loc, err := Locate(context.Background(), leaf)
	require.NoError(t, err)
	assert.Equal(t, midLoc.ProjectID, loc.ParentProjectID)
	assert.Equal(t, "leaf", loc.RelativeFromParent)
}

// TestLocate_Caching verifies repeated lookups return the cached value and
// that ResetCache forces re-resolution.
func TestLocate_Caching(t *testing.T) {
	setupGlobalRoot(t)
	parent := t.TempDir()
	child := filepath.Join(parent, "sub")
	require.NoError(t, os.MkdirAll(child, 0o755))

	first, err := Locate(context.Background(), child)
	require.NoError(t, err)
	require.False(t, first.Nested())

	// Registering the parent after the first lookup must not change the
	// cached result until the cache is cleared.
	parentLoc, err := Locate(context.Background(), parent)
	require.NoError(t, err)
	require.NoError(t, EnsureLayout(parentLoc))

	cached, err := Locate(context.Background(), child)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	ResetCache()
	fresh, err := Locate(context.Background(), child)
	require.NoError(t, err)
	assert.True(t, fresh.Nested())
}

// TestLocate_RelativePath verifies relative inputs resolve against the
// working directory.
func TestLocate_RelativePath(t *testing.T) {
	setupGlobalRoot(t)

	loc, err := Locate(context.Background(), ".")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(loc.ProjectPath))
	assert.True(t, filepath.IsAbs(loc.StateRoot))
}

func TestEnsureLayout(t *testing.T) {
	setupGlobalRoot(t)
	project := t.TempDir()

	loc, err := Locate(context.Background(), project)
	require.NoError(t, err)
	require.NoError(t, EnsureLayout(loc))

	for _, dir := range []string{CLIHistoryDirName, MemoryDirName, CacheDirName, ConfigDirName} {
		info, err := os.Stat(filepath.Join(loc.StateRoot, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}

	record, err := ReadRegistryRecord(loc.StateRoot)
	require.NoError(t, err)
	assert.Equal(t, loc.ProjectID, record.ProjectID)
	assert.Equal(t, loc.ProjectPath, record.Path)
	assert.NotEmpty(t, record.CreatedAt)
}

// TestEnsureLayout_PreservesCreatedAt verifies the registry record keeps
// its original creation timestamp across rewrites.
func TestEnsureLayout_PreservesCreatedAt(t *testing.T) {
	setupGlobalRoot(t)
	project := t.TempDir()

	loc, err := Locate(context.Background(), project)
	require.NoError(t, err)
	require.NoError(t, EnsureLayout(loc))

	first, err := ReadRegistryRecord(loc.StateRoot)
	require.NoError(t, err)

	require.NoError(t, EnsureLayout(loc))
	second, err := ReadRegistryRecord(loc.StateRoot)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}
