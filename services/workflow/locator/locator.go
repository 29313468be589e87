// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package locator maps a project path to its on-disk state root.
//
// Every project gets a directory under <globalRoot>/projects keyed by a
// slug of its absolute path. When an ancestor directory of the project has
// its own state root, the child's state root nests inside the ancestor's
// at the relative path between them; that rule keeps a repo and its
// embedded subprojects in one tree. Lookups are cached process-wide.
//
// Thread Safety:
//
//	All exported functions are safe for concurrent use.
package locator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/ccw/services/workflow"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DefaultDataDirName is the global root directory under $HOME when
	// CCW_DATA_DIR is not set.
	DefaultDataDirName = ".ccw"

	// EnvDataDir overrides the global root directory.
	EnvDataDir = "CCW_DATA_DIR"

	// projectsDirName holds one subdirectory per known project.
	projectsDirName = "projects"

	// idSeparator replaces path separators and drive colons in project ids.
	idSeparator = "--"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccw_locator_cache_hits_total",
		Help: "Total project location cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccw_locator_cache_misses_total",
		Help: "Total project location cache misses",
	})

	migrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccw_locator_migrations_total",
		Help: "Total flat-to-nested state root migrations performed",
	})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var locatorTracer = otel.Tracer("ccw.workflow.locator")

// =============================================================================
// Types
// =============================================================================

// ProjectLocation identifies where a project's state is persisted.
// Derived solely from the absolute, normalized project path.
type ProjectLocation struct {
	// ProjectID is the slug of the normalized project path.
	ProjectID string `json:"projectId"`

	// ParentProjectID is the slug of the deepest ancestor that has its
	// own state root. Empty when the project is stored flat.
	ParentProjectID string `json:"parentProjectId,omitempty"`

	// RelativeFromParent is the forward-slash path from the parent
	// project to this one. Empty when ParentProjectID is empty.
	RelativeFromParent string `json:"relativeFromParent,omitempty"`

	// StateRoot is the absolute directory holding all state for this
	// project: the .workflow session tree, cli-history, memory, cache,
	// and config.
	StateRoot string `json:"stateRoot"`

	// ProjectPath is the normalized absolute project path the location
	// was derived from.
	ProjectPath string `json:"projectPath"`
}

// Nested reports whether the state root lives inside a parent project's
// state root.
func (l ProjectLocation) Nested() bool {
	return l.ParentProjectID != ""
}

// =============================================================================
// Process-Wide Cache
// =============================================================================

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]ProjectLocation)
)

// ResetCache clears the process-wide location cache.
//
// Tests use this after changing CCW_DATA_DIR or rearranging state
// directories; production callers use it when a migration tool has moved
// state behind the process's back.
func ResetCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = make(map[string]ProjectLocation)
}

// =============================================================================
// Lookup
// =============================================================================

// GlobalRoot returns the directory that holds all ccw state:
// CCW_DATA_DIR when set, otherwise ~/.ccw.
func GlobalRoot() string {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// No home directory: fall back to a dotdir in the working dir.
		return DefaultDataDirName
	}
	return filepath.Join(home, DefaultDataDirName)
}

// Locate resolves a project path to its ProjectLocation.
//
// Description:
//
//	Normalizes the path, derives the project id, walks ancestors to find
//	the deepest one with an existing project directory, composes the
//	state root (nested under the parent when one exists), and performs
//	the one-shot flat-to-nested migration when applicable. Results are
//	cached per normalized path; Locate performs no writes on the cached
//	fast path.
//
// Inputs:
//
//	ctx - Context for tracing.
//	projectPath - Absolute or relative project directory path. Relative
//	  paths are resolved against the working directory.
//
// Outputs:
//
//	ProjectLocation - The resolved location.
//	error - Non-nil only if the path cannot be made absolute.
//
// Thread Safety: Safe for concurrent use.
func Locate(ctx context.Context, projectPath string) (ProjectLocation, error) {
	normPath, err := normalizePath(projectPath)
	if err != nil {
		return ProjectLocation{}, fmt.Errorf("%w: resolving project path %q: %v", workflow.ErrIO, projectPath, err)
	}

	cacheMu.RLock()
	if loc, ok := cache[normPath]; ok {
		cacheMu.RUnlock()
		cacheHits.Inc()
		return loc, nil
	}
	cacheMu.RUnlock()
	cacheMisses.Inc()

	_, span := locatorTracer.Start(ctx, "locator.Locate")
	defer span.End()

	loc := resolveLocation(normPath)
	span.SetAttributes(
		attribute.String("project_id", loc.ProjectID),
		attribute.Bool("nested", loc.Nested()),
	)

	maybeMigrateFlatTree(loc)

	cacheMu.Lock()
	cache[normPath] = loc
	cacheMu.Unlock()

	return loc, nil
}

// resolveLocation computes a ProjectLocation without touching the cache.
func resolveLocation(normPath string) ProjectLocation {
	projectsRoot := filepath.Join(GlobalRoot(), projectsDirName)
	projectID := ProjectID(normPath)

	loc := ProjectLocation{
		ProjectID:   projectID,
		ProjectPath: normPath,
	}

	if parentPath, parentID := findParentProject(normPath, projectsRoot); parentID != "" {
		rel, err := filepath.Rel(parentPath, normPath)
		if err == nil {
			loc.ParentProjectID = parentID
			loc.RelativeFromParent = filepath.ToSlash(rel)
			loc.StateRoot = filepath.Join(projectsRoot, parentID, filepath.FromSlash(loc.RelativeFromParent))
			return loc
		}
	}

	loc.StateRoot = filepath.Join(projectsRoot, projectID)
	return loc
}

// findParentProject walks the ancestors of normPath from deepest to
// shallowest and returns the first one whose project directory exists.
func findParentProject(normPath, projectsRoot string) (parentPath, parentID string) {
	dir := filepath.Dir(normPath)
	for {
		if dir == normPath || dir == filepath.Dir(dir) {
			// Reached the filesystem root.
			return "", ""
		}
		candidateID := ProjectID(dir)
		info, err := os.Stat(filepath.Join(projectsRoot, candidateID))
		if err == nil && info.IsDir() {
			return dir, candidateID
		}
		dir = filepath.Dir(dir)
	}
}

// ProjectID derives the slug for a normalized project path by replacing
// path separators and the drive-letter colon with "--".
//
// Example: /home/dev/api -> --home--dev--api
func ProjectID(normPath string) string {
	id := normPath
	id = strings.ReplaceAll(id, "/", idSeparator)
	id = strings.ReplaceAll(id, `\`, idSeparator)
	id = strings.ReplaceAll(id, ":", idSeparator)
	return id
}

// normalizePath makes the path absolute, cleans it, and lower-cases it on
// OSes whose filesystems are case-insensitive by default.
func normalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)
	if caseInsensitiveFS() {
		abs = strings.ToLower(abs)
	}
	return abs, nil
}

// caseInsensitiveFS reports whether the default filesystem folds case.
func caseInsensitiveFS() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}
