// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/ccw/services/workflow"
)

// Facet names the dashboard detail endpoint can lazily load.
const (
	FacetTasks    = "tasks"
	FacetContext  = "context"
	FacetSummary  = "summary"
	FacetImplPlan = "impl-plan"
	FacetReview   = "review"
)

// Facets lists every facet name, in the order the dashboard offers them.
var Facets = []string{FacetTasks, FacetContext, FacetSummary, FacetImplPlan, FacetReview}

// Facet loads one view of a session directory.
//
// Description:
//
//	sessionDir is caller-supplied (it arrives on an HTTP query string),
//	so it is canonicalized and must land directly inside one of this
//	project's four location roots; anything else is an invalid path.
func (s *Store) Facet(ctx context.Context, sessionDir, facet string) (any, error) {
	_, span := storeTracer.Start(ctx, "store.facet")
	defer span.End()

	dir, err := s.containSessionDir(sessionDir)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	switch facet {
	case FacetTasks:
		return readDocList(filepath.Join(dir, TaskDirName))
	case FacetContext:
		return readJSONValue(filepath.Join(dir, ContextFileName))
	case FacetSummary:
		return readSummaries(filepath.Join(dir, SummariesDirName))
	case FacetImplPlan:
		text, planErr := readTextFile(filepath.Join(dir, PlanFileName))
		if errors.Is(planErr, workflow.ErrNotFound) {
			return readTextFile(filepath.Join(dir, LitePlanFileName))
		}
		return text, planErr
	case FacetReview:
		return readDocMap(filepath.Join(dir, ReviewDirName))
	default:
		err := fmt.Errorf("%w: unknown facet %q", workflow.ErrParameter, facet)
		recordSpanError(span, err)
		return nil, err
	}
}

// containSessionDir canonicalizes a caller-supplied directory and
// verifies it is a direct child of one of the four location roots.
func (s *Store) containSessionDir(sessionDir string) (string, error) {
	if sessionDir == "" {
		return "", fmt.Errorf("%w: path is required", workflow.ErrParameter)
	}
	abs, err := filepath.Abs(sessionDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", workflow.ErrInvalidPath, err)
	}
	target := canonicalPath(abs)
	for _, loc := range searchOrder {
		if filepath.Dir(target) != canonicalPath(s.locationRoot(loc)) {
			continue
		}
		if !dirExists(target) {
			return "", fmt.Errorf("%w: session directory %s", workflow.ErrNotFound, filepath.Base(target))
		}
		return target, nil
	}
	return "", fmt.Errorf("%w: %q is not a session directory of this project", workflow.ErrInvalidPath, sessionDir)
}

// canonicalPath resolves symlinks when the path exists, else cleans.
func canonicalPath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

// readDocList loads every JSON document in a directory, name order.
// Unreadable documents are skipped with a warning.
func readDocList(dir string) ([]any, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []any{}, nil
		}
		return nil, fmt.Errorf("%w: listing %s: %v", workflow.ErrIO, filepath.Base(dir), err)
	}
	docs := make([]any, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		value, readErr := readJSONValue(filepath.Join(dir, entry.Name()))
		if readErr != nil {
			slog.Warn("document unreadable",
				slog.String("file", entry.Name()),
				slog.String("error", readErr.Error()))
			continue
		}
		docs = append(docs, value)
	}
	return docs, nil
}

// readDocMap loads every JSON document in a directory keyed by its
// filename without the extension.
func readDocMap(dir string) (map[string]any, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("%w: listing %s: %v", workflow.ErrIO, filepath.Base(dir), err)
	}
	docs := make(map[string]any, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		value, readErr := readJSONValue(filepath.Join(dir, entry.Name()))
		if readErr != nil {
			slog.Warn("document unreadable",
				slog.String("file", entry.Name()),
				slog.String("error", readErr.Error()))
			continue
		}
		docs[strings.TrimSuffix(entry.Name(), ".json")] = value
	}
	return docs, nil
}

// readSummaries loads every summary artifact as {name, content}.
func readSummaries(dir string) ([]map[string]any, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []map[string]any{}, nil
		}
		return nil, fmt.Errorf("%w: listing %s: %v", workflow.ErrIO, filepath.Base(dir), err)
	}
	summaries := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, readErr := readTextFile(filepath.Join(dir, entry.Name()))
		if readErr != nil {
			slog.Warn("summary unreadable",
				slog.String("file", entry.Name()),
				slog.String("error", readErr.Error()))
			continue
		}
		summaries = append(summaries, map[string]any{
			"name":    entry.Name(),
			"content": content,
		})
	}
	return summaries, nil
}
