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
	"fmt"
	"sync"

	"github.com/AleutianAI/ccw/services/workflow"
	"github.com/AleutianAI/ccw/services/workflow/search"
)

// Search actions.
const (
	SearchActionStatus    = "status"
	SearchActionSearch    = "search"
	SearchActionFindFiles = "find_files"
	SearchActionInit      = "init"
)

// SmartSearch wraps the project search index as a tool.
//
// The index database opens lazily on first use and stays open for the
// life of the tool, so repeated searches do not pay badger's open cost.
// Close releases it.
//
// Thread Safety: SmartSearch is safe for concurrent use.
type SmartSearch struct {
	projectRoot string
	stateRoot   string

	mu    sync.Mutex
	index *search.Index
}

// NewSmartSearch creates the smart_search tool for one project. The
// index lives under the project's state root cache directory.
func NewSmartSearch(projectRoot, stateRoot string) *SmartSearch {
	return &SmartSearch{projectRoot: projectRoot, stateRoot: stateRoot}
}

// Name returns "smart_search".
func (t *SmartSearch) Name() string { return "smart_search" }

// Definition describes the smart_search parameters.
func (t *SmartSearch) Definition() Definition {
	return Definition{
		Name: "smart_search",
		Description: "Search the project: content search (search), file name globs " +
			"(find_files), index freshness and project metadata (status), and " +
			"index rebuild (init).",
		SideEffects: true,
		Parameters: map[string]ParamDef{
			"action": {
				Type:        ParamTypeString,
				Description: "Search action to perform.",
				Required:    true,
				Enum:        []any{SearchActionStatus, SearchActionSearch, SearchActionFindFiles, SearchActionInit},
			},
			"query": {
				Type:        ParamTypeString,
				Description: "Content query for search: a regular expression, or literal text when the pattern does not compile.",
			},
			"pattern": {
				Type:        ParamTypeString,
				Description: "Glob pattern for find_files (matched against file names and project-relative paths).",
			},
			"path": {
				Type:        ParamTypeString,
				Description: "Restrict search or find_files to one subtree, relative to the project root.",
			},
			"limit": {
				Type:        ParamTypeInt,
				Description: "Maximum results to return.",
				Default:     search.DefaultLimit,
			},
			"offset": {
				Type:        ParamTypeInt,
				Description: "Results to skip, for pagination.",
			},
			"caseSensitive": {
				Type:        ParamTypeBool,
				Description: "Match content case-sensitively.",
			},
		},
	}
}

// Execute dispatches the action against the index.
func (t *SmartSearch) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	action := stringArg(params, "action")

	opts := search.QueryOptions{
		Limit:         intArg(params, "limit", 0),
		Offset:        intArg(params, "offset", 0),
		CaseSensitive: boolArg(params, "caseSensitive"),
		Path:          stringArg(params, "path"),
	}

	index, err := t.openIndex()
	if err != nil {
		return nil, err
	}

	switch action {
	case SearchActionStatus:
		status, err := index.Stats(ctx)
		if err != nil {
			return nil, err
		}
		return jsonResult(status)

	case SearchActionSearch:
		query := stringArg(params, "query")
		if query == "" {
			return nil, &ValidationError{Parameter: "query", Message: "Parameter query is required"}
		}
		matches, err := index.Search(ctx, query, opts)
		if err != nil {
			return nil, err
		}
		return jsonResult(map[string]any{
			"matches": matches,
			"count":   len(matches),
		})

	case SearchActionFindFiles:
		pattern := stringArg(params, "pattern")
		if pattern == "" {
			return nil, &ValidationError{Parameter: "pattern", Message: "Parameter pattern is required"}
		}
		files, err := index.FindFiles(ctx, pattern, opts)
		if err != nil {
			return nil, err
		}
		return jsonResult(map[string]any{
			"files": files,
			"count": len(files),
		})

	case SearchActionInit:
		built, err := index.Build(ctx)
		if err != nil {
			return nil, err
		}
		return jsonResult(built)

	default:
		return nil, fmt.Errorf("%w: unknown action %q", workflow.ErrParameter, action)
	}
}

// Close releases the index database if it was opened.
func (t *SmartSearch) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index == nil {
		return nil
	}
	err := t.index.Close()
	t.index = nil
	return err
}

// openIndex opens the database on first use.
func (t *SmartSearch) openIndex() (*search.Index, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index != nil {
		return t.index, nil
	}
	index, err := search.OpenAt(t.projectRoot, t.stateRoot)
	if err != nil {
		return nil, err
	}
	t.index = index
	return index, nil
}
