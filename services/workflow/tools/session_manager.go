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
	"fmt"

	"github.com/AleutianAI/ccw/services/workflow/store"
)

// SessionManager exposes the session store as a tool. It is a thin
// mapping layer: arguments become a store.Request, the store.Response
// is JSON-stringified into the result text, and store failures surface
// as error results rather than Go errors so the agent sees the full
// `{success:false, error}` envelope.
type SessionManager struct {
	store *store.Store
}

// NewSessionManager creates the session_manager tool over a store.
func NewSessionManager(st *store.Store) *SessionManager {
	return &SessionManager{store: st}
}

// Name returns "session_manager".
func (t *SessionManager) Name() string { return "session_manager" }

// Definition describes the session_manager parameters.
func (t *SessionManager) Definition() Definition {
	operations := make([]any, len(store.Operations))
	for i, op := range store.Operations {
		operations[i] = op
	}
	contentTypes := make([]any, len(store.ContentTypes))
	for i, ct := range store.ContentTypes {
		contentTypes[i] = ct
	}

	return Definition{
		Name: "session_manager",
		Description: "Manage workflow session state: initialize sessions, read and " +
			"write session documents (tasks, summaries, context, plan, reviews), " +
			"merge updates, archive completed sessions, and list sessions.",
		SideEffects: true,
		Parameters: map[string]ParamDef{
			"operation": {
				Type:        ParamTypeString,
				Description: "Store operation to perform.",
				Required:    true,
				Enum:        operations,
			},
			"sessionId": {
				Type:        ParamTypeString,
				Description: "Session identifier. Required by every operation except list.",
			},
			"type": {
				Type:        ParamTypeString,
				Description: "Session type for init (workflow, lite-plan, lite-fix, review, review-cycle, test-fix, fix).",
				Default:     "workflow",
			},
			"contentType": {
				Type:        ParamTypeString,
				Description: "Document to address within the session.",
				Enum:        contentTypes,
				Default:     store.ContentSession,
			},
			"pathParams": {
				Type:        ParamTypeObject,
				Description: "Path parameters for parameterized content types (taskId, filename, dimension).",
			},
			"content": {
				Description: "Document content for write/update: a JSON object, or a string (JSON for .json targets, free text for plan).",
			},
			"location": {
				Type:        ParamTypeString,
				Description: "Location filter for list: active, archived, lite-plan, lite-fix, or all.",
				Default:     "all",
			},
			"metadata": {
				Type:        ParamTypeObject,
				Description: "Initial metadata merged into the session header on init.",
			},
			"updateStatus": {
				Type:        ParamTypeBool,
				Description: "On archive, mark the session completed and stamp archivedAt before moving.",
			},
			"includeMetadata": {
				Type:        ParamTypeBool,
				Description: "On list, include each session's metadata in the entries.",
			},
		},
	}
}

// Execute dispatches the operation to the store.
func (t *SessionManager) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	req := store.Request{
		Operation:       stringArg(params, "operation"),
		SessionID:       stringArg(params, "sessionId"),
		SessionType:     stringArg(params, "type"),
		ContentType:     stringArg(params, "contentType"),
		PathParams:      stringMapArg(params, "pathParams"),
		Content:         params["content"],
		Location:        stringArg(params, "location"),
		Metadata:        objectArg(params, "metadata"),
		UpdateStatus:    boolArg(params, "updateStatus"),
		IncludeMetadata: boolArg(params, "includeMetadata"),
	}

	resp := t.store.Dispatch(ctx, req)

	encoded, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encoding store response: %w", err)
	}
	return &Result{Text: string(encoded), IsError: !resp.Success}, nil
}

// =============================================================================
// Argument Extraction
// =============================================================================

// stringArg returns a string argument or "" when absent.
func stringArg(params map[string]any, key string) string {
	if value, ok := params[key].(string); ok {
		return value
	}
	return ""
}

// boolArg returns a boolean argument or false when absent.
func boolArg(params map[string]any, key string) bool {
	if value, ok := params[key].(bool); ok {
		return value
	}
	return false
}

// objectArg returns an object argument or nil when absent.
func objectArg(params map[string]any, key string) map[string]any {
	if value, ok := params[key].(map[string]any); ok {
		return value
	}
	return nil
}

// stringMapArg flattens an object argument to string values. Non-string
// values are formatted, so numeric path parameters still address files.
func stringMapArg(params map[string]any, key string) map[string]string {
	object, ok := params[key].(map[string]any)
	if !ok || len(object) == 0 {
		return nil
	}
	result := make(map[string]string, len(object))
	for k, v := range object {
		if s, ok := v.(string); ok {
			result[k] = s
			continue
		}
		result[k] = fmt.Sprint(v)
	}
	return result
}

// intArg returns an integer argument accepting json number forms, with
// a default when absent.
func intArg(params map[string]any, key string, def int) int {
	switch value := params[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return def
	}
}
