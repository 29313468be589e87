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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/ccw/pkg/validation"
	"github.com/AleutianAI/ccw/services/workflow"
)

// On-disk names inside a session directory.
const (
	WorkflowDirName  = ".workflow"
	SessionFileName  = "workflow-session.json"
	ContextFileName  = "context-package.json"
	PlanFileName     = "IMPL_PLAN.md"
	LitePlanFileName = "plan.json"
	TaskDirName      = ".task"
	SummariesDirName = ".summaries"
	ProcessDirName   = ".process"
	ReviewDirName    = ".review"
)

// Content types accepted by the store.
const (
	ContentSession = "session"
	ContentTask    = "task"
	ContentSummary = "summary"
	ContentContext = "context"
	ContentPlan    = "plan"
	ContentReview  = "review"
	ContentProcess = "process"
	ContentStatus  = "status"
)

// ContentTypes lists every content type the store accepts, in the order
// tools advertise them.
var ContentTypes = []string{
	ContentSession, ContentTask, ContentSummary, ContentContext,
	ContentPlan, ContentReview, ContentProcess, ContentStatus,
}

// contentRelPath derives the file path, relative to the session
// directory, for a content type.
//
// Description:
//
//	Every user-supplied path fragment (taskId, filename, dimension) is
//	validated against the identifier charset before it is joined, so a
//	fragment can never introduce a separator or a dot-dot segment. A
//	missing fragment is a parameter error; a malformed one is an invalid
//	path error.
func contentRelPath(contentType string, loc Location, params map[string]string) (string, error) {
	switch contentType {
	case ContentSession:
		return SessionFileName, nil
	case ContentContext:
		return ContextFileName, nil
	case ContentPlan:
		if loc == LocationLitePlan || loc == LocationLiteFix {
			return LitePlanFileName, nil
		}
		return PlanFileName, nil
	case ContentTask:
		taskID, err := requireParam(params, "taskId", contentType)
		if err != nil {
			return "", err
		}
		return filepath.Join(TaskDirName, taskID+".json"), nil
	case ContentSummary:
		name, err := requireParam(params, "filename", contentType)
		if err != nil {
			return "", err
		}
		return filepath.Join(SummariesDirName, name), nil
	case ContentProcess:
		name, err := requireParam(params, "filename", contentType)
		if err != nil {
			return "", err
		}
		return filepath.Join(ProcessDirName, name), nil
	case ContentReview:
		dimension, err := requireParam(params, "dimension", contentType)
		if err != nil {
			return "", err
		}
		return filepath.Join(ReviewDirName, dimension+".json"), nil
	case ContentStatus:
		return "", fmt.Errorf("%w: content type %q is computed, not stored", workflow.ErrParameter, ContentStatus)
	default:
		return "", fmt.Errorf("%w: unknown content type %q", workflow.ErrParameter, contentType)
	}
}

// requireParam fetches and validates one pathParams fragment.
func requireParam(params map[string]string, key, contentType string) (string, error) {
	value, ok := params[key]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: content type %q requires pathParams.%s", workflow.ErrParameter, contentType, key)
	}
	if err := validation.ValidateIdentifier(value); err != nil {
		return "", fmt.Errorf("%w: pathParams.%s: %v", workflow.ErrInvalidPath, key, err)
	}
	return value, nil
}

// containedJoin joins rel onto dir and verifies the result stays inside
// dir. Identifier validation already prevents traversal; this is the
// final check the derivation contract demands on every resolved path.
func containedJoin(dir, rel string) (string, error) {
	target := filepath.Clean(filepath.Join(dir, rel))
	if target != dir && !strings.HasPrefix(target, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q resolves outside the session directory", workflow.ErrInvalidPath, rel)
	}
	return target, nil
}

// isJSONTarget reports whether a derived path stores a JSON document.
func isJSONTarget(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
