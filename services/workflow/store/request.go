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
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/ccw/services/workflow"
)

// Operation names accepted by Dispatch.
const (
	OpInit    = "init"
	OpRead    = "read"
	OpWrite   = "write"
	OpUpdate  = "update"
	OpArchive = "archive"
	OpList    = "list"
)

// Operations lists every operation, in the order tools advertise them.
var Operations = []string{OpInit, OpRead, OpWrite, OpUpdate, OpArchive, OpList}

// Request is the operation envelope the session_manager tool hands the
// store. Fields beyond Operation are operation-specific.
type Request struct {
	Operation       string            `json:"operation"`
	SessionID       string            `json:"sessionId,omitempty"`
	SessionType     string            `json:"type,omitempty"`
	ContentType     string            `json:"contentType,omitempty"`
	PathParams      map[string]string `json:"pathParams,omitempty"`
	Content         any               `json:"content,omitempty"`
	Location        string            `json:"location,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
	UpdateStatus    bool              `json:"updateStatus,omitempty"`
	IncludeMetadata bool              `json:"includeMetadata,omitempty"`
}

// Response is the uniform result shape at the store's API boundary.
// Errors never cross this boundary as Go errors; they are folded into
// the Error string as "<kind>: <detail>".
type Response struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

func success(result any) Response {
	return Response{Success: true, Result: result}
}

func failure(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// Dispatch routes one request envelope to its operation.
//
// Description:
//
//	Defaults: contentType falls back to "session", init's type to
//	"workflow", list's location to "all". Content may arrive either as
//	a decoded JSON value or as a string of JSON; both forms reach the
//	same operation.
func (s *Store) Dispatch(ctx context.Context, req Request) Response {
	switch req.Operation {
	case OpInit:
		sessionType := SessionType(req.SessionType)
		if req.SessionType == "" {
			sessionType = TypeWorkflow
		}
		sess, err := s.Init(ctx, req.SessionID, sessionType, req.Metadata)
		if err != nil {
			return failure(err)
		}
		return success(sess)

	case OpRead:
		value, err := s.Read(ctx, req.SessionID, defaultContentType(req.ContentType), req.PathParams)
		if err != nil {
			return failure(err)
		}
		return success(value)

	case OpWrite:
		rel, err := s.Write(ctx, req.SessionID, defaultContentType(req.ContentType), req.PathParams, req.Content)
		if err != nil {
			return failure(err)
		}
		return success(map[string]any{
			"sessionId": req.SessionID,
			"path":      rel,
		})

	case OpUpdate:
		patch, err := coerceObject(req.Content)
		if err != nil {
			return failure(err)
		}
		merged, err := s.Update(ctx, req.SessionID, defaultContentType(req.ContentType), req.PathParams, patch)
		if err != nil {
			return failure(err)
		}
		return success(merged)

	case OpArchive:
		sess, err := s.Archive(ctx, req.SessionID, req.UpdateStatus)
		if err != nil {
			return failure(err)
		}
		return success(sess)

	case OpList:
		location := req.Location
		if location == "" {
			location = "all"
		}
		entries, err := s.List(ctx, location, req.IncludeMetadata)
		if err != nil {
			return failure(err)
		}
		return success(map[string]any{
			"sessions": entries,
			"count":    len(entries),
		})

	default:
		return failure(fmt.Errorf("%w: unknown operation %q", workflow.ErrParameter, req.Operation))
	}
}

func defaultContentType(contentType string) string {
	if contentType == "" {
		return ContentSession
	}
	return contentType
}

// coerceObject accepts a JSON object either decoded or as a string.
func coerceObject(content any) (map[string]any, error) {
	switch value := content.(type) {
	case map[string]any:
		return value, nil
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			return nil, fmt.Errorf("%w: update content must be a JSON object: %v", workflow.ErrParameter, err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: update content must be a JSON object", workflow.ErrParameter)
	}
}
