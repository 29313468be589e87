// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dashboard

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/ccw/services/workflow"
	"github.com/AleutianAI/ccw/services/workflow/events"
	"github.com/AleutianAI/ccw/services/workflow/store"
)

var hookSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "ccw_hook_request_seconds",
	Help:    "Hook endpoint latency in seconds",
	Buckets: prometheus.DefBuckets,
})

var hookValidate *validator.Validate

func init() {
	hookValidate = validator.New()
}

// ErrorResponse is the JSON body for every non-2xx reply.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}

// HookEnvelope is the body of POST /api/hook. External agents post one
// envelope per mutation they performed outside this process.
type HookEnvelope struct {
	Type      string         `json:"type" validate:"required,oneof=SESSION_CREATED SESSION_UPDATED SESSION_ARCHIVED TASK_CREATED TASK_UPDATED FILE_WRITTEN"`
	SessionID string         `json:"sessionId" validate:"omitempty,max=256"`
	EntityID  string         `json:"entityId" validate:"omitempty,max=1024"`
	Payload   map[string]any `json:"payload"`
}

// StatusAllResponse is the body of GET /api/status/all.
type StatusAllResponse struct {
	ProjectID   string                `json:"projectId"`
	ProjectPath string                `json:"projectPath"`
	StateRoot   string                `json:"stateRoot"`
	Sessions    []store.SessionDigest `json:"sessions"`
}

// SessionDetailResponse is the body of GET /api/session-detail.
type SessionDetailResponse struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleHook handles POST /api/hook.
//
// Description:
//
//	Validates the envelope and publishes it on the bus synchronously.
//	Publish never blocks, so the response is immediate; agent hooks sit
//	on the critical path of every tool call and must not stall it.
//
// Response:
//
//	200 OK: {status: ok}
//	400 Bad Request: malformed JSON or failed validation
func (s *Server) handleHook(c *gin.Context) {
	start := time.Now()
	defer func() {
		hookSeconds.Observe(time.Since(start).Seconds())
	}()

	var env HookEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		slog.Warn("hook envelope unreadable", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid JSON body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if err := hookValidate.Struct(&env); err != nil {
		slog.Warn("hook envelope rejected",
			slog.String("type", env.Type),
			slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_EVENT",
		})
		return
	}

	s.bus.Publish(events.Event{
		Type:      events.Type(env.Type),
		SessionID: env.SessionID,
		EntityID:  env.EntityID,
		Payload:   env.Payload,
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStatusAll handles GET /api/status/all.
//
// Response:
//
//	200 OK: StatusAllResponse with a digest per session across all four
//	  locations
//	500 Internal Server Error: a location root was unreadable
func (s *Server) handleStatusAll(c *gin.Context) {
	digests, err := s.store.Digests(c.Request.Context())
	if err != nil {
		slog.Error("status snapshot failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "STATUS_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, StatusAllResponse{
		ProjectID:   s.loc.ProjectID,
		ProjectPath: s.loc.ProjectPath,
		StateRoot:   s.loc.StateRoot,
		Sessions:    digests,
	})
}

// handleSessionDetail handles GET /api/session-detail.
//
// Query Parameters:
//
//	path: session directory, must resolve inside one of the project's
//	  location roots
//	type: tasks | context | summary | impl-plan | review
//
// Response:
//
//	200 OK: SessionDetailResponse
//	400 Bad Request: path outside the location roots, or unknown facet
//	404 Not Found: the directory does not exist
func (s *Server) handleSessionDetail(c *gin.Context) {
	path := c.Query("path")
	facet := c.Query("type")

	value, err := s.store.Facet(c.Request.Context(), path, facet)
	if err != nil {
		status := http.StatusBadRequest
		code := "INVALID_REQUEST"
		switch {
		case errors.Is(err, workflow.ErrNotFound):
			status, code = http.StatusNotFound, "NOT_FOUND"
		case errors.Is(err, workflow.ErrInvalidPath):
			code = "INVALID_PATH"
		case errors.Is(err, workflow.ErrParameter):
			code = "INVALID_PARAMETER"
		case errors.Is(err, workflow.ErrIO), errors.Is(err, workflow.ErrParse):
			status, code = http.StatusInternalServerError, "READ_FAILED"
		}
		slog.Warn("session detail rejected",
			slog.String("path", path),
			slog.String("facet", facet),
			slog.String("error", err.Error()))
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	c.JSON(http.StatusOK, SessionDetailResponse{
		Path: path,
		Type: facet,
		Data: value,
	})
}

// handleNoRoute proxies unmatched paths to the UI dev server when one is
// configured, else replies 404. This is what lets one port serve both
// the API and a hot-reloading UI.
func (s *Server) handleNoRoute(c *gin.Context) {
	if s.proxy != nil {
		s.proxy.ServeHTTP(c.Writer, c.Request)
		return
	}
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error: "no such route: " + c.Request.URL.Path,
		Code:  "NOT_FOUND",
	})
}
