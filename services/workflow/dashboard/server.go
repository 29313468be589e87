// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dashboard serves the local monitoring UI for one project: a
// WebSocket that streams session events, a hook endpoint external agents
// POST mutations to, and read-only snapshot endpoints over the session
// store.
//
// The server binds to localhost and trusts its callers; CORS is wide
// open so a UI dev server on another port can talk to it. Anything that
// is not an API route is reverse-proxied to the UI dev server when one
// is configured.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/ccw/services/workflow"
	"github.com/AleutianAI/ccw/services/workflow/events"
	"github.com/AleutianAI/ccw/services/workflow/locator"
	"github.com/AleutianAI/ccw/services/workflow/store"
)

// shutdownGrace bounds how long Run waits for in-flight requests after
// the context is cancelled.
const shutdownGrace = 5 * time.Second

// Server is the dashboard HTTP server for one project.
type Server struct {
	loc     locator.ProjectLocation
	store   *store.Store
	bus     *events.Bus
	engine  *gin.Engine
	proxy   *httputil.ReverseProxy
	metrics http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithUIProxy routes unmatched paths to a UI dev server.
func WithUIProxy(target *url.URL) Option {
	return func(s *Server) {
		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Warn("ui proxy unreachable",
				slog.String("target", target.String()),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"ui proxy unreachable","code":"UI_PROXY_DOWN"}`))
		}
		s.proxy = proxy
	}
}

// WithMetricsHandler exposes h at GET /metrics. Without this option the
// route is not registered.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewServer assembles the dashboard for one project.
//
// Inputs:
//
//	loc - The project location served by the snapshot endpoints.
//	st - Session store, read for snapshots and facets.
//	bus - Event bus; hook posts publish here and WebSockets subscribe.
func NewServer(loc locator.ProjectLocation, st *store.Store, bus *events.Bus, opts ...Option) *Server {
	s := &Server{
		loc:   loc,
		store: st,
		bus:   bus,
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("ccw-dashboard"))
	engine.Use(corsMiddleware())

	engine.GET("/ws", s.handleWebSocket)
	engine.GET("/health", s.handleHealth)
	if s.metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := engine.Group("/api")
	{
		api.POST("/hook", s.handleHook)
		api.GET("/status/all", s.handleStatusAll)
		api.GET("/session-detail", s.handleSessionDetail)
	}

	engine.NoRoute(s.handleNoRoute)

	s.engine = engine
	return s
}

// Handler returns the assembled HTTP handler. Tests mount it on an
// httptest server; Run wraps it in a real one.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the context is cancelled, then drains in-flight
// requests for up to shutdownGrace.
//
// Description:
//
//	Request contexts derive from ctx via BaseContext, which is how the
//	WebSocket handlers learn about shutdown: Shutdown does not touch
//	hijacked connections, so each /ws loop watches its own request
//	context and closes itself.
//
// Outputs:
//
//	error - nil after a clean shutdown, an IO error if the listener
//	  fails.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("dashboard listening",
		slog.String("address", addr),
		slog.String("project_id", s.loc.ProjectID))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("dashboard shutdown incomplete", slog.String("error", err.Error()))
		}
		<-errCh
		slog.Info("dashboard stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%w: dashboard server: %v", workflow.ErrIO, err)
	}
}

// corsMiddleware allows any origin. The dashboard serves localhost
// tooling; its UI may be loaded from a dev server on a different port.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
