// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch publishes bus events for session files changed outside
// this process.
//
// The dashboard process never mutates sessions itself; the agent does,
// from its own process, through its own store. Filesystem watching is
// how those cross-process mutations become visible to dashboard
// clients. Every observed change lands on the bus as FILE_WRITTEN with
// the session id inferred from the path.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/ccw/services/workflow/events"
	"github.com/AleutianAI/ccw/services/workflow/store"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	watchEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ccw_watch_events_total",
		Help: "Filesystem events published to the bus by operation",
	}, []string{"op"})

	watchRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccw_watch_events_ratelimited_total",
		Help: "Filesystem events dropped by the rate limiter",
	})
)

// =============================================================================
// Watcher
// =============================================================================

// Options configures a Watcher.
type Options struct {
	// EventsPerSecond caps the sustained publish rate.
	// Default: 20
	EventsPerSecond float64

	// Burst is how many events may pass back-to-back.
	// Default: 50
	Burst int
}

// DefaultOptions returns the limits that keep an editor save storm from
// flooding the bus.
func DefaultOptions() Options {
	return Options{
		EventsPerSecond: 20,
		Burst:           50,
	}
}

// Watcher observes the four session location roots.
//
// Thread Safety: Watcher is safe for concurrent use. Start is
// idempotent per instance; Stop may be called multiple times.
type Watcher struct {
	stateRoot string
	bus       *events.Bus
	watcher   *fsnotify.Watcher
	limiter   *rate.Limiter
	roots     []string

	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// New creates a watcher over a project's session roots. Call Start to
// begin watching.
func New(stateRoot string, bus *events.Bus, opts *Options) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	if opts.EventsPerSecond <= 0 {
		opts.EventsPerSecond = DefaultOptions().EventsPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultOptions().Burst
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	roots := make([]string, 0, 4)
	for _, loc := range []store.Location{
		store.LocationActive, store.LocationArchived,
		store.LocationLitePlan, store.LocationLiteFix,
	} {
		roots = append(roots, filepath.Join(stateRoot, store.WorkflowDirName, loc.DirName()))
	}

	return &Watcher{
		stateRoot: stateRoot,
		bus:       bus,
		watcher:   fsWatcher,
		limiter:   rate.NewLimiter(rate.Limit(opts.EventsPerSecond), opts.Burst),
		roots:     roots,
		done:      make(chan struct{}),
	}, nil
}

// Start creates missing roots, watches them recursively, and begins
// publishing. Watching stops when ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	for _, root := range w.roots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			slog.Warn("session root not watchable",
				slog.String("root", root),
				slog.String("error", err.Error()))
			continue
		}
		if err := w.addRecursive(root); err != nil {
			slog.Warn("session root not watchable",
				slog.String("root", root),
				slog.String("error", err.Error()))
		}
	}

	go w.loop(ctx)
	return nil
}

// Stop ends watching and releases the filesystem handles.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// addRecursive watches a directory and everything below it.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

// loop drains fsnotify until shutdown.
func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("filesystem watch error", slog.String("error", err.Error()))
		}
	}
}

// handle converts one fsnotify event into at most one bus event.
func (w *Watcher) handle(event fsnotify.Event) {
	name := event.Name
	// In-flight atomic writes from another process.
	if strings.HasPrefix(filepath.Base(name), ".tmp-") {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if err := w.addRecursive(name); err != nil {
				slog.Warn("new session directory not watchable",
					slog.String("dir", name),
					slog.String("error", err.Error()))
			}
			return
		}
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	sessionID, rel, ok := w.classify(name)
	if !ok {
		return
	}

	if !w.limiter.Allow() {
		watchRateLimited.Inc()
		slog.Debug("filesystem event rate limited", slog.String("path", name))
		return
	}

	op := "write"
	if event.Has(fsnotify.Create) {
		op = "create"
	}
	watchEvents.WithLabelValues(op).Inc()

	w.bus.Publish(events.Event{
		Type:      events.TypeFileWritten,
		SessionID: sessionID,
		EntityID:  rel,
		Payload: map[string]any{
			"path":     rel,
			"op":       op,
			"external": true,
		},
	})
}

// classify maps an absolute path to (sessionId, path inside the
// session). Paths directly inside a location root, or outside every
// root, are not session file changes.
func (w *Watcher) classify(name string) (string, string, bool) {
	for _, root := range w.roots {
		prefix := root + string(os.PathSeparator)
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rel := filepath.ToSlash(name[len(prefix):])
		parts := strings.SplitN(rel, "/", 2)
		if len(parts) < 2 || parts[1] == "" {
			return "", "", false
		}
		return parts[0], parts[1], true
	}
	return "", "", false
}
