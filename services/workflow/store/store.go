// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store is the single entry point over all session state on disk:
// the header, tasks, summaries, context package, plan, review findings,
// and process artifacts of every workflow session.
//
// Guarantees:
//   - every write is an atomic temp+rename to a sibling temp file
//   - every successful mutation emits exactly one event, after the
//     filesystem state is durable
//   - every derived path is validated to stay inside its session
//     directory
//   - concurrent updates to the same document are last-write-wins with
//     no torn JSON
//
// Thread Safety: Store is safe for concurrent use. No lock is held
// across a read-merge-write cycle; that is what makes update
// last-write-wins.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ccw/pkg/validation"
	"github.com/AleutianAI/ccw/services/workflow"
	"github.com/AleutianAI/ccw/services/workflow/events"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	storeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ccw_store_operations_total",
		Help: "Total store operations by operation and outcome",
	}, []string{"operation", "status"})

	storeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ccw_store_operation_seconds",
		Help:    "Store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

var storeTracer = otel.Tracer("ccw.workflow.store")

// instrument starts the clock for one operation and returns the
// completion callback that records counter and latency.
func instrument(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		status := "success"
		if err != nil {
			status = "error"
		}
		storeOperations.WithLabelValues(operation, status).Inc()
		storeLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// recordSpanError marks the span failed when err is non-nil.
func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// =============================================================================
// Store
// =============================================================================

// Store owns all session state under one project's state root.
type Store struct {
	stateRoot string
	bus       *events.Bus
}

// Option configures a Store.
type Option func(*Store)

// WithBus attaches the event bus mutations publish to. Without a bus the
// store still works; mutations simply go unannounced.
func WithBus(bus *events.Bus) Option {
	return func(s *Store) {
		s.bus = bus
	}
}

// New creates a Store rooted at the project's state root. The directory
// tree is created lazily as sessions are initialized.
func New(stateRoot string, opts ...Option) *Store {
	s := &Store{stateRoot: stateRoot}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StateRoot returns the absolute state root this store owns.
func (s *Store) StateRoot() string {
	return s.stateRoot
}

// locationRoot returns the absolute directory of one session root.
func (s *Store) locationRoot(loc Location) string {
	return filepath.Join(s.stateRoot, WorkflowDirName, loc.DirName())
}

// sessionDir returns the absolute directory of a session in a location.
func (s *Store) sessionDir(loc Location, sessionID string) string {
	return filepath.Join(s.locationRoot(loc), sessionID)
}

// findSession locates an existing session, searching active, the lite
// roots, then archives.
func (s *Store) findSession(sessionID string) (Location, string, error) {
	for _, loc := range searchOrder {
		dir := s.sessionDir(loc, sessionID)
		if dirExists(dir) {
			return loc, dir, nil
		}
	}
	return "", "", fmt.Errorf("%w: session %q", workflow.ErrNotFound, sessionID)
}

// emit publishes one event when a bus is attached.
func (s *Store) emit(event events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event)
}

// =============================================================================
// Operations
// =============================================================================

// Init creates a new session.
//
// Description:
//
//	Creates the session directory under the location root its type
//	dictates, the .task/.summaries/.process subdirectories, and the
//	workflow-session.json header, then emits SESSION_CREATED.
//
// Outputs:
//
//	*Session - The freshly written header.
//	error - ErrInvalidID, ErrParameter on an unknown type, or
//	  ErrAlreadyExists when the id is taken in any location.
func (s *Store) Init(ctx context.Context, sessionID string, sessionType SessionType, metadata map[string]any) (sess *Session, err error) {
	done := instrument("init")
	defer func() { done(err) }()
	_, span := storeTracer.Start(ctx, "store.init")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("session.type", string(sessionType)),
	)
	defer func() { recordSpanError(span, err) }()

	if idErr := validation.ValidateIdentifier(sessionID); idErr != nil {
		return nil, fmt.Errorf("%w: session id: %v", workflow.ErrInvalidID, idErr)
	}
	if !sessionType.Valid() {
		return nil, fmt.Errorf("%w: unknown session type %q", workflow.ErrParameter, sessionType)
	}
	if existing, _, findErr := s.findSession(sessionID); findErr == nil {
		return nil, fmt.Errorf("%w: session %q already exists in %s", workflow.ErrAlreadyExists, sessionID, existing)
	}

	loc := sessionType.InitialLocation()
	dir := s.sessionDir(loc, sessionID)
	for _, sub := range []string{TaskDirName, SummariesDirName, ProcessDirName} {
		if mkErr := os.MkdirAll(filepath.Join(dir, sub), 0o755); mkErr != nil {
			return nil, fmt.Errorf("%w: creating session directories: %v", workflow.ErrIO, mkErr)
		}
	}

	now := events.Now()
	sess = &Session{
		SessionID: sessionID,
		Type:      sessionType,
		Status:    StatusInitialized,
		Location:  loc,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}
	if err = writeJSONFile(filepath.Join(dir, SessionFileName), sess); err != nil {
		return nil, err
	}

	slog.Info("session initialized",
		slog.String("session_id", sessionID),
		slog.String("type", string(sessionType)),
		slog.String("location", string(loc)))

	s.emit(events.Event{
		Type:      events.TypeSessionCreated,
		SessionID: sessionID,
		Payload: map[string]any{
			"sessionId": sessionID,
			"type":      string(sessionType),
			"status":    string(StatusInitialized),
			"location":  string(loc),
			"createdAt": now,
		},
	})
	return sess, nil
}

// Read returns the parsed JSON document or raw text behind a content
// type. The `status` content type returns the computed SessionDigest.
func (s *Store) Read(ctx context.Context, sessionID, contentType string, params map[string]string) (result any, err error) {
	done := instrument("read")
	defer func() { done(err) }()
	_, span := storeTracer.Start(ctx, "store.read")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("content.type", contentType),
	)
	defer func() { recordSpanError(span, err) }()

	if idErr := validation.ValidateIdentifier(sessionID); idErr != nil {
		return nil, fmt.Errorf("%w: session id: %v", workflow.ErrInvalidID, idErr)
	}
	loc, dir, err := s.findSession(sessionID)
	if err != nil {
		return nil, err
	}
	if contentType == ContentStatus {
		return s.digestForDir(sessionID, loc, dir)
	}
	rel, err := contentRelPath(contentType, loc, params)
	if err != nil {
		return nil, err
	}
	target, err := containedJoin(dir, rel)
	if err != nil {
		return nil, err
	}
	if isJSONTarget(target) {
		return readJSONValue(target)
	}
	return readTextFile(target)
}

// Write creates or replaces the target file atomically and emits the
// mutation's event. Returns the path written, relative to the session
// directory.
func (s *Store) Write(ctx context.Context, sessionID, contentType string, params map[string]string, content any) (rel string, err error) {
	done := instrument("write")
	defer func() { done(err) }()
	_, span := storeTracer.Start(ctx, "store.write")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("content.type", contentType),
	)
	defer func() { recordSpanError(span, err) }()

	if idErr := validation.ValidateIdentifier(sessionID); idErr != nil {
		return "", fmt.Errorf("%w: session id: %v", workflow.ErrInvalidID, idErr)
	}
	if content == nil {
		return "", fmt.Errorf("%w: write requires content", workflow.ErrParameter)
	}
	loc, dir, err := s.findSession(sessionID)
	if err != nil {
		return "", err
	}
	rel, err = contentRelPath(contentType, loc, params)
	if err != nil {
		return "", err
	}
	target, err := containedJoin(dir, rel)
	if err != nil {
		return "", err
	}

	existed := fileExists(target)
	data, doc, err := encodeContent(target, content)
	if err != nil {
		return "", err
	}
	if writeErr := atomicWriteFile(target, data, 0o644); writeErr != nil {
		return "", fmt.Errorf("%w: %v", workflow.ErrIO, writeErr)
	}

	s.emitMutation(sessionID, contentType, rel, params, doc, existed)
	return filepath.ToSlash(rel), nil
}

// Update shallow-merges a patch into an existing JSON document and
// writes the merge atomically. The target must already exist.
//
// Description:
//
//	Read, merge, write; no lock is held across the cycle. Concurrent
//	updates to the same document race as last-write-wins, which is the
//	documented contract. Session updates get an updatedAt stamp after
//	the merge.
func (s *Store) Update(ctx context.Context, sessionID, contentType string, params map[string]string, patch map[string]any) (merged map[string]any, err error) {
	done := instrument("update")
	defer func() { done(err) }()
	_, span := storeTracer.Start(ctx, "store.update")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("content.type", contentType),
	)
	defer func() { recordSpanError(span, err) }()

	if idErr := validation.ValidateIdentifier(sessionID); idErr != nil {
		return nil, fmt.Errorf("%w: session id: %v", workflow.ErrInvalidID, idErr)
	}
	if patch == nil {
		return nil, fmt.Errorf("%w: update requires a JSON object patch", workflow.ErrParameter)
	}
	loc, dir, err := s.findSession(sessionID)
	if err != nil {
		return nil, err
	}
	rel, err := contentRelPath(contentType, loc, params)
	if err != nil {
		return nil, err
	}
	target, err := containedJoin(dir, rel)
	if err != nil {
		return nil, err
	}
	if !isJSONTarget(target) {
		return nil, fmt.Errorf("%w: content type %q does not hold a JSON document", workflow.ErrParameter, contentType)
	}

	existing, err := readJSONObject(target)
	if err != nil {
		return nil, err
	}
	merged = shallowMerge(existing, patch)
	if contentType == ContentSession {
		merged["updatedAt"] = events.Now()
	}
	if err = writeJSONFile(target, merged); err != nil {
		return nil, err
	}

	s.emitMutation(sessionID, contentType, rel, params, patch, true)
	return merged, nil
}

// Archive moves the entire session directory into the archives root.
//
// Inputs:
//
//	updateStatus - When true, the header gets status=completed and an
//	  archivedAt stamp before the move.
//
// Outputs:
//
//	*Session - The header as it reads after the move (best effort).
//	error - ErrNotFound when no active or lite session matches,
//	  ErrAlreadyExists when the archive destination is taken.
func (s *Store) Archive(ctx context.Context, sessionID string, updateStatus bool) (sess *Session, err error) {
	done := instrument("archive")
	defer func() { done(err) }()
	_, span := storeTracer.Start(ctx, "store.archive")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))
	defer func() { recordSpanError(span, err) }()

	if idErr := validation.ValidateIdentifier(sessionID); idErr != nil {
		return nil, fmt.Errorf("%w: session id: %v", workflow.ErrInvalidID, idErr)
	}

	var src string
	var from Location
	found := false
	for _, loc := range []Location{LocationActive, LocationLitePlan, LocationLiteFix} {
		dir := s.sessionDir(loc, sessionID)
		if dirExists(dir) {
			src, from, found = dir, loc, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: no active session %q to archive", workflow.ErrNotFound, sessionID)
	}
	dst := s.sessionDir(LocationArchived, sessionID)
	if dirExists(dst) {
		return nil, fmt.Errorf("%w: archive destination for session %q", workflow.ErrAlreadyExists, sessionID)
	}

	now := events.Now()
	if updateStatus {
		headerPath := filepath.Join(src, SessionFileName)
		doc, readErr := readJSONObject(headerPath)
		if readErr != nil {
			return nil, readErr
		}
		doc["status"] = string(StatusCompleted)
		doc["archivedAt"] = now
		doc["updatedAt"] = now
		if err = writeJSONFile(headerPath, doc); err != nil {
			return nil, err
		}
	}

	if err = moveDir(src, dst); err != nil {
		return nil, err
	}

	sess, viewErr := readSessionHeader(dst)
	if viewErr != nil {
		slog.Warn("archived session header unreadable",
			slog.String("session_id", sessionID),
			slog.String("error", viewErr.Error()))
		sess = &Session{SessionID: sessionID, Location: LocationArchived}
	} else {
		sess.Location = LocationArchived
	}

	slog.Info("session archived",
		slog.String("session_id", sessionID),
		slog.String("from", string(from)))

	payload := map[string]any{"from": string(from)}
	if updateStatus {
		payload["status"] = string(StatusCompleted)
		payload["archivedAt"] = now
	}
	s.emit(events.Event{
		Type:      events.TypeSessionArchived,
		SessionID: sessionID,
		Payload:   payload,
	})
	return sess, nil
}

// List scans one location root, or all four, for session directories.
// A missing root is an empty list, not an error. Entries come back in
// root order, name-sorted within each root.
func (s *Store) List(ctx context.Context, location string, includeMetadata bool) (entries []SessionEntry, err error) {
	done := instrument("list")
	defer func() { done(err) }()
	_, span := storeTracer.Start(ctx, "store.list")
	defer span.End()
	span.SetAttributes(attribute.String("location", location))
	defer func() { recordSpanError(span, err) }()

	var roots []Location
	switch location {
	case "", "all":
		roots = searchOrder
	default:
		loc := Location(location)
		if !loc.Valid() {
			return nil, fmt.Errorf("%w: unknown location %q", workflow.ErrParameter, location)
		}
		roots = []Location{loc}
	}

	entries = make([]SessionEntry, 0)
	for _, loc := range roots {
		root := s.locationRoot(loc)
		dirEntries, readErr := os.ReadDir(root)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				continue
			}
			return nil, fmt.Errorf("%w: listing %s: %v", workflow.ErrIO, loc, readErr)
		}
		for _, dirEntry := range dirEntries {
			if !dirEntry.IsDir() {
				continue
			}
			entry := SessionEntry{
				SessionID: dirEntry.Name(),
				Location:  loc,
				Path:      filepath.Join(root, dirEntry.Name()),
			}
			if includeMetadata {
				header, headerErr := readSessionHeader(entry.Path)
				if headerErr != nil {
					slog.Warn("session header unreadable",
						slog.String("session_id", entry.SessionID),
						slog.String("error", headerErr.Error()))
				} else {
					entry.Header = header
				}
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Digest computes the read-only summary of one session.
func (s *Store) Digest(ctx context.Context, sessionID string) (*SessionDigest, error) {
	if err := validation.ValidateIdentifier(sessionID); err != nil {
		return nil, fmt.Errorf("%w: session id: %v", workflow.ErrInvalidID, err)
	}
	loc, dir, err := s.findSession(sessionID)
	if err != nil {
		return nil, err
	}
	return s.digestForDir(sessionID, loc, dir)
}

// Digests computes the digest of every session across all four
// locations, in root order. Each digest is built from the directory it
// was listed in, so an archived copy shadowed by an active session still
// appears under archives. Sessions with unreadable headers are skipped
// with a warning.
func (s *Store) Digests(ctx context.Context) ([]SessionDigest, error) {
	entries, err := s.List(ctx, "all", false)
	if err != nil {
		return nil, err
	}
	digests := make([]SessionDigest, 0, len(entries))
	for _, entry := range entries {
		digest, digestErr := s.digestForDir(entry.SessionID, entry.Location, entry.Path)
		if digestErr != nil {
			slog.Warn("session digest unavailable",
				slog.String("session_id", entry.SessionID),
				slog.String("location", string(entry.Location)),
				slog.String("error", digestErr.Error()))
			continue
		}
		digests = append(digests, *digest)
	}
	return digests, nil
}

// digestForDir assembles a SessionDigest from a session directory.
func (s *Store) digestForDir(sessionID string, loc Location, dir string) (*SessionDigest, error) {
	header, err := readSessionHeader(dir)
	if err != nil {
		return nil, err
	}
	digest := &SessionDigest{
		SessionID:  sessionID,
		Type:       header.Type,
		Status:     header.Status,
		Location:   loc,
		CreatedAt:  header.CreatedAt,
		UpdatedAt:  header.UpdatedAt,
		ArchivedAt: header.ArchivedAt,
		Tasks:      TaskCounts{ByStatus: map[string]int{}},
	}

	taskDir := filepath.Join(dir, TaskDirName)
	taskFiles, readErr := os.ReadDir(taskDir)
	if readErr != nil {
		if !os.IsNotExist(readErr) {
			slog.Warn("task directory unreadable",
				slog.String("session_id", sessionID),
				slog.String("error", readErr.Error()))
		}
		return digest, nil
	}
	for _, taskFile := range taskFiles {
		if taskFile.IsDir() || !strings.HasSuffix(taskFile.Name(), ".json") {
			continue
		}
		doc, docErr := readJSONObject(filepath.Join(taskDir, taskFile.Name()))
		if docErr != nil {
			slog.Warn("task document unreadable",
				slog.String("session_id", sessionID),
				slog.String("file", taskFile.Name()),
				slog.String("error", docErr.Error()))
			continue
		}
		status := "unknown"
		if value, ok := doc["status"].(string); ok && value != "" {
			status = value
		}
		digest.Tasks.Total++
		digest.Tasks.ByStatus[status]++
	}
	return digest, nil
}

// =============================================================================
// Internals
// =============================================================================

// readSessionHeader decodes workflow-session.json into its struct view.
// Extra top-level keys agents may have merged in are dropped from the
// view; rewrites that must preserve them go through readJSONObject.
func readSessionHeader(dir string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(dir, SessionFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", workflow.ErrNotFound, SessionFileName)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", workflow.ErrIO, SessionFileName, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", workflow.ErrParse, SessionFileName, err)
	}
	return &sess, nil
}

// encodeContent renders content for its target file.
//
// JSON targets accept any JSON-marshalable value; string content for a
// JSON target is treated as pre-encoded JSON and must parse. Text
// targets require a string. The second return is the decoded document
// when one exists, for event payloads.
func encodeContent(target string, content any) ([]byte, map[string]any, error) {
	if isJSONTarget(target) {
		if text, ok := content.(string); ok {
			var value any
			if err := json.Unmarshal([]byte(text), &value); err != nil {
				return nil, nil, fmt.Errorf("%w: string content for a JSON target must itself be JSON: %v", workflow.ErrParameter, err)
			}
			content = value
		}
		data, err := marshalDocument(content)
		if err != nil {
			return nil, nil, err
		}
		doc, _ := content.(map[string]any)
		return data, doc, nil
	}
	text, ok := content.(string)
	if !ok {
		return nil, nil, fmt.Errorf("%w: content for %s must be a string", workflow.ErrParameter, filepath.Base(target))
	}
	return []byte(text), nil, nil
}

// emitMutation publishes the one event a successful write or update
// produces.
func (s *Store) emitMutation(sessionID, contentType, rel string, params map[string]string, doc map[string]any, existed bool) {
	relSlash := filepath.ToSlash(rel)
	switch contentType {
	case ContentSession:
		s.emit(events.Event{
			Type:      events.TypeSessionUpdated,
			SessionID: sessionID,
			Payload:   doc,
		})
	case ContentTask:
		eventType := events.TypeTaskCreated
		if existed {
			eventType = events.TypeTaskUpdated
		}
		s.emit(events.Event{
			Type:      eventType,
			SessionID: sessionID,
			EntityID:  params["taskId"],
			Payload:   doc,
		})
	default:
		s.emit(events.Event{
			Type:      events.TypeFileWritten,
			SessionID: sessionID,
			EntityID:  relSlash,
			Payload: map[string]any{
				"contentType": contentType,
				"path":        relSlash,
			},
		})
	}
}
