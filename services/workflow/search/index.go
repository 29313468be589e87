// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search implements the project search engine behind the
// smart_search tool: a BadgerDB file-metadata index under the state
// root's cache directory, plus content search, filename globbing, and
// project status over it.
//
// The index holds metadata only (size, mtime, extension); content is
// always read live from disk at query time, so results never go stale
// even when the index does.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"golang.org/x/mod/modfile"

	"github.com/AleutianAI/ccw/services/workflow"
	"github.com/AleutianAI/ccw/services/workflow/locator"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var searchQueries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ccw_search_queries_total",
	Help: "Search engine operations by action",
}, []string{"action"})

var searchTracer = otel.Tracer("ccw.workflow.search")

// =============================================================================
// Index
// =============================================================================

const (
	// IndexDirName is the index location under the cache directory.
	IndexDirName = "search-index"

	// DefaultLimit and MaxLimit bound result set sizes.
	DefaultLimit = 50
	MaxLimit     = 500

	filePrefix  = "file:"
	builtAtKey  = "meta:builtAt"
	timeLayout  = time.RFC3339
	maxFileSize = 2 << 20 // content search skips files over 2MB
	sniffLen    = 8000    // leading bytes checked for NUL when sniffing binaries
	maxLineLen  = 500     // match text is truncated past this
)

// excludedDirs are never walked during Build.
var excludedDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	".workflow":    {},
	".idea":        {},
	".venv":        {},
	"__pycache__":  {},
}

// fileMeta is the per-file index record.
type fileMeta struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	ModTime string `json:"modTime"`
	Ext     string `json:"ext"`
}

// Match is one content search hit.
type Match struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// BuildResult summarizes one index build.
type BuildResult struct {
	IndexedFiles int   `json:"indexedFiles"`
	DurationMs   int64 `json:"durationMs"`
}

// Status describes the indexed project.
type Status struct {
	Root             string         `json:"root"`
	Module           string         `json:"module,omitempty"`
	GoVersion        string         `json:"goVersion,omitempty"`
	IndexedFiles     int            `json:"indexedFiles"`
	BuiltAt          string         `json:"builtAt,omitempty"`
	IndexAgeSeconds  float64        `json:"indexAgeSeconds,omitempty"`
	FilesByExtension map[string]int `json:"filesByExtension"`
}

// QueryOptions bound and filter search results.
type QueryOptions struct {
	Limit         int
	Offset        int
	CaseSensitive bool

	// Path restricts results to one subtree, relative to the project
	// root, forward slashes.
	Path string
}

// normalized clamps limits into range.
func (o QueryOptions) normalized() QueryOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	o.Path = strings.Trim(filepath.ToSlash(o.Path), "/")
	if o.Path == "." {
		o.Path = ""
	}
	return o
}

// Index is the search engine over one project root.
//
// Thread Safety: Index is safe for concurrent use; BadgerDB handles
// transaction isolation.
type Index struct {
	projectRoot string
	db          *badger.DB
}

// New wraps an already-open database. Most callers want OpenAt.
func New(projectRoot string, db *badger.DB) *Index {
	return &Index{projectRoot: projectRoot, db: db}
}

// OpenAt opens the project's persistent index under
// <stateRoot>/cache/search-index.
func OpenAt(projectRoot, stateRoot string) (*Index, error) {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(stateRoot, locator.CacheDirName, IndexDirName)
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrIO, err)
	}
	return New(projectRoot, db), nil
}

// Close releases the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Build walks the project root and records per-file metadata, replacing
// any previous index.
func (ix *Index) Build(ctx context.Context) (*BuildResult, error) {
	start := time.Now()
	searchQueries.WithLabelValues("init").Inc()
	_, span := searchTracer.Start(ctx, "search.build")
	defer span.End()

	if err := ix.db.DropPrefix([]byte(filePrefix)); err != nil {
		return nil, fmt.Errorf("%w: clearing index: %v", workflow.ErrIO, err)
	}

	batch := ix.db.NewWriteBatch()
	defer batch.Cancel()

	count := 0
	walkErr := filepath.WalkDir(ix.projectRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if _, excluded := excludedDirs[d.Name()]; excluded && p != ix.projectRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if count%256 == 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(ix.projectRoot, p)
		if relErr != nil {
			return nil
		}
		meta := fileMeta{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC().Format(timeLayout),
			Ext:     strings.ToLower(filepath.Ext(p)),
		}
		encoded, marshalErr := json.Marshal(meta)
		if marshalErr != nil {
			return nil
		}
		if setErr := batch.Set([]byte(filePrefix+meta.Path), encoded); setErr != nil {
			return setErr
		}
		count++
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return nil, walkErr
		}
		return nil, fmt.Errorf("%w: walking project: %v", workflow.ErrIO, walkErr)
	}
	if err := batch.Flush(); err != nil {
		return nil, fmt.Errorf("%w: flushing index: %v", workflow.ErrIO, err)
	}

	builtAt := time.Now().UTC().Format(timeLayout)
	if err := ix.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(builtAtKey), []byte(builtAt))
	}); err != nil {
		return nil, fmt.Errorf("%w: recording build time: %v", workflow.ErrIO, err)
	}

	elapsed := time.Since(start)
	slog.Info("search index built",
		slog.String("root", ix.projectRoot),
		slog.Int("files", count),
		slog.Duration("elapsed", elapsed))

	return &BuildResult{
		IndexedFiles: count,
		DurationMs:   elapsed.Milliseconds(),
	}, nil
}

// Search scans indexed files for content matching the query.
//
// Description:
//
//	The query is regex-first: when it compiles it matches as a regular
//	expression, otherwise it falls back to a literal substring match.
//	Case-insensitive unless asked otherwise. Files over the size cap
//	and binaries (NUL in the leading bytes) are skipped. Matching reads
//	live file content, never indexed content.
func (ix *Index) Search(ctx context.Context, query string, opts QueryOptions) ([]Match, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search requires a query", workflow.ErrParameter)
	}
	searchQueries.WithLabelValues("search").Inc()
	_, span := searchTracer.Start(ctx, "search.content")
	defer span.End()

	opts = opts.normalized()
	matches := newMatcher(query, opts.CaseSensitive)

	files, err := ix.indexedFiles(opts.Path)
	if err != nil {
		return nil, err
	}

	results := make([]Match, 0, opts.Limit)
	skipped := 0
	for _, rel := range files {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		abs := filepath.Join(ix.projectRoot, filepath.FromSlash(rel))
		info, statErr := os.Stat(abs)
		if statErr != nil || !info.Mode().IsRegular() || info.Size() > maxFileSize {
			continue
		}
		data, readErr := os.ReadFile(abs)
		if readErr != nil {
			continue
		}
		if isBinary(data) {
			continue
		}
		for i, line := range strings.Split(string(data), "\n") {
			line = strings.TrimRight(line, "\r")
			if !matches(line) {
				continue
			}
			if skipped < opts.Offset {
				skipped++
				continue
			}
			results = append(results, Match{
				File: rel,
				Line: i + 1,
				Text: truncateLine(line),
			})
			if len(results) >= opts.Limit {
				return results, nil
			}
		}
	}
	return results, nil
}

// FindFiles globs indexed paths. The pattern is tried against the base
// name and against the full relative path.
func (ix *Index) FindFiles(ctx context.Context, pattern string, opts QueryOptions) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: find_files requires a pattern", workflow.ErrParameter)
	}
	if _, err := path.Match(pattern, "probe"); err != nil {
		return nil, fmt.Errorf("%w: bad glob pattern %q", workflow.ErrParameter, pattern)
	}
	searchQueries.WithLabelValues("find_files").Inc()
	_, span := searchTracer.Start(ctx, "search.find_files")
	defer span.End()

	opts = opts.normalized()
	files, err := ix.indexedFiles(opts.Path)
	if err != nil {
		return nil, err
	}

	results := make([]string, 0, opts.Limit)
	skipped := 0
	for _, rel := range files {
		byName, _ := path.Match(pattern, path.Base(rel))
		byPath, _ := path.Match(pattern, rel)
		if !byName && !byPath {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		results = append(results, rel)
		if len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}

// Stats reports what the index knows about the project.
func (ix *Index) Stats(ctx context.Context) (*Status, error) {
	searchQueries.WithLabelValues("status").Inc()
	_, span := searchTracer.Start(ctx, "search.status")
	defer span.End()

	status := &Status{
		Root:             ix.projectRoot,
		FilesByExtension: map[string]int{},
	}

	err := ix.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = []byte(filePrefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rel := string(it.Item().Key()[len(filePrefix):])
			status.IndexedFiles++
			ext := strings.ToLower(path.Ext(rel))
			if ext == "" {
				ext = "(none)"
			}
			status.FilesByExtension[ext]++
		}

		item, getErr := txn.Get([]byte(builtAtKey))
		if getErr != nil {
			return nil // never built; still a valid status
		}
		return item.Value(func(value []byte) error {
			status.BuiltAt = string(value)
			if builtAt, parseErr := time.Parse(timeLayout, status.BuiltAt); parseErr == nil {
				status.IndexAgeSeconds = time.Since(builtAt).Seconds()
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading index: %v", workflow.ErrIO, err)
	}

	if data, readErr := os.ReadFile(filepath.Join(ix.projectRoot, "go.mod")); readErr == nil {
		if mf, parseErr := modfile.Parse("go.mod", data, nil); parseErr == nil {
			if mf.Module != nil {
				status.Module = mf.Module.Mod.Path
			}
			if mf.Go != nil {
				status.GoVersion = mf.Go.Version
			}
		}
	}
	return status, nil
}

// indexedFiles returns indexed relative paths in key order, optionally
// restricted to one subtree.
func (ix *Index) indexedFiles(pathFilter string) ([]string, error) {
	var files []string
	err := ix.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = []byte(filePrefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rel := string(it.Item().Key()[len(filePrefix):])
			if pathFilter != "" && rel != pathFilter && !strings.HasPrefix(rel, pathFilter+"/") {
				continue
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading index: %v", workflow.ErrIO, err)
	}
	return files, nil
}

// newMatcher builds the line predicate: regex when the query compiles,
// literal substring otherwise.
func newMatcher(query string, caseSensitive bool) func(string) bool {
	pattern := query
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	if re, err := regexp.Compile(pattern); err == nil {
		return re.MatchString
	}
	if caseSensitive {
		return func(line string) bool { return strings.Contains(line, query) }
	}
	lowered := strings.ToLower(query)
	return func(line string) bool { return strings.Contains(strings.ToLower(line), lowered) }
}

// isBinary sniffs for a NUL byte in the leading bytes.
func isBinary(data []byte) bool {
	limit := len(data)
	if limit > sniffLen {
		limit = sniffLen
	}
	return bytes.IndexByte(data[:limit], 0) >= 0
}

// truncateLine caps match text so one long minified line cannot bloat a
// result set.
func truncateLine(line string) string {
	if len(line) <= maxLineLen {
		return line
	}
	return line[:maxLineLen] + "..."
}
