// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package outline extracts symbol outlines from source files using
// tree-sitter. Go, Python, JavaScript, and TypeScript are supported;
// the language is picked by file extension.
//
// Outlines are built for code comprehension, not graph analysis:
// private members are included, nesting is preserved (methods under
// their class, fields under their struct), and each symbol carries the
// comment or docstring immediately attached to it.
//
// Parsers are error-tolerant. Syntactically broken files still yield
// the symbols tree-sitter can recover.
package outline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/ccw/services/workflow"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var outlineParses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ccw_outline_parses_total",
	Help: "Outline parse operations by language and status",
}, []string{"language", "status"})

var outlineTracer = otel.Tracer("ccw.workflow.outline")

// =============================================================================
// Types
// =============================================================================

const (
	// MaxFileSize is the largest source file the outliner will parse (10MB).
	MaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the threshold at which a slow-parse warning is logged (1MB).
	WarnFileSize = 1 * 1024 * 1024
)

// Kind classifies an outline symbol.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindStruct    Kind = "struct"
	KindInterface Kind = "interface"
	KindType      Kind = "type"
	KindField     Kind = "field"
	KindConstant  Kind = "constant"
	KindVariable  Kind = "variable"
	KindEnum      Kind = "enum"
)

// Symbol is one named construct in a source file. Line numbers are
// 1-indexed. Children hold nested symbols, such as methods under their
// class; Parent names the enclosing type when there is one.
type Symbol struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Line      int       `json:"line"`
	EndLine   int       `json:"endLine"`
	Signature string    `json:"signature,omitempty"`
	Doc       string    `json:"doc,omitempty"`
	Parent    string    `json:"parent,omitempty"`
	Children  []*Symbol `json:"children,omitempty"`
}

// Outline is the parse result for one file.
type Outline struct {
	File         string    `json:"file"`
	Language     string    `json:"language"`
	Symbols      []*Symbol `json:"symbols"`
	TotalSymbols int       `json:"totalSymbols"`
}

// =============================================================================
// Entry Points
// =============================================================================

// File reads and outlines the file at path. The path should already be
// validated against the project root by the caller.
func File(ctx context.Context, path string) (*Outline, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", workflow.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", workflow.ErrIO, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", workflow.ErrParameter, path)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s exceeds the %d byte parse limit", workflow.ErrParameter, path, MaxFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", workflow.ErrIO, path, err)
	}
	return Parse(ctx, content, path)
}

// Parse builds the outline for source content. The name parameter only
// supplies the extension for language detection and the File field of
// the result.
//
// Thread Safety: safe for concurrent use; a fresh tree-sitter parser is
// created per call.
func Parse(ctx context.Context, content []byte, name string) (*Outline, error) {
	_, span := outlineTracer.Start(ctx, "outline.parse")
	defer span.End()

	language, grammar, err := languageFor(name)
	if err != nil {
		outlineParses.WithLabelValues("unknown", "error").Inc()
		return nil, err
	}
	if int64(len(content)) > MaxFileSize {
		outlineParses.WithLabelValues(language, "error").Inc()
		return nil, fmt.Errorf("%w: content exceeds the %d byte parse limit", workflow.ErrParameter, MaxFileSize)
	}
	if !utf8.Valid(content) {
		outlineParses.WithLabelValues(language, "error").Inc()
		return nil, fmt.Errorf("%w: content is not valid UTF-8", workflow.ErrParse)
	}
	if len(content) > WarnFileSize {
		slog.Warn("outlining large file",
			slog.String("file", name),
			slog.Int("bytes", len(content)))
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammar)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		outlineParses.WithLabelValues(language, "error").Inc()
		return nil, fmt.Errorf("%w: %v", workflow.ErrParse, err)
	}
	defer tree.Close()

	result := &Outline{
		File:     name,
		Language: language,
		Symbols:  []*Symbol{},
	}

	root := tree.RootNode()
	if root != nil {
		switch language {
		case "go":
			result.Symbols = outlineGo(root, content)
		case "python":
			result.Symbols = outlinePython(root, content)
		case "javascript", "typescript", "tsx":
			result.Symbols = outlineScript(root, content)
		}
	}
	result.TotalSymbols = countSymbols(result.Symbols)

	outlineParses.WithLabelValues(language, "success").Inc()
	return result, nil
}

// Supported reports whether the file extension maps to a known grammar.
func Supported(name string) bool {
	_, _, err := languageFor(name)
	return err == nil
}

// languageFor maps a file name to its language and grammar.
func languageFor(name string) (string, *sitter.Language, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".go":
		return "go", golang.GetLanguage(), nil
	case ".py":
		return "python", python.GetLanguage(), nil
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript", javascript.GetLanguage(), nil
	case ".ts", ".mts", ".cts":
		return "typescript", typescript.GetLanguage(), nil
	case ".tsx":
		return "tsx", tsx.GetLanguage(), nil
	default:
		return "", nil, fmt.Errorf("%w: no outline support for %q files", workflow.ErrParameter, filepath.Ext(name))
	}
}

// =============================================================================
// Shared Helpers
// =============================================================================

// nodeText returns the source text covered by a node.
func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	return string(content[node.StartByte():node.EndByte()])
}

// startLine and endLine convert tree-sitter's 0-based rows to 1-based lines.
func startLine(node *sitter.Node) int { return int(node.StartPoint().Row) + 1 }
func endLine(node *sitter.Node) int   { return int(node.EndPoint().Row) + 1 }

// precedingComment collects the comment block that ends on the line
// directly above node. Consecutive comment siblings are gathered so
// multi-line doc comments come back whole.
func precedingComment(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	// Comments attached to an exported declaration sit beside the
	// export statement, not the inner declaration.
	if parent := node.Parent(); parent != nil && parent.Type() == "export_statement" {
		node = parent
	}

	var lines []string
	wantLine := int(node.StartPoint().Row)
	for prev := node.PrevSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevSibling() {
		if int(prev.EndPoint().Row) < wantLine-1 {
			break
		}
		lines = append([]string{strings.TrimSpace(nodeText(prev, content))}, lines...)
		wantLine = int(prev.StartPoint().Row)
	}
	return strings.Join(lines, "\n")
}

// countSymbols counts the whole tree iteratively. Depth is bounded to
// keep crafted input from looping the walker.
func countSymbols(symbols []*Symbol) int {
	const maxDepth = 100

	type frame struct {
		symbols []*Symbol
		depth   int
	}
	count := 0
	stack := []frame{{symbols: symbols}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, sym := range top.symbols {
			count++
			if len(sym.Children) > 0 && top.depth < maxDepth {
				stack = append(stack, frame{symbols: sym.Children, depth: top.depth + 1})
			}
		}
	}
	return count
}
