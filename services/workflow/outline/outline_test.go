// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package outline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ccw/services/workflow"
)

// Embedded source samples keep the tests free of file I/O.
const (
	testGoSource = `package demo

// MaxRetries bounds reconnect attempts.
const MaxRetries = 3

var debugMode bool

// Server accepts connections.
type Server struct {
	Addr string
	port int
}

// Start runs the accept loop.
func (s *Server) Start() error {
	return nil
}

// Greet formats a greeting.
func Greet(name string) string {
	return "hi " + name
}

type Handler interface {
	Handle(req string) error
}
`

	testGoBroken = `package demo

func Broken( {
	return
}

func Valid() string {
	return "hello"
}
`

	testPythonSource = `"""Utilities for job scheduling."""

MAX_JOBS = 8

def make_id(prefix):
    """Build a short job id."""
    return prefix + "-1"

class Scheduler:
    """Runs queued jobs."""

    limit = 10

    def submit(self, job):
        """Queue one job."""
        return job

    async def drain(self):
        return None
`

	testTypeScriptSource = `// Greets a user by name.
export function greet(name: string): string {
  return "hi " + name;
}

export const MAX_ITEMS = 25;

export interface Task {
  id: string;
  run(now: number): boolean;
}

export class Queue {
  size: number = 0;

  push(task: Task): void {
  }
}

const toLabel = (t: Task) => t.id;
`

	testJavaScriptSource = `// Connects to the relay.
function connect(url) {
  return url;
}

class Relay {
  send(msg) {
    return msg;
  }
}

var legacyFlag = true;
`
)

// findSymbol locates a top-level symbol by name.
func findSymbol(t *testing.T, symbols []*Symbol, name string) *Symbol {
	t.Helper()
	for _, sym := range symbols {
		if sym.Name == name {
			return sym
		}
	}
	t.Fatalf("symbol %q not found", name)
	return nil
}

func TestParse_Go(t *testing.T) {
	out, err := Parse(context.Background(), []byte(testGoSource), "server.go")
	require.NoError(t, err)

	assert.Equal(t, "server.go", out.File)
	assert.Equal(t, "go", out.Language)
	assert.Len(t, out.Symbols, 6)
	assert.Equal(t, 9, out.TotalSymbols)

	maxRetries := findSymbol(t, out.Symbols, "MaxRetries")
	assert.Equal(t, KindConstant, maxRetries.Kind)
	assert.Equal(t, 4, maxRetries.Line)
	assert.Equal(t, "// MaxRetries bounds reconnect attempts.", maxRetries.Doc)

	debug := findSymbol(t, out.Symbols, "debugMode")
	assert.Equal(t, KindVariable, debug.Kind)
	assert.Equal(t, "bool", debug.Signature)
	assert.Empty(t, debug.Doc)

	server := findSymbol(t, out.Symbols, "Server")
	assert.Equal(t, KindStruct, server.Kind)
	assert.Equal(t, "// Server accepts connections.", server.Doc)
	require.Len(t, server.Children, 2)
	assert.Equal(t, "Addr", server.Children[0].Name)
	assert.Equal(t, KindField, server.Children[0].Kind)
	assert.Equal(t, "string", server.Children[0].Signature)
	assert.Equal(t, "Server", server.Children[0].Parent)
	assert.Equal(t, "port", server.Children[1].Name)

	start := findSymbol(t, out.Symbols, "Start")
	assert.Equal(t, KindMethod, start.Kind)
	assert.Equal(t, "Server", start.Parent)
	assert.Equal(t, "func (s *Server) Start() error", start.Signature)
	assert.Equal(t, "// Start runs the accept loop.", start.Doc)

	greet := findSymbol(t, out.Symbols, "Greet")
	assert.Equal(t, KindFunction, greet.Kind)
	assert.Equal(t, "func Greet(name string) string", greet.Signature)

	handler := findSymbol(t, out.Symbols, "Handler")
	assert.Equal(t, KindInterface, handler.Kind)
	require.Len(t, handler.Children, 1)
	assert.Equal(t, "Handle", handler.Children[0].Name)
	assert.Equal(t, KindMethod, handler.Children[0].Kind)
	assert.Equal(t, "Handle(req string) error", handler.Children[0].Signature)
	assert.Equal(t, "Handler", handler.Children[0].Parent)
}

func TestParse_GoSyntaxErrorStillYieldsSymbols(t *testing.T) {
	out, err := Parse(context.Background(), []byte(testGoBroken), "broken.go")
	require.NoError(t, err)

	valid := findSymbol(t, out.Symbols, "Valid")
	assert.Equal(t, KindFunction, valid.Kind)
}

func TestParse_Python(t *testing.T) {
	out, err := Parse(context.Background(), []byte(testPythonSource), "jobs.py")
	require.NoError(t, err)

	assert.Equal(t, "python", out.Language)
	assert.Len(t, out.Symbols, 3)
	assert.Equal(t, 6, out.TotalSymbols)

	maxJobs := findSymbol(t, out.Symbols, "MAX_JOBS")
	assert.Equal(t, KindConstant, maxJobs.Kind)
	assert.Equal(t, 3, maxJobs.Line)

	makeID := findSymbol(t, out.Symbols, "make_id")
	assert.Equal(t, KindFunction, makeID.Kind)
	assert.Equal(t, "def make_id(prefix)", makeID.Signature)
	assert.Equal(t, "Build a short job id.", makeID.Doc)

	scheduler := findSymbol(t, out.Symbols, "Scheduler")
	assert.Equal(t, KindClass, scheduler.Kind)
	assert.Equal(t, "class Scheduler", scheduler.Signature)
	assert.Equal(t, "Runs queued jobs.", scheduler.Doc)
	require.Len(t, scheduler.Children, 3)

	limit := findSymbol(t, scheduler.Children, "limit")
	assert.Equal(t, KindField, limit.Kind)
	assert.Equal(t, "Scheduler", limit.Parent)

	submit := findSymbol(t, scheduler.Children, "submit")
	assert.Equal(t, KindMethod, submit.Kind)
	assert.Equal(t, "def submit(self, job)", submit.Signature)
	assert.Equal(t, "Queue one job.", submit.Doc)

	drain := findSymbol(t, scheduler.Children, "drain")
	assert.Equal(t, KindMethod, drain.Kind)
	assert.Equal(t, "async def drain(self)", drain.Signature)
}

func TestParse_TypeScript(t *testing.T) {
	out, err := Parse(context.Background(), []byte(testTypeScriptSource), "queue.ts")
	require.NoError(t, err)

	assert.Equal(t, "typescript", out.Language)
	assert.Len(t, out.Symbols, 5)
	assert.Equal(t, 9, out.TotalSymbols)

	greet := findSymbol(t, out.Symbols, "greet")
	assert.Equal(t, KindFunction, greet.Kind)
	assert.Equal(t, "function greet(name: string): string", greet.Signature)
	assert.Equal(t, "// Greets a user by name.", greet.Doc)

	maxItems := findSymbol(t, out.Symbols, "MAX_ITEMS")
	assert.Equal(t, KindConstant, maxItems.Kind)

	task := findSymbol(t, out.Symbols, "Task")
	assert.Equal(t, KindInterface, task.Kind)
	require.Len(t, task.Children, 2)
	assert.Equal(t, "id", task.Children[0].Name)
	assert.Equal(t, KindField, task.Children[0].Kind)
	assert.Equal(t, "run", task.Children[1].Name)
	assert.Equal(t, "run(now: number): boolean", task.Children[1].Signature)

	queue := findSymbol(t, out.Symbols, "Queue")
	assert.Equal(t, KindClass, queue.Kind)
	require.Len(t, queue.Children, 2)
	assert.Equal(t, "size", queue.Children[0].Name)
	assert.Equal(t, KindField, queue.Children[0].Kind)
	push := queue.Children[1]
	assert.Equal(t, "push", push.Name)
	assert.Equal(t, KindMethod, push.Kind)
	assert.Equal(t, "push(task: Task): void", push.Signature)
	assert.Equal(t, "Queue", push.Parent)

	toLabel := findSymbol(t, out.Symbols, "toLabel")
	assert.Equal(t, KindFunction, toLabel.Kind)
	assert.Equal(t, 20, toLabel.Line)
}

func TestParse_JavaScript(t *testing.T) {
	out, err := Parse(context.Background(), []byte(testJavaScriptSource), "relay.js")
	require.NoError(t, err)

	assert.Equal(t, "javascript", out.Language)

	connect := findSymbol(t, out.Symbols, "connect")
	assert.Equal(t, KindFunction, connect.Kind)
	assert.Equal(t, "function connect(url)", connect.Signature)
	assert.Equal(t, "// Connects to the relay.", connect.Doc)

	relay := findSymbol(t, out.Symbols, "Relay")
	assert.Equal(t, KindClass, relay.Kind)
	require.Len(t, relay.Children, 1)
	assert.Equal(t, "send", relay.Children[0].Name)
	assert.Equal(t, KindMethod, relay.Children[0].Kind)

	legacy := findSymbol(t, out.Symbols, "legacyFlag")
	assert.Equal(t, KindVariable, legacy.Kind)
}

func TestParse_UnsupportedExtension(t *testing.T) {
	_, err := Parse(context.Background(), []byte("fn main() {}"), "main.rs")
	assert.ErrorIs(t, err, workflow.ErrParameter)
}

func TestParse_InvalidUTF8(t *testing.T) {
	_, err := Parse(context.Background(), []byte{0xff, 0xfe, 0xfd}, "bad.go")
	assert.ErrorIs(t, err, workflow.ErrParse)
}

func TestParse_OversizedContent(t *testing.T) {
	content := bytes.Repeat([]byte("a"), MaxFileSize+1)
	_, err := Parse(context.Background(), content, "big.go")
	assert.ErrorIs(t, err, workflow.ErrParameter)
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.go")
	require.NoError(t, os.WriteFile(path, []byte(testGoSource), 0o644))

	out, err := File(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, out.File)
	assert.Equal(t, "go", out.Language)
	assert.NotEmpty(t, out.Symbols)
}

func TestFile_Missing(t *testing.T) {
	_, err := File(context.Background(), filepath.Join(t.TempDir(), "nope.go"))
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.go"))
	assert.True(t, Supported("a.py"))
	assert.True(t, Supported("a.tsx"))
	assert.True(t, Supported("A.GO"))
	assert.False(t, Supported("a.rs"))
	assert.False(t, Supported("Makefile"))
}
