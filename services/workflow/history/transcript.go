// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history records tool-call transcripts as JSONL day files
// under the project's cli-history directory.
//
// Multiple ccw processes can serve the same project, so each append
// takes an exclusive lock on the day file around the write. Entries are
// one JSON object per line; a crashed writer can at worst leave one
// truncated final line, which readers should skip.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/ccw/services/workflow"
	"github.com/AleutianAI/ccw/services/workflow/events"
	"github.com/AleutianAI/ccw/services/workflow/locator"
)

// DayLayout names transcript files by UTC day.
const DayLayout = "2006-01-02"

// Entry is one transcript line: a single tool call observed by the RPC
// server.
type Entry struct {
	// Time is the completion timestamp, UTC millisecond precision.
	Time string `json:"time"`

	// Tool is the tool name that was called.
	Tool string `json:"tool"`

	// DurationMs is the handler latency in milliseconds.
	DurationMs int64 `json:"durationMs"`

	// IsError reports whether the call returned an error result.
	IsError bool `json:"isError"`

	// RequestID echoes the JSON-RPC request id, when the frame had one.
	RequestID string `json:"requestId,omitempty"`
}

// Transcript appends entries to day files under one state root.
//
// Thread Safety: Transcript is safe for concurrent use across
// goroutines and across processes; the file lock serializes appends.
type Transcript struct {
	dir string
}

// New creates a transcript writer under <stateRoot>/cli-history.
func New(stateRoot string) *Transcript {
	return &Transcript{dir: filepath.Join(stateRoot, locator.CLIHistoryDirName)}
}

// Dir returns the transcript directory.
func (t *Transcript) Dir() string {
	return t.dir
}

// Append writes one entry to today's file.
//
// Description:
//
//	Stamps Time when unset, creates the directory on first use, then
//	appends the JSON line while holding an exclusive lock on the file.
//	Callers treat failures as non-fatal; a transcript miss must never
//	fail the tool call it records.
func (t *Transcript) Append(entry Entry) error {
	if entry.Time == "" {
		entry.Time = events.Now()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encoding transcript entry: %v", workflow.ErrParse, err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(t.dir, 0750); err != nil {
		return fmt.Errorf("%w: creating transcript directory: %v", workflow.ErrIO, err)
	}

	path := filepath.Join(t.dir, time.Now().UTC().Format(DayLayout)+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("%w: opening transcript file: %v", workflow.ErrIO, err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return fmt.Errorf("%w: locking transcript file: %v", workflow.ErrIO, err)
	}
	defer unlockFile(file)

	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("%w: appending transcript entry: %v", workflow.ErrIO, err)
	}
	return nil
}

// ReadDay returns the entries recorded on one UTC day. Truncated final
// lines from interrupted writers are skipped.
func (t *Transcript) ReadDay(day time.Time) ([]Entry, error) {
	path := filepath.Join(t.dir, day.UTC().Format(DayLayout)+".jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading transcript: %v", workflow.ErrIO, err)
	}

	var entries []Entry
	for _, line := range splitLines(data) {
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// splitLines splits on newlines, dropping empty lines.
func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
