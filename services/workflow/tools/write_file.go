// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/ccw/services/workflow"
)

// MaxWriteContentSize caps write_file content at 5MB.
const MaxWriteContentSize = 5 * 1024 * 1024

// WriteFile creates or replaces files inside the project root.
//
// Thread Safety: WriteFile is safe for concurrent use; the final rename
// makes each write atomic with respect to readers.
type WriteFile struct {
	workspace *Workspace
}

// NewWriteFile creates the write_file tool over a workspace.
func NewWriteFile(ws *Workspace) *WriteFile {
	return &WriteFile{workspace: ws}
}

// Name returns "write_file".
func (t *WriteFile) Name() string { return "write_file" }

// Definition describes the write_file parameters.
func (t *WriteFile) Definition() Definition {
	return Definition{
		Name: "write_file",
		Description: "Create a new file or replace an existing file atomically. " +
			"Parent directories are created as needed. The path must stay " +
			"inside the project root.",
		SideEffects: true,
		Parameters: map[string]ParamDef{
			"path": {
				Type:        ParamTypeString,
				Description: "File path, absolute or relative to the project root.",
				Required:    true,
			},
			"content": {
				Type:        ParamTypeString,
				Description: "Full file content to write.",
				Required:    true,
			},
		},
	}
}

// Execute writes the file via a sibling temp file and rename.
func (t *WriteFile) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	path := stringArg(params, "path")
	content := stringArg(params, "content")

	if len(content) > MaxWriteContentSize {
		return nil, fmt.Errorf("%w: content exceeds %d bytes", workflow.ErrParameter, MaxWriteContentSize)
	}

	target, err := t.workspace.Resolve(path)
	if err != nil {
		return nil, err
	}

	_, statErr := os.Stat(target)
	created := os.IsNotExist(statErr)

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, fmt.Errorf("%w: creating parent directories: %v", workflow.ErrIO, err)
	}
	if err := writeFileAtomic(target, []byte(content), 0644); err != nil {
		return nil, err
	}

	return jsonResult(map[string]any{
		"success": true,
		"path":    t.workspace.Rel(target),
		"bytes":   len(content),
		"created": created,
	})
}

// writeFileAtomic writes content through a sibling temp file and rename,
// so readers never observe a partial file.
func writeFileAtomic(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", workflow.ErrIO, err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing content: %v", workflow.ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: syncing to disk: %v", workflow.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %v", workflow.ErrIO, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("%w: setting permissions: %v", workflow.ErrIO, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: renaming temp file: %v", workflow.ErrIO, err)
	}

	success = true
	return nil
}
