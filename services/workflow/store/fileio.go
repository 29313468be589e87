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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/ccw/services/workflow"
)

// atomicWriteFile writes content to a file atomically using rename.
//
// Parent directories are created first. The temp file is a sibling of the
// target so the rename stays on one filesystem and is atomic on POSIX.
func atomicWriteFile(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Clean up temp file on any error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing content: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing to disk: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	// Set permissions before rename
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// readJSONValue reads and parses any JSON document.
func readJSONValue(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", workflow.ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("%w: reading %s: %v", workflow.ErrIO, filepath.Base(path), err)
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", workflow.ErrParse, filepath.Base(path), err)
	}
	return value, nil
}

// readJSONObject reads a JSON document that must be an object.
func readJSONObject(path string) (map[string]any, error) {
	value, err := readJSONValue(path)
	if err != nil {
		return nil, err
	}
	object, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: expected a JSON object", workflow.ErrParse, filepath.Base(path))
	}
	return object, nil
}

// readTextFile reads a raw text artifact.
func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", workflow.ErrNotFound, filepath.Base(path))
		}
		return "", fmt.Errorf("%w: reading %s: %v", workflow.ErrIO, filepath.Base(path), err)
	}
	return string(data), nil
}

// marshalDocument renders a JSON document the way every store file is
// written: two-space indent, trailing newline.
func marshalDocument(value any) ([]byte, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: content is not serializable: %v", workflow.ErrParameter, err)
	}
	return append(data, '\n'), nil
}

// writeJSONFile marshals and atomically writes a JSON document.
func writeJSONFile(path string, value any) error {
	data, err := marshalDocument(value)
	if err != nil {
		return err
	}
	if err := atomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", workflow.ErrIO, err)
	}
	return nil
}

// moveDir relocates an entire directory tree by rename.
func moveDir(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%w: creating destination parent: %v", workflow.ErrIO, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("%w: moving session directory: %v", workflow.ErrIO, err)
	}
	return nil
}

// fileExists reports whether path exists as a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// dirExists reports whether path exists as a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
