// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package locator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/ccw/services/workflow"
)

// Top-level entries of a state root. The .workflow session tree is owned
// by the store package; everything else is scaffolding created here.
const (
	CLIHistoryDirName = "cli-history"
	MemoryDirName     = "memory"
	CacheDirName      = "cache"
	ConfigDirName     = "config"

	// RegistryFileName is the per-project registry record.
	RegistryFileName = "projects.json"
)

// RegistryRecord is the persisted identity of a project's state root.
// Best-effort metadata; losing it never affects lookups.
type RegistryRecord struct {
	ProjectID          string `json:"projectId"`
	Path               string `json:"path"`
	ParentProjectID    string `json:"parentProjectId,omitempty"`
	RelativeFromParent string `json:"relativeFromParent,omitempty"`
	CreatedAt          string `json:"createdAt"`
	LastAccessAt       string `json:"lastAccessAt"`
}

// EnsureLayout creates the state root directory skeleton and refreshes the
// registry record.
//
// Description:
//
//	Creates <stateRoot>/{cli-history,memory,cache,config} with 0755. The
//	registry record write is best-effort: failures are logged, the layout
//	is still considered ensured. Safe to call repeatedly.
//
// Outputs:
//
//	error - Non-nil only when a directory cannot be created.
func EnsureLayout(loc ProjectLocation) error {
	for _, dir := range []string{
		loc.StateRoot,
		filepath.Join(loc.StateRoot, CLIHistoryDirName),
		filepath.Join(loc.StateRoot, MemoryDirName),
		filepath.Join(loc.StateRoot, CacheDirName),
		filepath.Join(loc.StateRoot, ConfigDirName),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: creating state directory %s: %v", workflow.ErrIO, dir, err)
		}
	}

	writeRegistryRecord(loc)
	return nil
}

// writeRegistryRecord writes projects.json, preserving createdAt across
// rewrites. Failures are logged and swallowed.
func writeRegistryRecord(loc ProjectLocation) {
	path := filepath.Join(loc.StateRoot, RegistryFileName)
	now := time.Now().UTC().Format(time.RFC3339)

	record := RegistryRecord{
		ProjectID:          loc.ProjectID,
		Path:               loc.ProjectPath,
		ParentProjectID:    loc.ParentProjectID,
		RelativeFromParent: loc.RelativeFromParent,
		CreatedAt:          now,
		LastAccessAt:       now,
	}

	if data, err := os.ReadFile(path); err == nil {
		var prev RegistryRecord
		if json.Unmarshal(data, &prev) == nil && prev.CreatedAt != "" {
			record.CreatedAt = prev.CreatedAt
		}
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return
	}
	if err := atomicWrite(path, append(data, '\n')); err != nil {
		slog.Warn("registry record write failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

// ReadRegistryRecord loads the registry record from a state root. Returns
// workflow.ErrNotFound when the record does not exist.
func ReadRegistryRecord(stateRoot string) (RegistryRecord, error) {
	path := filepath.Join(stateRoot, RegistryFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RegistryRecord{}, fmt.Errorf("%w: registry record %s", workflow.ErrNotFound, path)
		}
		return RegistryRecord{}, fmt.Errorf("%w: reading %s: %v", workflow.ErrIO, path, err)
	}
	var record RegistryRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return RegistryRecord{}, fmt.Errorf("%w: %s: %v", workflow.ErrParse, path, err)
	}
	return record, nil
}

// atomicWrite writes data to a sibling temp file and renames it over path.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	success = true
	return nil
}
