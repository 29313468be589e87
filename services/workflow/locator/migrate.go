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
	"log/slog"
	"os"
	"path/filepath"
)

// maybeMigrateFlatTree performs the one-shot flat-to-nested migration.
//
// Description:
//
//	Earlier versions stored every project flat under
//	<globalRoot>/projects/<projectId>. Once a parent project appears, the
//	child's canonical state root moves inside the parent's tree. When the
//	old flat directory still exists and the nested one does not, the flat
//	tree is renamed into place.
//
//	Failures are logged and swallowed: a permissions error here must not
//	break lookups, the caller continues with the nested state root and the
//	stale flat tree stays where it was.
//
// Thread Safety: Callers hold no locks; concurrent migrations of the same
// project race on os.Rename, which fails cleanly for the loser.
func maybeMigrateFlatTree(loc ProjectLocation) {
	if !loc.Nested() {
		return
	}

	flatRoot := filepath.Join(GlobalRoot(), projectsDirName, loc.ProjectID)
	if _, err := os.Stat(flatRoot); err != nil {
		return
	}
	if _, err := os.Stat(loc.StateRoot); err == nil {
		// Nested tree already exists; leave the flat one alone rather
		// than guessing how to merge the two.
		slog.Warn("flat and nested state roots both exist, skipping migration",
			slog.String("project_id", loc.ProjectID),
			slog.String("flat", flatRoot),
			slog.String("nested", loc.StateRoot))
		return
	}

	if err := os.MkdirAll(filepath.Dir(loc.StateRoot), 0o755); err != nil {
		slog.Warn("state root migration failed",
			slog.String("project_id", loc.ProjectID),
			slog.String("error", err.Error()))
		return
	}

	if err := os.Rename(flatRoot, loc.StateRoot); err != nil {
		slog.Warn("state root migration failed",
			slog.String("project_id", loc.ProjectID),
			slog.String("flat", flatRoot),
			slog.String("nested", loc.StateRoot),
			slog.String("error", err.Error()))
		return
	}

	migrationsTotal.Inc()
	slog.Info("migrated flat state root into parent tree",
		slog.String("project_id", loc.ProjectID),
		slog.String("parent_id", loc.ParentProjectID),
		slog.String("state_root", loc.StateRoot))
}
