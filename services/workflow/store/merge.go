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

// shallowMerge returns a new map holding base overlaid with patch.
//
// Only top-level keys are considered: a patch key replaces the stored
// value wholesale, arrays and nested objects included. Keys absent from
// the patch are preserved. Neither input is mutated. Deep merging is
// deliberately not performed; last-write-wins concurrency depends on
// replacement staying wholesale.
func shallowMerge(base, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(patch))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range patch {
		merged[key] = value
	}
	return merged
}
