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

// SessionType classifies what kind of workflow a session drives.
type SessionType string

const (
	TypeWorkflow    SessionType = "workflow"
	TypeLitePlan    SessionType = "lite-plan"
	TypeLiteFix     SessionType = "lite-fix"
	TypeReview      SessionType = "review"
	TypeReviewCycle SessionType = "review-cycle"
	TypeTestFix     SessionType = "test-fix"
	TypeFix         SessionType = "fix"
)

var knownSessionTypes = map[SessionType]struct{}{
	TypeWorkflow:    {},
	TypeLitePlan:    {},
	TypeLiteFix:     {},
	TypeReview:      {},
	TypeReviewCycle: {},
	TypeTestFix:     {},
	TypeFix:         {},
}

// Valid reports whether t is a recognized session type.
func (t SessionType) Valid() bool {
	_, ok := knownSessionTypes[t]
	return ok
}

// InitialLocation returns where init places a session of this type.
// Lite types live under their own hidden roots; everything else starts
// in active.
func (t SessionType) InitialLocation() Location {
	switch t {
	case TypeLitePlan:
		return LocationLitePlan
	case TypeLiteFix:
		return LocationLiteFix
	default:
		return LocationActive
	}
}

// SessionStatus is the lifecycle state recorded in the session header.
type SessionStatus string

const (
	StatusInitialized SessionStatus = "initialized"
	StatusActive      SessionStatus = "active"
	StatusCompleted   SessionStatus = "completed"
	StatusArchived    SessionStatus = "archived"
	StatusFailed      SessionStatus = "failed"
)

// Location names one of the four session roots under
// <stateRoot>/.workflow.
type Location string

const (
	LocationActive   Location = "active"
	LocationArchived Location = "archived"
	LocationLitePlan Location = "lite-plan"
	LocationLiteFix  Location = "lite-fix"
)

// searchOrder is the lookup order for session resolution. Archives come
// last so an active session always shadows a stale archived copy.
var searchOrder = []Location{
	LocationActive,
	LocationLitePlan,
	LocationLiteFix,
	LocationArchived,
}

// DirName maps a location to its directory under .workflow/.
func (l Location) DirName() string {
	switch l {
	case LocationActive:
		return "active"
	case LocationArchived:
		return "archives"
	case LocationLitePlan:
		return ".lite-plan"
	case LocationLiteFix:
		return ".lite-fix"
	default:
		return string(l)
	}
}

// Valid reports whether l is one of the four session roots.
func (l Location) Valid() bool {
	switch l {
	case LocationActive, LocationArchived, LocationLitePlan, LocationLiteFix:
		return true
	}
	return false
}

// Session is the header document stored as workflow-session.json in every
// session directory.
//
// Timestamps are strings in the shared wire layout (UTC, millisecond
// precision) so that documents round-trip byte-stable through agents.
type Session struct {
	SessionID  string         `json:"sessionId"`
	Type       SessionType    `json:"type"`
	Status     SessionStatus  `json:"status"`
	Location   Location       `json:"location"`
	CreatedAt  string         `json:"createdAt"`
	UpdatedAt  string         `json:"updatedAt"`
	ArchivedAt string         `json:"archivedAt,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TaskCounts aggregates task documents by their status field.
type TaskCounts struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}

// SessionDigest is the computed, read-only summary served for the
// `status` content type and the dashboard snapshot.
type SessionDigest struct {
	SessionID  string        `json:"sessionId"`
	Type       SessionType   `json:"type"`
	Status     SessionStatus `json:"status"`
	Location   Location      `json:"location"`
	CreatedAt  string        `json:"createdAt"`
	UpdatedAt  string        `json:"updatedAt"`
	ArchivedAt string        `json:"archivedAt,omitempty"`
	Tasks      TaskCounts    `json:"tasks"`
}

// SessionEntry is one row of a List result. Header is populated only
// when the caller asked for metadata and the header file was readable;
// Location reflects the directory the session was found in, which is
// authoritative over the header's own location field.
type SessionEntry struct {
	SessionID string   `json:"sessionId"`
	Location  Location `json:"location"`
	Path      string   `json:"path"`
	Header    *Session `json:"header,omitempty"`
}
