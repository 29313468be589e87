// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import "time"

// Type identifies the kind of mutation an event describes.
type Type string

// Event types published by the session store, the session watcher, and
// the dashboard hook endpoint. Clients must tolerate types they do not
// recognize; TASK_CREATED and FILE_WRITTEN arrive only from sources that
// can distinguish creation from update.
const (
	TypeSessionCreated  Type = "SESSION_CREATED"
	TypeSessionUpdated  Type = "SESSION_UPDATED"
	TypeSessionArchived Type = "SESSION_ARCHIVED"
	TypeTaskCreated     Type = "TASK_CREATED"
	TypeTaskUpdated     Type = "TASK_UPDATED"
	TypeFileWritten     Type = "FILE_WRITTEN"
)

// knownTypes is the closed set accepted from external sources.
var knownTypes = map[Type]struct{}{
	TypeSessionCreated:  {},
	TypeSessionUpdated:  {},
	TypeSessionArchived: {},
	TypeTaskCreated:     {},
	TypeTaskUpdated:     {},
	TypeFileWritten:     {},
}

// Valid reports whether t is one of the defined event types.
func (t Type) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// TimestampLayout is the wire format for event timestamps:
// RFC 3339 UTC with millisecond precision, e.g. 2025-01-01T00:00:00.000Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Now returns the current time formatted with TimestampLayout.
func Now() string {
	return time.Now().UTC().Format(TimestampLayout)
}

// Event is the unit published on the Bus and pushed to every dashboard
// WebSocket as a single JSON frame.
type Event struct {
	// Type is the mutation kind.
	Type Type `json:"type"`

	// SessionID is the affected session. Empty for events that are not
	// session-scoped.
	SessionID string `json:"sessionId,omitempty"`

	// EntityID narrows the event to a child entity: a taskId or a file
	// path relative to the session directory.
	EntityID string `json:"entityId,omitempty"`

	// Payload carries a subset of the mutated document.
	Payload map[string]any `json:"payload,omitempty"`

	// Timestamp is in TimestampLayout form. Publish stamps it when empty.
	Timestamp string `json:"timestamp"`
}

// Clone returns a deep copy of the event. Payload maps and nested slices
// are copied so one subscriber cannot mutate another's view.
func (e Event) Clone() Event {
	clone := e
	clone.Payload = clonePayload(e.Payload)
	return clone
}

func clonePayload(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return clonePayload(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		// Scalars from JSON decoding (string, float64, bool, nil) are
		// immutable; share them.
		return val
	}
}
