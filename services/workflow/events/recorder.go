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

import (
	"sync"
)

// Recorder subscribes to a bus and collects everything it receives.
// It exists for tests that assert on emitted events.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	sub    *Subscription
	done   chan struct{}
}

// NewRecorder attaches a recorder to the bus. Call Stop when done.
func NewRecorder(bus *Bus, types ...Type) *Recorder {
	r := &Recorder{
		sub:  bus.Subscribe(types...),
		done: make(chan struct{}),
	}
	go r.collect()
	return r
}

func (r *Recorder) collect() {
	defer close(r.done)
	for event := range r.sub.C {
		r.mu.Lock()
		r.events = append(r.events, event)
		r.mu.Unlock()
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// EventsOfType returns recorded events matching the given type.
func (r *Recorder) EventsOfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Stop cancels the subscription and waits for the collector goroutine to
// finish draining, so that Events() afterwards is complete and stable.
func (r *Recorder) Stop() {
	r.sub.Cancel()
	<-r.done
}
