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
	"sort"
	"sync"
)

// Registry manages tool registration and lookup.
//
// Registration is gated by an EnabledSet so that the RPC server only
// ever sees tools the operator chose to expose. Tools filtered out at
// registration simply do not exist as far as callers are concerned.
//
// Thread Safety:
//
//	Registry is fully thread-safe. All methods can be called concurrently.
type Registry struct {
	mu sync.RWMutex

	// byName maps tool names to tool instances.
	byName map[string]Tool

	// enabled filters registration. Nil allows every tool.
	enabled EnabledSet
}

// NewRegistry creates an empty registry that admits tools allowed by
// the enabled set. A nil set admits everything; an empty non-nil set
// admits nothing.
func NewRegistry(enabled EnabledSet) *Registry {
	return &Registry{
		byName:  make(map[string]Tool),
		enabled: enabled,
	}
}

// Register adds a tool to the registry if the enabled set allows it.
//
// Description:
//
//	Registers a tool under its Name(). A tool with the same name
//	replaces the previous registration. Tools excluded by the enabled
//	set are silently dropped.
//
// Inputs:
//
//	tool - The tool to register. Nil tools are ignored.
//
// Outputs:
//
//	bool - True if the tool was admitted.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Register(tool Tool) bool {
	if tool == nil {
		return false
	}

	name := tool.Name()
	if !r.enabled.Allows(name) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = tool
	return true
}

// Get returns a tool by name.
//
// Outputs:
//
//	Tool - The registered tool, or nil if not found
//	bool - True if the tool was found
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.byName[name]
	return tool, ok
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Definitions returns definitions for all registered tools, sorted by
// name so catalog listings are deterministic.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definitions := make([]Definition, 0, len(r.byName))
	for _, tool := range r.byName {
		definitions = append(definitions, tool.Definition())
	}

	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].Name < definitions[j].Name
	})

	return definitions
}
