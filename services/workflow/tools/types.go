// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the registry, executor, and implementations of
// the workspace tools exposed over the stdio RPC server: session
// management, file writes and edits, project search, and code outlines.
//
// Each tool declares its parameter schema through a Definition; the
// Executor validates arguments against that schema before dispatch, so
// tool implementations can assume presence and type of their required
// parameters.
//
// Thread Safety:
//
//	All types in this package are safe for concurrent use.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ParamType is the JSON Schema type of a tool parameter. An empty type
// leaves the parameter unconstrained, for arguments that accept both
// strings and objects.
type ParamType string

const (
	ParamTypeString ParamType = "string"
	ParamTypeInt    ParamType = "integer"
	ParamTypeBool   ParamType = "boolean"
	ParamTypeObject ParamType = "object"
)

// ParamDef defines a single tool parameter.
type ParamDef struct {
	// Type is the expected JSON type. Empty accepts any value.
	Type ParamType `json:"type,omitempty"`

	// Description explains what the parameter is for.
	Description string `json:"description"`

	// Required indicates the parameter must be provided.
	Required bool `json:"required"`

	// Enum restricts string values to a fixed set.
	Enum []any `json:"enum,omitempty"`

	// Default documents the value used when absent.
	Default any `json:"default,omitempty"`
}

// Definition describes a tool's callable surface.
type Definition struct {
	// Name is the unique tool identifier.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// Parameters defines the accepted arguments.
	Parameters map[string]ParamDef `json:"parameters"`

	// SideEffects indicates the tool mutates workspace state.
	SideEffects bool `json:"side_effects"`

	// Timeout overrides the executor's default when positive.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// InputSchema exports the definition as a JSON Schema object of the
// shape tool-calling clients expect: {type, properties, required}.
// Every name in required is by construction a key of properties.
func (d Definition) InputSchema() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	var required []string
	for name, param := range d.Parameters {
		prop := map[string]any{}
		if param.Type != "" {
			prop["type"] = string(param.Type)
		}
		if param.Description != "" {
			prop["description"] = param.Description
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		properties[name] = prop
		if param.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Tool is the interface every workspace tool implements.
//
// Execute receives parameters already validated against Definition.
// It returns a Result for tool-level outcomes, including failures the
// caller should see as an error result; a non-nil error is reserved
// for conditions the tool could not express as output.
type Tool interface {
	Name() string
	Definition() Definition
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result is one tool execution outcome.
type Result struct {
	// Text is the tool output, usually a JSON document.
	Text string `json:"text"`

	// IsError marks the output as a handled failure.
	IsError bool `json:"isError"`

	// Duration is stamped by the executor.
	Duration time.Duration `json:"duration"`
}

// jsonResult marshals a value into a success Result.
func jsonResult(v any) (*Result, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tool output: %w", err)
	}
	return &Result{Text: string(encoded)}, nil
}

// EnabledSet filters which tools are registered, parsed from the
// CCW_ENABLED_TOOLS environment value. A nil set allows everything;
// a non-nil empty set allows nothing.
type EnabledSet map[string]struct{}

// ParseEnabled interprets a comma-separated tool list. The literal "all"
// enables every tool; an empty value enables none. Tool exposure is
// opt-in, so an unset environment leaves the catalog empty.
func ParseEnabled(spec string) EnabledSet {
	trimmed := strings.TrimSpace(spec)
	if strings.EqualFold(trimmed, "all") {
		return nil
	}
	set := make(EnabledSet)
	if trimmed == "" {
		return set
	}
	for _, name := range strings.Split(trimmed, ",") {
		if name = strings.TrimSpace(name); name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// Allows reports whether a tool name is enabled.
func (s EnabledSet) Allows(name string) bool {
	if s == nil {
		return true
	}
	_, ok := s[name]
	return ok
}
