// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workflow holds the error taxonomy shared by the workflow
// subsystems (locator, store, tools, rpc, dashboard).
//
// Callers classify failures with errors.Is against these sentinels and
// attach detail by wrapping: fmt.Errorf("%w: session %q", ErrNotFound, id).
package workflow

import "errors"

// Sentinel errors for the workflow service.
var (
	// ErrInvalidID indicates a session or task identifier failed the
	// charset/shape check (path separators, "..", empty).
	ErrInvalidID = errors.New("invalid id")

	// ErrInvalidPath indicates a derived path escapes its containment root.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotFound indicates the target session or file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates init on an existing session, or an
	// occupied archive destination.
	ErrAlreadyExists = errors.New("already exists")

	// ErrParse indicates file contents were not valid JSON.
	ErrParse = errors.New("parse error")

	// ErrIO indicates an underlying filesystem failure.
	ErrIO = errors.New("io error")

	// ErrParameter indicates a missing or malformed tool argument.
	ErrParameter = errors.New("parameter error")

	// ErrTimeout indicates a tool handler exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrProtocol indicates a malformed JSON-RPC frame or unknown method.
	ErrProtocol = errors.New("protocol error")
)
