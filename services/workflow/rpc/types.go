// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rpc implements the stdio tool-calling server: JSON-RPC 2.0
// over line-delimited JSON, one object per line on stdin and stdout.
// Stderr carries logs only and never protocol frames.
//
// The server speaks the tool-calling subset agent clients use:
// initialize, tools/list, and tools/call. Handled tool failures are
// reported inside the tools/call result envelope with isError set;
// the JSON-RPC error object is reserved for protocol-level faults
// such as malformed frames and unknown methods.
package rpc

import (
	"encoding/json"
)

// JSONRPCVersion is the protocol version stamped on every frame.
const JSONRPCVersion = "2.0"

// ProtocolVersion is the tool-calling protocol revision reported by
// the initialize handshake.
const ProtocolVersion = "2024-11-05"

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// =============================================================================
// JSON-RPC MESSAGE TYPES
// =============================================================================

// Request represents one inbound JSON-RPC frame.
//
// ID is kept raw so responses echo it byte-for-byte whether the client
// sent a number or a string. A frame without an id is a notification.
type Request struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the request identifier. Absent for notifications.
	ID json.RawMessage `json:"id,omitempty"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the method parameters.
	Params json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the frame carries no id and therefore
// must never be answered.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response represents one outbound JSON-RPC frame.
type Response struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID echoes the request identifier. A nil value marshals as null,
	// which is what parse-error replies require.
	ID json.RawMessage `json:"id"`

	// Result contains the method result (mutually exclusive with Error).
	Result any `json:"result,omitempty"`

	// Error contains error information (mutually exclusive with Result).
	Error *ResponseError `json:"error,omitempty"`
}

// ResponseError represents a JSON-RPC protocol error.
type ResponseError struct {
	// Code is the error code.
	Code int `json:"code"`

	// Message is a short description of the error.
	Message string `json:"message"`

	// Data contains additional error information.
	Data any `json:"data,omitempty"`
}

// =============================================================================
// METHOD PAYLOADS
// =============================================================================

// InitializeParams are the client's initialize arguments. Unknown
// fields are ignored.
type InitializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ClientInfo      ClientInfo `json:"clientInfo"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the initialize handshake response.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// ServerInfo identifies this server to clients.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities advertises the feature set. Only tool calling is
// offered.
type Capabilities struct {
	Tools struct{} `json:"tools"`
}

// ToolDescriptor is one tools/list catalog entry.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ListToolsResult is the tools/list response.
type ListToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// CallParams are the tools/call arguments.
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ContentItem is one element of a tool result.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ContentTypeText is the only content type this server emits.
const ContentTypeText = "text"

// CallResult is the tools/call result envelope. IsError marks handled
// tool failures; protocol faults never reach this type.
type CallResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// textResult wraps a single text element into a CallResult.
func textResult(text string, isError bool) *CallResult {
	return &CallResult{
		Content: []ContentItem{{Type: ContentTypeText, Text: text}},
		IsError: isError,
	}
}
