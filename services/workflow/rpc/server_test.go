// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ccw/services/workflow/history"
	"github.com/AleutianAI/ccw/services/workflow/tools"
)

// wireResponse decodes server frames with the result kept raw so each
// test can unmarshal it into the shape it expects.
type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *ResponseError  `json:"error"`
}

// stubTool is a configurable tool for server tests.
type stubTool struct {
	name string
	def  tools.Definition
	fn   func(ctx context.Context, params map[string]any) (*tools.Result, error)
}

func (s *stubTool) Name() string                 { return s.name }
func (s *stubTool) Definition() tools.Definition { return s.def }
func (s *stubTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	return s.fn(ctx, params)
}

func echoRegistry() *tools.Registry {
	reg := tools.NewRegistry(nil)
	reg.Register(&stubTool{
		name: "echo",
		def: tools.Definition{
			Name:        "echo",
			Description: "Echoes the message argument back",
			Parameters: map[string]tools.ParamDef{
				"message": {Type: tools.ParamTypeString, Description: "text to echo", Required: true},
			},
		},
		fn: func(ctx context.Context, params map[string]any) (*tools.Result, error) {
			return &tools.Result{Text: params["message"].(string)}, nil
		},
	})
	return reg
}

// rpcClient drives a running server over in-memory pipes.
type rpcClient struct {
	t         *testing.T
	in        *io.PipeWriter
	resp      chan wireResponse
	done      chan error
	closeOnce sync.Once
}

func newClient(t *testing.T, reg *tools.Registry, opts ...Option) *rpcClient {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	srv := NewServer(inR, outW, tools.NewExecutor(reg), ServerInfo{Name: "ccw", Version: "0.0.0-test"}, opts...)

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(context.Background())
		outW.Close()
	}()

	resp := make(chan wireResponse, 16)
	go func() {
		scanner := bufio.NewScanner(outR)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			var r wireResponse
			if err := json.Unmarshal(scanner.Bytes(), &r); err == nil {
				resp <- r
			}
		}
		close(resp)
	}()

	c := &rpcClient{t: t, in: inW, resp: resp, done: done}
	t.Cleanup(c.close)
	return c
}

func (c *rpcClient) send(frame string) {
	c.t.Helper()
	_, err := io.WriteString(c.in, frame+"\n")
	require.NoError(c.t, err)
}

func (c *rpcClient) recv() wireResponse {
	c.t.Helper()
	select {
	case r, ok := <-c.resp:
		require.True(c.t, ok, "server output closed before a response arrived")
		return r
	case <-time.After(3 * time.Second):
		c.t.Fatal("timed out waiting for a response")
		return wireResponse{}
	}
}

// close simulates the client going away: stdin EOF must shut the
// server down cleanly.
func (c *rpcClient) close() {
	c.closeOnce.Do(func() {
		_ = c.in.Close()
		select {
		case err := <-c.done:
			assert.NoError(c.t, err)
		case <-time.After(3 * time.Second):
			c.t.Error("server did not exit on EOF")
		}
	})
}

func callResultOf(t *testing.T, r wireResponse) CallResult {
	t.Helper()
	require.Nil(t, r.Error, "expected a result, got error: %+v", r.Error)
	var out CallResult
	require.NoError(t, json.Unmarshal(r.Result, &out))
	return out
}

func TestServer_Initialize(t *testing.T) {
	c := newClient(t, echoRegistry())

	c.send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"agent","version":"1.0"}}}`)
	r := c.recv()

	assert.Equal(t, "2.0", r.JSONRPC)
	assert.Equal(t, "1", string(r.ID))

	var init InitializeResult
	require.NoError(t, json.Unmarshal(r.Result, &init))
	assert.Equal(t, ProtocolVersion, init.ProtocolVersion)
	assert.Equal(t, "ccw", init.ServerInfo.Name)
	assert.Equal(t, "0.0.0-test", init.ServerInfo.Version)

	// capabilities.tools must be present as an object.
	var shape struct {
		Capabilities map[string]map[string]any `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(r.Result, &shape))
	assert.Contains(t, shape.Capabilities, "tools")
}

func TestServer_ToolsList(t *testing.T) {
	reg := echoRegistry()
	reg.Register(&stubTool{
		name: "alpha",
		def:  tools.Definition{Name: "alpha", Description: "first"},
		fn: func(ctx context.Context, params map[string]any) (*tools.Result, error) {
			return &tools.Result{}, nil
		},
	})
	c := newClient(t, reg)

	c.send(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	r := c.recv()

	var list ListToolsResult
	require.NoError(t, json.Unmarshal(r.Result, &list))
	require.Len(t, list.Tools, 2)
	assert.Equal(t, "alpha", list.Tools[0].Name)
	assert.Equal(t, "echo", list.Tools[1].Name)
	assert.Equal(t, "object", list.Tools[1].InputSchema["type"])
}

func TestServer_ToolsCall(t *testing.T) {
	c := newClient(t, echoRegistry())

	c.send(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hello"}}}`)
	r := c.recv()

	assert.Equal(t, "3", string(r.ID))
	call := callResultOf(t, r)
	require.Len(t, call.Content, 1)
	assert.Equal(t, "text", call.Content[0].Type)
	assert.Equal(t, "hello", call.Content[0].Text)
	assert.False(t, call.IsError)
}

func TestServer_ToolsCallUnknownTool(t *testing.T) {
	c := newClient(t, echoRegistry())

	c.send(`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"nope","arguments":{}}}`)
	call := callResultOf(t, c.recv())

	assert.True(t, call.IsError)
	require.Len(t, call.Content, 1)
	assert.Equal(t, "tool not found or not enabled", call.Content[0].Text)
}

func TestServer_ToolsCallMissingParameter(t *testing.T) {
	c := newClient(t, echoRegistry())

	c.send(`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"echo","arguments":{}}}`)
	call := callResultOf(t, c.recv())

	assert.True(t, call.IsError)
	assert.Equal(t, "Parameter message is required", call.Content[0].Text)
}

func TestServer_ToolsCallTimeout(t *testing.T) {
	reg := tools.NewRegistry(nil)
	reg.Register(&stubTool{
		name: "slow",
		def:  tools.Definition{Name: "slow", Timeout: 30 * time.Millisecond},
		fn: func(ctx context.Context, params map[string]any) (*tools.Result, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
				return &tools.Result{Text: "done"}, nil
			}
		},
	})
	c := newClient(t, reg)

	c.send(`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"slow","arguments":{}}}`)
	call := callResultOf(t, c.recv())

	assert.True(t, call.IsError)
	assert.Equal(t, "timeout", call.Content[0].Text)
}

func TestServer_ParseError(t *testing.T) {
	c := newClient(t, echoRegistry())

	c.send(`{this is not json`)
	r := c.recv()

	require.NotNil(t, r.Error)
	assert.Equal(t, CodeParseError, r.Error.Code)
	assert.Equal(t, "null", string(r.ID))
}

func TestServer_InvalidRequest(t *testing.T) {
	c := newClient(t, echoRegistry())

	t.Run("missing jsonrpc version", func(t *testing.T) {
		c.send(`{"id":7,"method":"tools/list"}`)
		r := c.recv()
		require.NotNil(t, r.Error)
		assert.Equal(t, CodeInvalidRequest, r.Error.Code)
		assert.Equal(t, "7", string(r.ID))
	})

	t.Run("valid json that is not a request object", func(t *testing.T) {
		c.send(`[1,2,3]`)
		r := c.recv()
		require.NotNil(t, r.Error)
		assert.Equal(t, CodeInvalidRequest, r.Error.Code)
		assert.Equal(t, "null", string(r.ID))
	})
}

func TestServer_MethodNotFound(t *testing.T) {
	c := newClient(t, echoRegistry())

	c.send(`{"jsonrpc":"2.0","id":8,"method":"bogus/method"}`)
	r := c.recv()

	require.NotNil(t, r.Error)
	assert.Equal(t, CodeMethodNotFound, r.Error.Code)
}

func TestServer_InvalidParams(t *testing.T) {
	c := newClient(t, echoRegistry())

	c.send(`{"jsonrpc":"2.0","id":9,"method":"tools/call","params":[1,2]}`)
	r := c.recv()

	require.NotNil(t, r.Error)
	assert.Equal(t, CodeInvalidParams, r.Error.Code)
}

func TestServer_NotificationsNeverAnswered(t *testing.T) {
	executed := make(chan struct{}, 1)
	reg := tools.NewRegistry(nil)
	reg.Register(&stubTool{
		name: "ping",
		def:  tools.Definition{Name: "ping"},
		fn: func(ctx context.Context, params map[string]any) (*tools.Result, error) {
			executed <- struct{}{}
			return &tools.Result{Text: "pong"}, nil
		},
	})
	c := newClient(t, reg)

	// The notification is processed but produces no frame; the next
	// frame on the wire must answer the initialize that follows it.
	c.send(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"ping","arguments":{}}}`)
	c.send(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	c.send(`{"jsonrpc":"2.0","id":10,"method":"initialize"}`)

	select {
	case <-executed:
	case <-time.After(3 * time.Second):
		t.Fatal("notification tools/call was not executed")
	}

	r := c.recv()
	assert.Equal(t, "10", string(r.ID))
	assert.Nil(t, r.Error)
}

func TestServer_StringIDEchoedExactly(t *testing.T) {
	c := newClient(t, echoRegistry())

	c.send(`{"jsonrpc":"2.0","id":"req-abc-123","method":"tools/list"}`)
	r := c.recv()

	assert.Equal(t, `"req-abc-123"`, string(r.ID))
}

func TestServer_ConcurrentCallsCarryTheirIDs(t *testing.T) {
	reg := tools.NewRegistry(nil)
	reg.Register(&stubTool{
		name: "sleep",
		def: tools.Definition{
			Name: "sleep",
			Parameters: map[string]tools.ParamDef{
				"ms": {Type: tools.ParamTypeInt, Description: "sleep duration", Required: true},
			},
		},
		fn: func(ctx context.Context, params map[string]any) (*tools.Result, error) {
			d := time.Duration(params["ms"].(float64)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
				return &tools.Result{Text: fmt.Sprintf("slept %v", d)}, nil
			}
		},
	})
	c := newClient(t, reg)

	c.send(`{"jsonrpc":"2.0","id":100,"method":"tools/call","params":{"name":"sleep","arguments":{"ms":150}}}`)
	c.send(`{"jsonrpc":"2.0","id":101,"method":"tools/call","params":{"name":"sleep","arguments":{"ms":10}}}`)

	texts := make(map[string]string, 2)
	for i := 0; i < 2; i++ {
		r := c.recv()
		call := callResultOf(t, r)
		texts[string(r.ID)] = call.Content[0].Text
	}

	assert.Equal(t, "slept 150ms", texts["100"])
	assert.Equal(t, "slept 10ms", texts["101"])
}

func TestServer_TranscriptRecordsCalls(t *testing.T) {
	stateRoot := t.TempDir()
	transcript := history.New(stateRoot)
	c := newClient(t, echoRegistry(), WithTranscript(transcript))

	c.send(`{"jsonrpc":"2.0","id":11,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`)
	c.recv()
	c.send(`{"jsonrpc":"2.0","id":12,"method":"tools/call","params":{"name":"missing","arguments":{}}}`)
	c.recv()

	entries, err := transcript.ReadDay(time.Now())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := make(map[string]history.Entry, 2)
	for _, e := range entries {
		byID[e.RequestID] = e
	}
	assert.Equal(t, "echo", byID["11"].Tool)
	assert.False(t, byID["11"].IsError)
	assert.Equal(t, "missing", byID["12"].Tool)
	assert.True(t, byID["12"].IsError)
}
