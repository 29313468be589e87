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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/ccw/services/workflow"
	"github.com/AleutianAI/ccw/services/workflow/history"
	"github.com/AleutianAI/ccw/services/workflow/tools"
)

var rpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ccw_rpc_requests_total",
	Help: "Total JSON-RPC frames handled by method and outcome",
}, []string{"method", "status"})

var rpcTracer = otel.Tracer("ccw.workflow.rpc")

// =============================================================================
// SERVER
// =============================================================================

// Server handles JSON-RPC tool calls over a line-delimited stream pair.
//
// Description:
//
//	Reads one JSON object per line from the input stream, dispatches
//	each request on its own goroutine, and serializes response writes
//	so every frame reaches the output stream atomically. Responses may
//	therefore arrive out of order; each carries the id of its request.
//
// Thread Safety:
//
//	Run must be called once. The write path is safe for the concurrent
//	handler goroutines Run spawns.
type Server struct {
	reader     *bufio.Reader
	writer     io.Writer
	writeMu    sync.Mutex
	executor   *tools.Executor
	transcript *history.Transcript
	info       ServerInfo
	wg         sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithTranscript records every tools/call to the given transcript.
// Append failures are logged and never fail the call.
func WithTranscript(t *history.Transcript) Option {
	return func(s *Server) {
		s.transcript = t
	}
}

// NewServer creates a server reading requests from r and writing
// responses to w.
//
// Inputs:
//
//	r - Request stream (stdin in production)
//	w - Response stream (stdout in production)
//	executor - Tool executor backing tools/call
//	info - Identity reported by the initialize handshake
func NewServer(r io.Reader, w io.Writer, executor *tools.Executor, info ServerInfo, opts ...Option) *Server {
	s := &Server{
		reader:   bufio.NewReader(r),
		writer:   w,
		executor: executor,
		info:     info,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads and serves requests until the input stream closes or the
// context is cancelled.
//
// Description:
//
//	Lines are read by a dedicated goroutine so cancellation is not
//	stuck behind a blocking read. EOF is the normal shutdown path for
//	a stdio server; Run waits for in-flight handlers before returning.
//
// Outputs:
//
//	error - nil on EOF, ctx.Err() on cancellation, or a read failure
//	        wrapping workflow.ErrIO
func (s *Server) Run(ctx context.Context) error {
	slog.Info("rpc server listening", "server", s.info.Name, "version", s.info.Version)

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := s.reader.ReadBytes('\n')
			// A final line without a newline still arrives with err set.
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				select {
				case lines <- trimmed:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case err := <-readErr:
			s.wg.Wait()
			if errors.Is(err, io.EOF) {
				slog.Info("rpc input closed, server exiting")
				return nil
			}
			return fmt.Errorf("%w: reading rpc input: %v", workflow.ErrIO, err)
		case line := <-lines:
			s.handleLine(ctx, line)
		}
	}
}

// handleLine parses one frame and dispatches it. Parse failures are
// answered inline with a null id because the request id is unknowable.
func (s *Server) handleLine(ctx context.Context, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		rpcRequests.WithLabelValues("unknown", "error").Inc()
		if json.Valid(line) {
			s.replyError(nil, CodeInvalidRequest, "Invalid Request", err.Error())
		} else {
			s.replyError(nil, CodeParseError, "Parse error", err.Error())
		}
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatch(ctx, &req)
	}()
}

// dispatch routes one parsed request to its method handler.
func (s *Server) dispatch(ctx context.Context, req *Request) {
	ctx, span := rpcTracer.Start(ctx, "rpc.dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("rpc.method", req.Method))

	if req.JSONRPC != JSONRPCVersion || req.Method == "" {
		rpcRequests.WithLabelValues(req.Method, "error").Inc()
		span.SetStatus(codes.Error, "invalid request")
		if req.IsNotification() {
			slog.Warn("dropping invalid notification frame", "method", req.Method)
			return
		}
		s.replyError(req.ID, CodeInvalidRequest, "Invalid Request", nil)
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(ctx, req)
	case "notifications/initialized":
		// Handshake acknowledgement. Recognized, nothing to answer.
		rpcRequests.WithLabelValues(req.Method, "ok").Inc()
	default:
		rpcRequests.WithLabelValues(req.Method, "error").Inc()
		span.SetStatus(codes.Error, "method not found")
		if req.IsNotification() {
			slog.Debug("ignoring unknown notification", "method", req.Method)
			return
		}
		s.replyError(req.ID, CodeMethodNotFound, "Method not found", req.Method)
	}
}

// handleInitialize answers the handshake with the server identity and
// capabilities. Client details are logged for debugging only.
func (s *Server) handleInitialize(req *Request) {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			slog.Debug("unparsable initialize params", "error", err)
		}
	}
	slog.Info("client connected",
		"client", params.ClientInfo.Name,
		"clientVersion", params.ClientInfo.Version,
		"protocolVersion", params.ProtocolVersion)

	rpcRequests.WithLabelValues(req.Method, "ok").Inc()
	if req.IsNotification() {
		return
	}
	s.replyResult(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      s.info,
	})
}

// handleToolsList answers with the catalog of enabled tools.
func (s *Server) handleToolsList(req *Request) {
	defs := s.executor.Registry().Definitions()
	catalog := make([]ToolDescriptor, 0, len(defs))
	for _, def := range defs {
		catalog = append(catalog, ToolDescriptor{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema(),
		})
	}

	rpcRequests.WithLabelValues(req.Method, "ok").Inc()
	if req.IsNotification() {
		return
	}
	s.replyResult(req.ID, ListToolsResult{Tools: catalog})
}

// handleToolsCall executes one tool and answers with the result
// envelope.
//
// Description:
//
//	Handled failures (unknown tool, argument validation, handler
//	errors, timeouts) become isError envelopes whose text the calling
//	agent reads. Only a params payload that does not decode at all is
//	a protocol error.
func (s *Server) handleToolsCall(ctx context.Context, req *Request) {
	var params CallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		rpcRequests.WithLabelValues(req.Method, "error").Inc()
		if req.IsNotification() {
			return
		}
		data := "name is required"
		if err != nil {
			data = err.Error()
		}
		s.replyError(req.ID, CodeInvalidParams, "Invalid params", data)
		return
	}

	start := time.Now()
	result, err := s.executor.Execute(ctx, params.Name, params.Arguments)
	elapsed := time.Since(start)

	var call *CallResult
	switch {
	case err != nil && errors.Is(err, workflow.ErrTimeout):
		call = textResult(workflow.ErrTimeout.Error(), true)
	case err != nil:
		call = textResult(err.Error(), true)
	default:
		call = textResult(result.Text, result.IsError)
	}

	s.appendTranscript(params.Name, elapsed, call.IsError, req.ID)

	status := "ok"
	if call.IsError {
		status = "error"
	}
	rpcRequests.WithLabelValues(req.Method, status).Inc()

	if req.IsNotification() {
		return
	}
	s.replyResult(req.ID, call)
}

// appendTranscript records one call in the CLI history, best effort.
func (s *Server) appendTranscript(tool string, elapsed time.Duration, isError bool, id json.RawMessage) {
	if s.transcript == nil {
		return
	}
	entry := history.Entry{
		Tool:       tool,
		DurationMs: elapsed.Milliseconds(),
		IsError:    isError,
		RequestID:  requestID(id),
	}
	if err := s.transcript.Append(entry); err != nil {
		slog.Warn("transcript append failed", "tool", tool, "error", err)
	}
}

// requestID renders a raw id for the transcript. String ids are
// unquoted; everything else is kept as written.
func requestID(id json.RawMessage) string {
	if len(id) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(id, &str); err == nil {
		return str
	}
	return string(id)
}

// replyResult writes a success response.
func (s *Server) replyResult(id json.RawMessage, result any) {
	s.reply(&Response{JSONRPC: JSONRPCVersion, ID: id, Result: result})
}

// replyError writes a protocol error response. A nil id marshals as
// null, per the parse-error rule.
func (s *Server) replyError(id json.RawMessage, code int, message string, data any) {
	s.reply(&Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &ResponseError{Code: code, Message: message, Data: data},
	})
}

// reply marshals and writes one frame. The newline is appended before
// the single Write so concurrent handlers cannot interleave frames.
func (s *Server) reply(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("rpc response marshal failed", "error", err)
		return
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.writer.Write(data); err != nil {
		slog.Error("rpc response write failed", "error", err)
	}
}
