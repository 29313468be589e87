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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/ccw/services/workflow"
)

// DefaultTimeout bounds a single tool call unless the tool's Definition
// or the executor configuration overrides it.
const DefaultTimeout = 30 * time.Second

// ErrUnknownTool indicates the requested tool is not registered, either
// because it does not exist or because the enabled set excluded it. The
// message is surfaced verbatim to RPC callers.
var ErrUnknownTool = errors.New("tool not found or not enabled")

var (
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ccw_tool_calls_total",
		Help: "Total tool invocations by tool and outcome",
	}, []string{"tool", "status"})

	toolLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ccw_tool_call_seconds",
		Help:    "Tool call latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})
)

var toolTracer = otel.Tracer("ccw.workflow.tools")

// ValidationError reports a tool argument that failed schema validation.
// Its message is written for the calling agent, not for logs, because it
// is surfaced verbatim in the tool result.
type ValidationError struct {
	// Parameter is the offending argument name.
	Parameter string

	// Message is the caller-facing description.
	Message string
}

// Error returns the caller-facing message.
func (e *ValidationError) Error() string { return e.Message }

// Unwrap classifies validation failures as parameter errors.
func (e *ValidationError) Unwrap() error { return workflow.ErrParameter }

// Executor runs tools with argument validation, a per-call deadline,
// and metrics.
//
// Thread Safety:
//
//	Executor is safe for concurrent use. Tool calls run independently.
type Executor struct {
	registry *Registry
	timeout  time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout overrides the default per-call timeout. Zero or negative
// values are ignored.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one tool call.
//
// Description:
//
//	Looks the tool up by name, validates arguments against its
//	Definition, then executes it under a deadline. The deadline is the
//	tool's own Timeout when set, otherwise the executor default. The
//	deadline is enforced here, not in the tool: a handler that ignores
//	its context keeps running, but Execute returns the timeout error
//	and the late result is discarded.
//
// Outputs:
//
//	*Result - The tool result on success
//	error - ErrUnknownTool, a ValidationError (parameter error), a
//	        timeout wrapping workflow.ErrTimeout, or the tool's own error
//
// Thread Safety: This method is safe for concurrent use.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (*Result, error) {
	start := time.Now()

	ctx, span := toolTracer.Start(ctx, "tools.call")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	tool, ok := e.registry.Get(name)
	if !ok {
		toolCalls.WithLabelValues(name, "not_found").Inc()
		span.SetStatus(codes.Error, ErrUnknownTool.Error())
		return nil, ErrUnknownTool
	}

	def := tool.Definition()
	if err := validateArgs(def, args); err != nil {
		toolCalls.WithLabelValues(name, "invalid_params").Inc()
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("tool argument validation failed", "tool", name, "error", err)
		return nil, err
	}

	timeout := e.timeout
	if def.Timeout > 0 {
		timeout = def.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := tool.Execute(ctx, args)
		done <- outcome{result: result, err: err}
	}()

	var result *Result
	var err error
	select {
	case out := <-done:
		result, err = out.result, out.err
	case <-ctx.Done():
		// The handler may keep running; its eventual result is discarded.
		err = ctx.Err()
	}
	elapsed := time.Since(start)
	toolLatency.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			toolCalls.WithLabelValues(name, "timeout").Inc()
			span.SetStatus(codes.Error, "timeout")
			slog.Error("tool call timed out", "tool", name, "timeout", timeout)
			return nil, fmt.Errorf("%w: %s after %v", workflow.ErrTimeout, name, timeout)
		}
		toolCalls.WithLabelValues(name, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("tool call failed", "tool", name, "error", err)
		return nil, err
	}

	if result == nil {
		result = &Result{}
	}
	result.Duration = elapsed
	toolCalls.WithLabelValues(name, "success").Inc()
	slog.Debug("tool call completed", "tool", name, "duration", elapsed)
	return result, nil
}

// Registry exposes the underlying registry, for catalog listings.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// validateArgs checks arguments against the definition: required keys
// present, top-level types match, enum membership holds. Unknown
// arguments pass through untouched so tools can evolve their schemas
// without breaking older callers.
func validateArgs(def Definition, args map[string]any) error {
	for pname, pdef := range def.Parameters {
		value, present := args[pname]
		if !present || value == nil {
			if pdef.Required {
				return &ValidationError{
					Parameter: pname,
					Message:   fmt.Sprintf("Parameter %s is required", pname),
				}
			}
			continue
		}
		if err := validateArg(pname, value, pdef); err != nil {
			return err
		}
	}
	return nil
}

// validateArg checks one provided argument value.
func validateArg(name string, value any, def ParamDef) error {
	switch def.Type {
	case ParamTypeString:
		if _, ok := value.(string); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("Parameter %s must be a string, got %T", name, value),
			}
		}

	case ParamTypeInt:
		// JSON numbers decode as float64; accept int forms too.
		switch value.(type) {
		case int, int64, float64:
		default:
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("Parameter %s must be an integer, got %T", name, value),
			}
		}

	case ParamTypeBool:
		if _, ok := value.(bool); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("Parameter %s must be a boolean, got %T", name, value),
			}
		}

	case ParamTypeObject:
		if _, ok := value.(map[string]any); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("Parameter %s must be an object, got %T", name, value),
			}
		}
	}

	if len(def.Enum) > 0 {
		for _, allowed := range def.Enum {
			if value == allowed {
				return nil
			}
		}
		return &ValidationError{
			Parameter: name,
			Message:   fmt.Sprintf("Parameter %s must be one of %v, got %v", name, def.Enum, value),
		}
	}

	return nil
}
