package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/recomind-agent-poc/server/internal/agent/model"
	errx "github.com/recomind-agent-poc/server/internal/core/error"
	logx "github.com/recomind-agent-poc/server/pkg/logger"
)

const DefaultCallTimeout = 30 * time.Second

// Dispatcher executes named tool calls against a transport and normalises
// every failure into the stable ToolOutcome error taxonomy. One outstanding
// call per invocation; no batching.
type Dispatcher struct {
	transport model.ToolTransport
	registry  map[string]model.ToolSpec
	timeout   time.Duration
}

func NewDispatcher(transport model.ToolTransport, timeout time.Duration, tools []model.ToolSpec) (*Dispatcher, error) {
	if transport == nil {
		return nil, fmt.Errorf("tool transport is nil")
	}
	if len(tools) == 0 {
		return nil, fmt.Errorf("dispatcher needs at least one registry tool")
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	registry := make(map[string]model.ToolSpec, len(tools))
	for _, t := range tools {
		registry[t.Name] = t
	}
	return &Dispatcher{transport: transport, registry: registry, timeout: timeout}, nil
}

// Invoke runs one tool call. Unknown names are rejected without touching the
// transport. The returned error is non-nil only when the parent context was
// canceled; every other failure comes back as a status=error outcome so the
// planner can react to it.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) (model.ToolOutcome, error) {
	if _, known := d.registry[name]; !known {
		logx.Warn().Str("tool_name", name).Msg("rejecting unknown tool call")
		return errorOutcome(name, model.ToolErrUnknownTool, fmt.Sprintf("tool %q is not registered", name)), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	payload, err := d.transport.Call(callCtx, name, args)
	elapsed := time.Since(start)

	if err != nil {
		// Parent cancellation: abandon the call, apply nothing.
		if ctx.Err() != nil {
			return model.ToolOutcome{}, ctx.Err()
		}
		outcome := normalizeCallError(name, err)
		logx.Warn().
			Str("tool_name", name).
			Dur("elapsed", elapsed).
			Str("error_detail", string(outcome.ErrorDetail)).
			Err(err).
			Msg("tool call failed")
		return outcome, nil
	}

	if !json.Valid(payload) {
		logx.Warn().Str("tool_name", name).Msg("tool returned malformed payload")
		return errorOutcome(name, model.ToolErrMalformedResponse, "payload is not valid JSON"), nil
	}

	logx.Debug().
		Str("tool_name", name).
		Dur("elapsed", elapsed).
		Int("payload_bytes", len(payload)).
		Msg("tool call ok")
	return model.ToolOutcome{
		ToolName: name,
		Status:   model.ToolStatusOK,
		Payload:  payload,
	}, nil
}

// normalizeCallError maps transport errors onto the outcome taxonomy instead
// of letting raw transport failures cross the loop boundary.
func normalizeCallError(name string, err error) model.ToolOutcome {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errorOutcome(name, model.ToolErrTimeout, "per-call timeout elapsed")
	case errors.Is(err, errx.ErrUnknownTool):
		return errorOutcome(name, model.ToolErrUnknownTool, err.Error())
	case errors.Is(err, errx.ErrToolFailed):
		return errorOutcome(name, model.ToolErrToolFailed, err.Error())
	default:
		return errorOutcome(name, model.ToolErrTransportFailure, err.Error())
	}
}

func errorOutcome(name string, detail model.ToolErrorDetail, msg string) model.ToolOutcome {
	return model.ToolOutcome{
		ToolName:    name,
		Status:      model.ToolStatusError,
		ErrorDetail: detail,
		Detail:      msg,
	}
}

var _ model.ToolDispatcher = (*Dispatcher)(nil)
