package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"websearch-mcp/internal/domain"
	"websearch-mcp/internal/infra/tracer"
)

// retryHint is appended to the message of transient failures.
const retryHint = " (transient error, may succeed on retry)"

// Execute is the standard tool execution pipeline: assign call id -> start trace
// -> parse params -> run handler -> format result.
//
// The handler receives the parsed params and an active trace span. It should return:
//   - (string, nil): wrapped in a plain-text ToolResult
//   - (*domain.ToolResult, nil): returned as-is, with the call id filled in
//   - (any other value, nil): JSON-marshaled into the ToolResult content
//   - (nil, error): logged, recorded on the span and returned to the caller
//
// Failures are returned as errors so the protocol layer answers with an error
// response instead of a successful result.
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	callID := domain.CallIDFromContext(ctx)
	if callID == "" {
		callID = ulid.Make().String()
		ctx = domain.ContextWithCallID(ctx, callID)
	}
	logger = logger.With("call_id", callID)

	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(
			tracer.StringAttr("tool.name", spanName),
			tracer.StringAttr("tool.call_id", callID),
		),
	)
	defer span.End()

	start := time.Now()
	logger.Debug(spanName + " started")

	var p P
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &p); err != nil {
			err = fmt.Errorf("%w: %v", domain.ErrInvalidParams, err)
			tracer.RecordError(span, err)
			return nil, err
		}
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		code := domain.ErrorCodeOf(err)
		span.SetAttributes(tracer.StringAttr("error.code", string(code)))
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed", "error", err, "code", code, "duration", time.Since(start))

		if classifyToolError(err) {
			return nil, fmt.Errorf("%w"+retryHint, err)
		}
		return nil, err
	}

	res, err := formatResult(span, result)
	if err != nil {
		return nil, err
	}
	res.CallID = callID
	logger.Debug(spanName+" completed", "duration", time.Since(start), "size", len(res.Content))
	return res, nil
}

// formatResult converts the handler's return value into a ToolResult.
func formatResult(span trace.Span, result any) (*domain.ToolResult, error) {
	switch v := result.(type) {
	case *domain.ToolResult:
		tracer.SetOK(span)
		return v, nil
	case string:
		tracer.SetOK(span)
		return &domain.ToolResult{Content: v}, nil
	default:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			err = fmt.Errorf("failed to format response: %w", err)
			tracer.RecordError(span, err)
			return nil, err
		}
		tracer.SetOK(span)
		return &domain.ToolResult{Content: string(data)}, nil
	}
}
