package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"pplx-mcp/internal/domain"
	"pplx-mcp/internal/infra/tracer"
)

// Execute is the standard tool execution pipeline: start trace -> parse params -> run handler -> format result.
//
// The handler receives the parsed params and an active trace span. It should return:
//   - ([]string, nil): each element becomes one text block
//   - (string, nil): a single text block
//   - (*domain.ToolResult, nil): returned as-is
//   - (nil, error): classified into an invocation error kind and returned
//
// Params that fail to decode are reported as domain.ErrInvalidInput.
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	p, err := ParseParams[P](rawParams)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		err = domain.Classify(spanName, err)
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed", "error", err, "code", domain.ErrorCodeOf(err))
		return nil, err
	}

	return formatResult(span, result)
}

// ParseParams unmarshals rawParams into P. Empty params decode as {}.
func ParseParams[P any](rawParams json.RawMessage) (P, error) {
	var p P
	if len(rawParams) == 0 {
		rawParams = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(rawParams, &p); err != nil {
		return p, domain.NewDomainError("ParseParams", domain.ErrInvalidInput, fmt.Sprintf("invalid params: %v", err))
	}
	return p, nil
}

// formatResult converts the handler's return value into a ToolResult.
func formatResult(span trace.Span, result any) (*domain.ToolResult, error) {
	switch v := result.(type) {
	case *domain.ToolResult:
		tracer.SetOK(span)
		return v, nil
	case []string:
		tracer.SetOK(span)
		return BlocksResult(v...), nil
	case string:
		tracer.SetOK(span)
		return TextResult(v), nil
	default:
		err := domain.NewDomainError("formatResult", domain.ErrInternal, fmt.Sprintf("unsupported result type %T", result))
		tracer.RecordError(span, err)
		return nil, err
	}
}
