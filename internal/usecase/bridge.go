package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"pplx-mcp/internal/domain"
	"pplx-mcp/internal/infra/tracer"
)

const invokeOp = "Bridge.Invoke"

// SearchBridge exposes registered capabilities to a protocol adapter. It
// holds no per-invocation state; concurrent calls are safe.
type SearchBridge struct {
	tools  domain.ToolExecutor
	logger *slog.Logger
}

// NewSearchBridge creates a bridge over the given tool set.
func NewSearchBridge(tools domain.ToolExecutor, logger *slog.Logger) *SearchBridge {
	return &SearchBridge{tools: tools, logger: logger}
}

// ListCapabilities returns the descriptors of all registered capabilities,
// sorted by name.
func (b *SearchBridge) ListCapabilities() []domain.ToolSchema {
	return b.tools.Schemas()
}

// Invoke runs the named capability with args. On failure the returned error
// wraps exactly one of domain.ErrUnknownCapability, domain.ErrInvalidInput,
// domain.ErrUpstream or domain.ErrInternal, and the result is nil.
func (b *SearchBridge) Invoke(ctx context.Context, name string, args map[string]any) (*domain.ToolResult, error) {
	start := time.Now()
	id := generateULID(start)

	ctx, span := tracer.StartSpan(ctx, "bridge.invoke",
		trace.WithAttributes(
			tracer.StringAttr("bridge.tool", name),
			tracer.StringAttr("bridge.invocation_id", id),
		),
	)
	defer span.End()

	log := b.logger.With("invocation_id", id, "tool", name)
	log.Info("invocation started")

	result, err := b.invoke(ctx, name, args)
	if err != nil {
		err = domain.Classify(invokeOp, err)
		tracer.RecordError(span, err)
		log.Warn("invocation failed",
			"code", domain.ErrorCodeOf(err),
			"error", err,
			"duration", time.Since(start),
		)
		return nil, err
	}

	tracer.SetOK(span)
	log.Info("invocation finished",
		"blocks", len(result.Content),
		"duration", time.Since(start),
	)
	return result, nil
}

func (b *SearchBridge) invoke(ctx context.Context, name string, args map[string]any) (*domain.ToolResult, error) {
	tool, err := b.tools.Get(name)
	if err != nil {
		return nil, err
	}

	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, domain.NewDomainError(invokeOp, domain.ErrInvalidInput, fmt.Sprintf("encode arguments: %v", err))
	}

	return tool.Execute(ctx, raw)
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
