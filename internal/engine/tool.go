package engine

import (
	"context"

	"github.com/varflow/varflow/pkg/schema"
)

// ToolCaller performs the external unit of work an action step invokes.
// The engine treats any returned error as a step failure; it never lets one
// propagate. Implementations should wrap slow transports with their own
// timeout; the engine has no internal cancellation beyond ctx.
type ToolCaller interface {
	Execute(ctx context.Context, toolID string, params map[string]any) (map[string]any, error)
}

// ToolCallerFunc adapts a function to the ToolCaller interface.
type ToolCallerFunc func(ctx context.Context, toolID string, params map[string]any) (map[string]any, error)

func (f ToolCallerFunc) Execute(ctx context.Context, toolID string, params map[string]any) (map[string]any, error) {
	return f(ctx, toolID, params)
}

// StatusSink receives a StatusUpdate at each phase boundary of a step
// execution. Purely observational: no backpressure, errors are not expected.
type StatusSink interface {
	Notify(ctx context.Context, update schema.StatusUpdate)
}

// SinkFunc adapts a function to the StatusSink interface.
type SinkFunc func(ctx context.Context, update schema.StatusUpdate)

func (f SinkFunc) Notify(ctx context.Context, update schema.StatusUpdate) {
	f(ctx, update)
}

// noopSink swallows updates when no sink is configured.
type noopSink struct{}

func (noopSink) Notify(context.Context, schema.StatusUpdate) {}
