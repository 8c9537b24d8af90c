package expressions

import "context"

// Engine evaluates expressions against a workflow variable scope.
// Three implementations: Expr (condition logic, default), CEL (conditions),
// GoJQ (output transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
