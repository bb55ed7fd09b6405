// Package expressions evaluates the two small languages an architecture
// document may carry: CEL predicates that pick emphasised edges, and jq
// queries over a model.
package expressions

import "context"

// Engine evaluates an expression against a JSON-like value.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
