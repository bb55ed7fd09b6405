package expressions

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rendis/archflow/pkg/schema"
)

// Variables every jq query may reference. Outside QueryModel they are empty.
//
//	$slug   the diagram slug
//	$edges  resolved edge id -> {from, to, lane, label}
var jqVariables = []string{"$slug", "$edges"}

// GoJQEngine runs jq queries over architecture models. Compiled programs are
// cached by expression text.
type GoJQEngine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{cache: make(map[string]*gojq.Code)}
}

func (e *GoJQEngine) Name() string { return "jq" }

// Evaluate runs expression against data. No output yields nil, one output is
// returned as is, and several are collected into a []any.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	out, err := e.EvaluateAll(ctx, expression, data)
	return collapse(out), err
}

// EvaluateAll is Evaluate without collapsing the outputs.
func (e *GoJQEngine) EvaluateAll(ctx context.Context, expression string, data any) ([]any, error) {
	return e.run(ctx, expression, data, "", map[string]any{})
}

// QueryModel runs expression over the model's JSON form, so queries use the
// authored field names. Edge ids are resolved for $edges, which lets a query
// follow timeline references: `.scenarios[0].timeline[].edge_id | $edges[.]`.
func (e *GoJQEngine) QueryModel(ctx context.Context, expression string, model *schema.ArchitectureModel) (any, error) {
	doc, err := toJSONValue(model)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "model is not JSON encodable").WithCause(err)
	}
	edges := make(map[string]any, len(model.Edges))
	for _, edge := range model.Edges {
		edges[edge.Key()] = map[string]any{
			"from":  edge.From,
			"to":    edge.To,
			"lane":  string(edge.Lane),
			"label": edge.Label,
		}
	}
	out, err := e.run(ctx, expression, doc, model.Slug, edges)
	if err != nil {
		if aerr, ok := err.(*schema.ArchflowError); ok && model.Slug != "" {
			return nil, aerr.WithSlug(model.Slug)
		}
		return nil, err
	}
	return collapse(out), nil
}

func (e *GoJQEngine) run(ctx context.Context, expression string, input any, vars ...any) ([]any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq expression")
	}
	code, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	var out []any
	iter := code.RunWithContext(ctx, input, vars...)
	for {
		v, ok := iter.Next()
		if !ok {
			return out, nil
		}
		if err, isErr := v.(error); isErr {
			return nil, jqError("jq evaluation failed for %q: %s", expression, err)
		}
		out = append(out, v)
	}
}

func (e *GoJQEngine) compile(expression string) (*gojq.Code, error) {
	e.mu.RLock()
	code, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, jqError("jq parse error in %q: %s", expression, err)
	}
	code, err = gojq.Compile(query,
		gojq.WithVariables(jqVariables),
		// $ENV and env stay empty.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, jqError("jq compile error in %q: %s", expression, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.cache[expression]; ok {
		return cached, nil
	}
	e.cache[expression] = code
	return code, nil
}

func jqError(format, expression string, err error) *schema.ArchflowError {
	return schema.NewErrorf(schema.ErrCodeExpression, format, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func collapse(out []any) any {
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// toJSONValue converts v into the map/slice/float64 shapes gojq expects.
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(raw, &out)
	return out, err
}

var _ Engine = (*GoJQEngine)(nil)
