package expressions

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rendis/archflow/pkg/schema"
)

// celVars are the variables a CEL expression may reference. Both are
// map(string, dyn); an omitted one is bound to an empty map.
var celVars = []string{"edge", "scenario"}

// EdgePredicate reports whether an edge is emphasised.
type EdgePredicate func(schema.Edge) bool

// CELEngine evaluates focus expressions. edge carries id, from, to, lane and
// label; scenario carries id and label. Programs are cached per expression
// text and shared between goroutines.
type CELEngine struct {
	env      *cel.Env
	programs sync.Map // expression -> *compiled
}

// NewCELEngine creates an engine whose environment declares the edge and
// scenario variables as map(string, dyn).
func NewCELEngine() (*CELEngine, error) {
	opts := make([]cel.EnvOption, 0, len(celVars))
	for _, name := range celVars {
		opts = append(opts, cel.Variable(name, cel.MapType(cel.StringType, cel.DynType)))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExpression, "CEL environment").WithCause(err)
	}
	return &CELEngine{env: env}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string { return "cel" }

// Evaluate runs expression against data and returns the native result.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	prg, err := e.program(expression, false)
	if err != nil {
		return nil, err
	}
	out, _, err := prg.ContextEval(ctx, activation(data))
	if err != nil {
		return nil, celError("evaluate", expression, err)
	}
	return out.Value(), nil
}

// EdgePredicate compiles expression into a predicate. Expressions whose
// static type can never be bool are rejected. At evaluation time an error or
// a non-bool value counts as false, so one odd edge never aborts a render.
func (e *CELEngine) EdgePredicate(expression string) (EdgePredicate, error) {
	prg, err := e.program(expression, true)
	if err != nil {
		return nil, err
	}
	return func(edge schema.Edge) bool {
		out, _, evalErr := prg.Eval(activation(map[string]any{"edge": EdgeVars(edge)}))
		if evalErr != nil {
			slog.Debug("focus predicate failed", "expression", expression, "edge", edge.Key(), "error", evalErr)
			return false
		}
		b, ok := out.Value().(bool)
		return ok && b
	}, nil
}

// ScenarioPredicate returns sc's focus predicate, or nil when it has none.
func (e *CELEngine) ScenarioPredicate(sc schema.Scenario) (EdgePredicate, error) {
	if sc.FocusExpr == "" {
		return nil, nil
	}
	return e.EdgePredicate(sc.FocusExpr)
}

// EdgeVars is the CEL view of an edge.
func EdgeVars(edge schema.Edge) map[string]any {
	return map[string]any{
		"id":    edge.Key(),
		"from":  edge.From,
		"to":    edge.To,
		"lane":  string(edge.Lane),
		"label": edge.Label,
	}
}

// compiled is a cached program with its static output type.
type compiled struct {
	prg cel.Program
	out *cel.Type
}

func (e *CELEngine) program(expression string, wantBool bool) (cel.Program, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}
	var c *compiled
	if cached, ok := e.programs.Load(expression); ok {
		c = cached.(*compiled)
	} else {
		ast, issues := e.env.Compile(expression)
		if issues != nil && issues.Err() != nil {
			return nil, celError("compile", expression, issues.Err())
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return nil, celError("plan", expression, err)
		}
		actual, _ := e.programs.LoadOrStore(expression, &compiled{prg: prg, out: ast.OutputType()})
		c = actual.(*compiled)
	}
	if wantBool && !boolish(c.out) {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"CEL expression %q yields %s, want bool", expression, c.out).
			WithDetails(map[string]any{"expression": expression})
	}
	return c.prg, nil
}

func boolish(t *cel.Type) bool {
	return t.IsExactType(cel.BoolType) || t.IsExactType(cel.DynType)
}

func celError(stage, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeExpression, "CEL %s %q: %s", stage, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func activation(data map[string]any) map[string]any {
	act := make(map[string]any, len(celVars))
	for _, name := range celVars {
		if v, ok := data[name]; ok && v != nil {
			act[name] = v
		} else {
			act[name] = map[string]any{}
		}
	}
	return act
}

var _ Engine = (*CELEngine)(nil)
