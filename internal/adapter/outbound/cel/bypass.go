// Package cel implements the CEL-based bypass predicate from spec.md
// §4.5 ("Bypass"): a configured expression that, when true, skips rate
// limiting for a request. Grounded on the teacher's policy evaluator,
// narrowed to the variables a rate-limit bypass decision needs.
package cel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/xrpc-run/xrpcd/internal/domain/ratelimit"
)

const (
	maxExpressionLength = 1024
	maxCostBudget       = 100_000
	evalTimeout         = 2 * time.Second
)

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		cel.Variable("nsid", cel.StringType),
		cel.Variable("method_kind", cel.StringType),
		cel.Variable("authenticated", cel.BoolType),
		cel.Variable("identity_did", cel.StringType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
	)
}

// BypassEvaluator compiles and evaluates rate-limit bypass predicates.
type BypassEvaluator struct {
	env *cel.Env
}

// NewBypassEvaluator builds an evaluator with the bypass variable set.
func NewBypassEvaluator() (*BypassEvaluator, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("cel: build bypass environment: %w", err)
	}
	return &BypassEvaluator{env: env}, nil
}

// Compile parses and type-checks a bypass expression, e.g.
// `headers["x-admin-bypass"] == "1"`.
func (e *BypassEvaluator) Compile(expression string) (cel.Program, error) {
	if len(expression) > maxExpressionLength {
		return nil, fmt.Errorf("cel: expression too long: %d characters", len(expression))
	}
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel: compilation failed: %w", issues.Err())
	}
	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("cel: program creation failed: %w", err)
	}
	return prg, nil
}

// Evaluate runs a compiled bypass program against evalCtx, returning
// true only when the expression evaluates to the boolean true.
func (e *BypassEvaluator) Evaluate(prg cel.Program, evalCtx ratelimit.EvalContext) (bool, error) {
	headers := evalCtx.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	activation := map[string]any{
		"nsid":          evalCtx.NSID,
		"method_kind":   evalCtx.MethodKind,
		"authenticated": evalCtx.Authenticated,
		"identity_did":  evalCtx.IdentityDID,
		"headers":       headers,
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("cel: evaluation failed: %w", err)
	}
	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel: bypass expression did not return a boolean, got %T", result.Value())
	}
	return boolResult, nil
}

// AsPredicate adapts a compiled program into a ratelimit.BypassPredicate.
func (e *BypassEvaluator) AsPredicate(prg cel.Program) ratelimit.BypassPredicate {
	return func(evalCtx ratelimit.EvalContext) (bool, error) {
		return e.Evaluate(prg, evalCtx)
	}
}
