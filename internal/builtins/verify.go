package builtins

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Assertion is one "metric op goal" clause from spec.md §4.5 "verify".
type Assertion struct {
	Metric string
	Op     string
	Goal   float64
}

var celOps = map[string]string{
	">":  "metric > goal",
	">=": "metric >= goal",
	"<":  "metric < goal",
	"<=": "metric <= goal",
	"==": "metric == goal",
	"!=": "metric != goal",
}

// Verify evaluates an assertion set over every upstream's metrics and
// returns true iff every assertion holds for every upstream (spec.md §4.5
// "verify"). Each "metric op goal" clause is compiled to a small CEL
// program rather than hand-rolled comparison switch, since the pack
// already reaches for cel-go anywhere an expression needs to be evaluated
// against a dynamic variable set.
func Verify(inputs []Upstream, assertions []Assertion) (bool, error) {
	env, err := cel.NewEnv(
		cel.Variable("metric", cel.DoubleType),
		cel.Variable("goal", cel.DoubleType),
	)
	if err != nil {
		return false, fmt.Errorf("build verify environment: %w", err)
	}

	programs := make(map[string]cel.Program, len(celOps))
	for op, expr := range celOps {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return false, fmt.Errorf("compile verify expression for op %q: %w", op, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return false, fmt.Errorf("build verify program for op %q: %w", op, err)
		}
		programs[op] = prg
	}

	for _, u := range inputs {
		for _, a := range assertions {
			prg, ok := programs[a.Op]
			if !ok {
				return false, fmt.Errorf("unsupported verify operator %q", a.Op)
			}
			value, hasMetric := u.Metrics[a.Metric]
			if !hasMetric {
				return false, nil
			}
			out, _, err := prg.Eval(map[string]interface{}{
				"metric": value,
				"goal":   a.Goal,
			})
			if err != nil {
				return false, fmt.Errorf("evaluate verify assertion %s %s %v on %s: %w", a.Metric, a.Op, a.Goal, u.ID(), err)
			}
			holds, ok := out.Value().(bool)
			if !ok || !holds {
				return false, nil
			}
		}
	}
	return true, nil
}
