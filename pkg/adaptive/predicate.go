package adaptive

import (
	"github.com/google/cel-go/cel"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
	"github.com/mcpruntime/core/pkg/resources"
)

// CELPredicate compiles a boolean CEL expression over three variables,
// "moving_average" and "limit" (both doubles) and "dimension" (a
// string), into a Config.Predicate.
// It lets an operator narrow or override the built-in threshold rule
// without adaptive depending on any particular policy language at
// compile time, the same compile-once/evaluate-many split the
// teacher's AWS STS role mapper uses for claims-matching expressions.
func CELPredicate(expr string) (func(resources.Dimension, float64, float64) bool, error) {
	env, err := cel.NewEnv(
		cel.Variable("moving_average", cel.DoubleType),
		cel.Variable("limit", cel.DoubleType),
		cel.Variable("dimension", cel.StringType),
	)
	if err != nil {
		return nil, mcperrors.NewInternalError("failed to build cel environment", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, mcperrors.NewInvalidFormatError("failed to compile adaptive predicate expression", issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, mcperrors.NewInternalError("failed to build cel program", err)
	}

	return func(d resources.Dimension, movingAverage, limit float64) bool {
		out, _, err := program.Eval(map[string]any{
			"moving_average": movingAverage,
			"limit":          limit,
			"dimension":      string(d),
		})
		if err != nil {
			return true
		}
		b, ok := out.Value().(bool)
		if !ok {
			return true
		}
		return b
	}, nil
}
