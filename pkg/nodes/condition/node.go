// Package condition provides the branching node for workflow graph
// execution.
package condition

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
)

// ConditionNode evaluates a predicate against the execution context and
// routes to the true or false output port.
//
// Evaluation fails closed: a missing field, a nil result, or an expression
// that cannot be evaluated selects the false branch instead of failing the
// execution. Setting "strict" to true turns evaluation failures into
// validation errors.
type ConditionNode struct {
	id         string
	expression string
	strict     bool
}

// NewConditionNode creates a new condition node.
func NewConditionNode(id string, config map[string]any) (*ConditionNode, error) {
	expression, ok := config["expression"].(string)
	if !ok || expression == "" {
		return nil, models.NewValidationError("missing required field 'expression'")
	}

	strict, _ := config["strict"].(bool)

	return &ConditionNode{
		id:         id,
		expression: expression,
		strict:     strict,
	}, nil
}

// Execute evaluates the predicate and selects the true or false port.
func (n *ConditionNode) Execute(_ context.Context, execCtx *models.ExecutionContext, _ map[string]any) (*protocol.Outcome, error) {
	result, err := n.evaluate(execCtx)
	if err != nil {
		if n.strict {
			return nil, models.NewValidationError("condition evaluation failed: %v", err)
		}

		// Fail closed: unevaluable conditions take the false branch.
		result = false
	}

	port := models.PortFalse
	if result {
		port = models.PortTrue
	}

	return &protocol.Outcome{
		Output: map[string]any{
			"condition_result": result,
			"expression":       n.expression,
		},
		Port:            port,
		ConditionResult: &result,
	}, nil
}

func (n *ConditionNode) evaluate(execCtx *models.ExecutionContext) (bool, error) {
	env := map[string]any{
		"trigger": execCtx.TriggerData,
		"vars":    execCtx.Variables,
		"nodes":   execCtx.NodeOutputs,
	}

	program, err := expr.Compile(n.expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return false, err
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	return truthy(output), nil
}

// truthy converts an expression result to a boolean.
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case nil:
		return false
	default:
		return false
	}
}
