package flow

import (
	"fmt"
	"strconv"
	"strings"
)

// operators supported by the condition grammar, longest-match first so
// that "<=" is not mis-split as "<" followed by "=".
var exprOperators = []string{"==", "!=", "<=", ">=", "&&", "||", "<", ">"}

// EvalCondition evaluates a "LHS OP RHS" expression against scope and the
// node outputs produced so far (§4.4). Evaluation is side-effect-free. A
// missing/absent operand equals only another missing operand: "==" is true
// when both are missing and false when just one is, "!=" is the reverse,
// and the ordering operators are false whenever either operand is missing.
func EvalCondition(cond string, scope *Scope, outputs map[string]any) (bool, error) {
	cond = strings.TrimSpace(cond)
	for _, op := range exprOperators {
		idx := strings.Index(cond, op)
		if idx < 0 {
			continue
		}
		lhsRaw := strings.TrimSpace(cond[:idx])
		rhsRaw := strings.TrimSpace(cond[idx+len(op):])

		lhs, lhsOK := resolveOperand(lhsRaw, scope, outputs)
		rhs, rhsOK := resolveOperand(rhsRaw, scope, outputs)

		return applyOp(op, lhs, lhsOK, rhs, rhsOK)
	}
	return false, ExecutionErr("", fmt.Sprintf("unrecognized condition expression %q", cond))
}

func resolveOperand(raw string, scope *Scope, outputs map[string]any) (any, bool) {
	ref := ParseValueRef(raw)
	if ref.Kind == RefLiteral {
		return ref.Literal, true
	}
	return ref.Resolve(scope, outputs)
}

func applyOp(op string, lhs any, lhsOK bool, rhs any, rhsOK bool) (bool, error) {
	switch op {
	case "&&":
		return truthy(lhs) && truthy(rhs), nil
	case "||":
		return truthy(lhs) || truthy(rhs), nil
	case "==":
		if !lhsOK || !rhsOK {
			return !lhsOK && !rhsOK, nil
		}
		return valuesEqual(lhs, rhs), nil
	case "!=":
		if !lhsOK || !rhsOK {
			return !(!lhsOK && !rhsOK), nil
		}
		return !valuesEqual(lhs, rhs), nil
	case "<", "<=", ">", ">=":
		if !lhsOK || !rhsOK {
			return false, nil
		}
		return compareNumeric(op, lhs, rhs)
	default:
		return false, ExecutionErr("", fmt.Sprintf("unsupported operator %q", op))
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}

func valuesEqual(a, b any) bool {
	af, aIsNum := asFloat(a)
	bf, bIsNum := asFloat(b)
	if aIsNum && bIsNum {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareNumeric(op string, a, b any) (bool, error) {
	af, aOK := asFloat(a)
	bf, bOK := asFloat(b)
	if !aOK || !bOK {
		return false, ExecutionErr("", fmt.Sprintf("operator %q requires numeric operands", op))
	}
	switch op {
	case "<":
		return af < bf, nil
	case "<=":
		return af <= bf, nil
	case ">":
		return af > bf, nil
	case ">=":
		return af >= bf, nil
	}
	return false, nil
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
