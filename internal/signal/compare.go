package signal

import (
	"fmt"
	"math"

	"github.com/nerrad567/controlnet-core/internal/fault"
)

// Operator is a numeric comparison used by rule and interlock conditions.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// equalTolerance is the absolute tolerance for == and !=.
const equalTolerance = 1e-9

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// Compare evaluates "a op b".
func (op Operator) Compare(a, b float64) (bool, error) {
	switch op {
	case OpGreater:
		return a > b, nil
	case OpGreaterEqual:
		return a >= b, nil
	case OpLess:
		return a < b, nil
	case OpLessEqual:
		return a <= b, nil
	case OpEqual:
		return math.Abs(a-b) <= equalTolerance, nil
	case OpNotEqual:
		return math.Abs(a-b) > equalTolerance, nil
	default:
		return false, fmt.Errorf("%w: operator %q", fault.ErrUnknownType, string(op))
	}
}
