package criteria

import (
	"fmt"
	"strings"
)

// Operation is an aggregate operation.
type Operation string

const (
	OpSum Operation = "sum"
	OpAvg Operation = "avg"
	OpMax Operation = "max"
	OpMin Operation = "min"
)

// Aggregate folds the values of one field across the selected documents.
type Aggregate struct {
	Operation Operation
	Field     string
}

func Sum(field string) Aggregate { return Aggregate{OpSum, field} }
func Avg(field string) Aggregate { return Aggregate{OpAvg, field} }
func Max(field string) Aggregate { return Aggregate{OpMax, field} }
func Min(field string) Aggregate { return Aggregate{OpMin, field} }

func (a Aggregate) String() string {
	return string(a.Operation) + ":" + a.Field
}

// ParseAggregate reads an aggregate written as "operation:field", for
// example "avg:price".
func ParseAggregate(s string) (Aggregate, error) {
	op, field, ok := strings.Cut(s, ":")
	if !ok || field == "" {
		return Aggregate{}, fmt.Errorf("criteria: invalid aggregate %q, expected operation:field", s)
	}
	switch o := Operation(strings.ToLower(op)); o {
	case OpSum, OpAvg, OpMax, OpMin:
		return Aggregate{Operation: o, Field: field}, nil
	default:
		return Aggregate{}, fmt.Errorf("criteria: unknown aggregate operation %q", op)
	}
}
