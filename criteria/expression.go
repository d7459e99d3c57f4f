package criteria

// Expression is one node of a filter tree.
//
// This is a sealed interface: only the node types in this package implement
// it, which lets compilers switch over the full set of node types and treat
// anything else as a programming error.
type Expression interface {
	expressionNode()
}

// Operator is a comparison operator.
type Operator string

const (
	OpEq    Operator = "="
	OpNe    Operator = "<>"
	OpLt    Operator = "<"
	OpGt    Operator = ">"
	OpLe    Operator = "<="
	OpGe    Operator = ">="
	OpLike  Operator = "like"
	OpRegex Operator = "regex"
)

// ListOperator is a list membership operator.
type ListOperator string

const (
	OpIn    ListOperator = "in"
	OpNotIn ListOperator = "not in"
)

// JunctionOperator joins child expressions.
type JunctionOperator string

const (
	OpAnd JunctionOperator = "and"
	OpOr  JunctionOperator = "or"
)

// Comparison compares a field against a single value.
type Comparison struct {
	Field    string
	Operator Operator
	Value    any
}

// Range matches values between Min and Max, both inclusive.
type Range struct {
	Field string
	Min   any
	Max   any
}

// List matches a field against a list of values.
type List struct {
	Field    string
	Operator ListOperator
	Values   []any
}

// Negation inverts its inner expression.
type Negation struct {
	Inner Expression
}

// Junction combines child expressions with and/or.
type Junction struct {
	Operator JunctionOperator
	Children []Expression
}

func (Comparison) expressionNode() {}
func (Range) expressionNode()      {}
func (List) expressionNode()       {}
func (Negation) expressionNode()   {}
func (Junction) expressionNode()   {}

func Eq(field string, value any) Expression { return Comparison{field, OpEq, value} }
func Ne(field string, value any) Expression { return Comparison{field, OpNe, value} }
func Lt(field string, value any) Expression { return Comparison{field, OpLt, value} }
func Gt(field string, value any) Expression { return Comparison{field, OpGt, value} }
func Le(field string, value any) Expression { return Comparison{field, OpLe, value} }
func Ge(field string, value any) Expression { return Comparison{field, OpGe, value} }

// Like matches a SQL style pattern where % is any sequence and _ any
// single character.
func Like(field, pattern string) Expression { return Comparison{field, OpLike, pattern} }

// Regex matches a regular expression. The pattern may be a raw pattern, a
// "/pattern/flags" string or a bson.Regex.
func Regex(field string, pattern any) Expression { return Comparison{field, OpRegex, pattern} }

// IsNull matches documents where field holds no value.
func IsNull(field string) Expression { return Comparison{field, OpEq, nil} }

func Between(field string, min, max any) Expression {
	return Range{Field: field, Min: min, Max: max}
}

func In(field string, values ...any) Expression {
	return List{Field: field, Operator: OpIn, Values: values}
}

func NotIn(field string, values ...any) Expression {
	return List{Field: field, Operator: OpNotIn, Values: values}
}

func Not(inner Expression) Expression {
	return Negation{Inner: inner}
}

func And(children ...Expression) Expression {
	return Junction{Operator: OpAnd, Children: children}
}

func Or(children ...Expression) Expression {
	return Junction{Operator: OpOr, Children: children}
}
