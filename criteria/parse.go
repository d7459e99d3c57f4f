package criteria

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// criteriaDSL is the JSON form of a Criteria.
//
//	{"collection":"users",
//	 "where":[{"op":">","field":"age","value":30}],
//	 "order":[{"field":"name","dir":"desc"}],
//	 "limit":{"length":10,"offset":20},
//	 "fields":["name","age"]}
type criteriaDSL struct {
	Collection string     `json:"collection"`
	Where      []*nodeDSL `json:"where,omitempty"`
	Order      []orderDSL `json:"order,omitempty"`
	Limit      *limitDSL  `json:"limit,omitempty"`
	Fields     []string   `json:"fields,omitempty"`
	Distinct   string     `json:"distinct,omitempty"`
}

type nodeDSL struct {
	Op     string     `json:"op"`
	Field  string     `json:"field,omitempty"`
	Value  any        `json:"value,omitempty"`
	Min    any        `json:"min,omitempty"`
	Max    any        `json:"max,omitempty"`
	Values []any      `json:"values,omitempty"`
	Exp    *nodeDSL   `json:"exp,omitempty"`
	Exps   []*nodeDSL `json:"exps,omitempty"`
}

type orderDSL struct {
	Field string `json:"field"`
	Dir   string `json:"dir,omitempty"`
}

type limitDSL struct {
	Length int64 `json:"length"`
	Offset int64 `json:"offset,omitempty"`
}

// Parse reads a Criteria from its JSON form.
func Parse(data []byte) (*Criteria, error) {
	var dsl criteriaDSL

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dsl); err != nil {
		return nil, fmt.Errorf("criteria: invalid json: %w", err)
	}

	if dsl.Collection == "" {
		return nil, fmt.Errorf("criteria: collection is required")
	}

	c := New(NewCollection(dsl.Collection))

	for i, n := range dsl.Where {
		exp, err := n.expression()
		if err != nil {
			return nil, fmt.Errorf("criteria: where[%d]: %w", i, err)
		}
		c.Where(exp)
	}

	for _, o := range dsl.Order {
		if o.Field == "" {
			return nil, fmt.Errorf("criteria: order field is required")
		}
		switch strings.ToLower(o.Dir) {
		case "", "asc":
			c.OrderBy(o.Field, Asc)
		case "desc":
			c.OrderBy(o.Field, Desc)
		default:
			return nil, fmt.Errorf("criteria: invalid order direction %q", o.Dir)
		}
	}

	if dsl.Limit != nil {
		c.Take(dsl.Limit.Length, dsl.Limit.Offset)
	}

	c.Fields = dsl.Fields
	c.Distinct = dsl.Distinct

	return c, nil
}

func (n *nodeDSL) expression() (Expression, error) {
	if n == nil {
		return nil, fmt.Errorf("empty expression")
	}

	op := strings.ToLower(strings.TrimSpace(n.Op))

	switch op {
	case "and", "or":
		children := make([]Expression, 0, len(n.Exps))
		for _, c := range n.Exps {
			exp, err := c.expression()
			if err != nil {
				return nil, err
			}
			children = append(children, exp)
		}
		if op == "and" {
			return And(children...), nil
		}
		return Or(children...), nil

	case "not":
		inner, err := n.Exp.expression()
		if err != nil {
			return nil, err
		}
		return Not(inner), nil
	}

	if n.Field == "" {
		return nil, fmt.Errorf("%q requires a field", n.Op)
	}

	switch op {
	case "between":
		return Between(n.Field, number(n.Min), number(n.Max)), nil

	case "in", "not in", "nin":
		values := make([]any, len(n.Values))
		for i, v := range n.Values {
			values[i] = number(v)
		}
		if op == "in" {
			return In(n.Field, values...), nil
		}
		return NotIn(n.Field, values...), nil

	case "=", "==", "eq":
		return Eq(n.Field, number(n.Value)), nil
	case "<>", "!=", "ne":
		return Ne(n.Field, number(n.Value)), nil
	case "<", "lt":
		return Lt(n.Field, number(n.Value)), nil
	case ">", "gt":
		return Gt(n.Field, number(n.Value)), nil
	case "<=", "lte":
		return Le(n.Field, number(n.Value)), nil
	case ">=", "gte":
		return Ge(n.Field, number(n.Value)), nil

	case "like", "regex":
		s, ok := n.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%q requires a string value", n.Op)
		}
		if op == "like" {
			return Like(n.Field, s), nil
		}
		return Regex(n.Field, s), nil

	default:
		return nil, fmt.Errorf("unknown operator %q", n.Op)
	}
}

// number turns integral JSON numbers into int64 so they are stored and
// compared as integers.
func number(v any) any {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return v
	}
	return int64(f)
}
