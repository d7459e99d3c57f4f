package dialect

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/dosco/mongosource/criteria"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrUnsupportedExpression is the panic value raised when a filter tree
// holds a node outside the expression grammar. A silently dropped node
// would widen or narrow the match, so this is never turned into an empty
// filter.
var ErrUnsupportedExpression = errors.New("dialect: unsupported expression")

const (
	idField = "_id"

	// bson type number of null, used for "has no value" filters
	nullType = 10
)

// Normalizer converts a caller value into a value the store accepts.
type Normalizer func(v any) any

// QueryBuilder compiles criteria into MongoDB filter, sort and projection
// documents. It holds no state besides the normalizer and is safe for
// concurrent use.
type QueryBuilder struct {
	normalize Normalizer
}

// NewQueryBuilder returns a builder that passes every filter value through
// normalize. A nil normalize leaves values untouched.
func NewQueryBuilder(normalize Normalizer) *QueryBuilder {
	if normalize == nil {
		normalize = func(v any) any { return v }
	}
	return &QueryBuilder{normalize: normalize}
}

// Compile renders the filter of c. A criteria without expressions compiles
// to an empty filter that matches every document.
func (qb *QueryBuilder) Compile(c *criteria.Criteria) bson.M {
	if c == nil || len(c.Expressions) == 0 {
		return bson.M{}
	}
	return qb.renderJunction(criteria.Junction{
		Operator: criteria.OpAnd,
		Children: c.Expressions,
	})
}

// CompileSort renders the order list of c as an ordered sort document,
// 1 for ascending and -1 for descending.
func (qb *QueryBuilder) CompileSort(c *criteria.Criteria) bson.D {
	if c == nil || len(c.Orders) == 0 {
		return nil
	}

	sort := make(bson.D, 0, len(c.Orders))
	pos := make(map[string]int, len(c.Orders))

	for _, o := range c.Orders {
		dir := 1
		if o.Direction == criteria.Desc {
			dir = -1
		}
		if i, ok := pos[o.Field]; ok {
			sort[i].Value = dir
			continue
		}
		pos[o.Field] = len(sort)
		sort = append(sort, bson.E{Key: o.Field, Value: dir})
	}
	return sort
}

// CompileProjection renders the projected fields of c, nil when all fields
// are returned.
func (qb *QueryBuilder) CompileProjection(c *criteria.Criteria) bson.M {
	if c == nil || len(c.Fields) == 0 {
		return nil
	}
	proj := make(bson.M, len(c.Fields))
	for _, f := range c.Fields {
		proj[f] = 1
	}
	return proj
}

func (qb *QueryBuilder) renderExpression(exp criteria.Expression) bson.M {
	switch e := exp.(type) {
	case criteria.Comparison:
		return qb.renderComparison(e)
	case *criteria.Comparison:
		if e != nil {
			return qb.renderComparison(*e)
		}
	case criteria.Range:
		return qb.renderRange(e)
	case *criteria.Range:
		if e != nil {
			return qb.renderRange(*e)
		}
	case criteria.List:
		return qb.renderList(e)
	case *criteria.List:
		if e != nil {
			return qb.renderList(*e)
		}
	case criteria.Negation:
		return qb.renderNegation(e)
	case *criteria.Negation:
		if e != nil {
			return qb.renderNegation(*e)
		}
	case criteria.Junction:
		return qb.renderJunction(e)
	case *criteria.Junction:
		if e != nil {
			return qb.renderJunction(*e)
		}
	}
	panic(fmt.Errorf("%w: %T", ErrUnsupportedExpression, exp))
}

func (qb *QueryBuilder) renderComparison(e criteria.Comparison) bson.M {
	switch e.Operator {
	case criteria.OpLike:
		return bson.M{e.Field: bson.M{"$regex": LikePattern(fmt.Sprint(e.Value))}}
	case criteria.OpRegex:
		return bson.M{e.Field: bson.M{"$regex": regexValue(e.Value)}}
	}

	var value any

	if id, ok := objectID(e.Field, e.Value); ok {
		value = id
	} else {
		value = qb.normalize(e.Value)
	}

	switch e.Operator {
	case criteria.OpEq:
		if value == nil {
			return bson.M{e.Field: bson.M{"$type": nullType}}
		}
		return bson.M{e.Field: value}

	case criteria.OpNe:
		return bson.M{e.Field: bson.M{"$ne": value}}
	case criteria.OpLt:
		return bson.M{e.Field: bson.M{"$lt": value}}
	case criteria.OpGt:
		return bson.M{e.Field: bson.M{"$gt": value}}
	case criteria.OpLe:
		return bson.M{e.Field: bson.M{"$lte": value}}
	case criteria.OpGe:
		return bson.M{e.Field: bson.M{"$gte": value}}
	}

	panic(fmt.Errorf("%w: comparison operator %q", ErrUnsupportedExpression, e.Operator))
}

func (qb *QueryBuilder) renderRange(e criteria.Range) bson.M {
	return bson.M{e.Field: bson.M{
		"$gte": qb.normalize(e.Min),
		"$lte": qb.normalize(e.Max),
	}}
}

func (qb *QueryBuilder) renderList(e criteria.List) bson.M {
	var op string
	switch e.Operator {
	case criteria.OpIn:
		op = "$in"
	case criteria.OpNotIn:
		op = "$nin"
	default:
		panic(fmt.Errorf("%w: list operator %q", ErrUnsupportedExpression, e.Operator))
	}

	values := make(bson.A, len(e.Values))
	for i, v := range e.Values {
		if id, ok := objectID(e.Field, v); ok {
			values[i] = id
		} else {
			values[i] = qb.normalize(v)
		}
	}
	return bson.M{e.Field: bson.M{op: values}}
}

// renderNegation uses $nor since MongoDB only accepts $not on a field.
func (qb *QueryBuilder) renderNegation(e criteria.Negation) bson.M {
	return bson.M{"$nor": bson.A{qb.renderExpression(e.Inner)}}
}

func (qb *QueryBuilder) renderJunction(e criteria.Junction) bson.M {
	switch e.Operator {
	case criteria.OpAnd:
		filter := bson.M{}
		for _, child := range e.Children {
			mergeFilter(filter, qb.renderExpression(child))
		}
		return filter

	case criteria.OpOr:
		or := make(bson.A, 0, len(e.Children))
		for _, child := range e.Children {
			or = append(or, qb.renderExpression(child))
		}
		return bson.M{"$or": or}
	}

	panic(fmt.Errorf("%w: junction operator %q", ErrUnsupportedExpression, e.Operator))
}

// mergeFilter conjoins src into dst. Operator documents on the same field
// are combined; anything that would overwrite an existing constraint goes
// into $and instead.
func mergeFilter(dst, src bson.M) {
	for _, k := range slices.Sorted(maps.Keys(src)) {
		v := src[k]
		if k == "$and" {
			if list, ok := v.(bson.A); ok {
				dst["$and"] = append(andList(dst), list...)
				continue
			}
		}

		cur, exists := dst[k]
		if !exists {
			dst[k] = v
			continue
		}

		if a, b, ok := operatorDocs(cur, v); ok && !overlaps(a, b) {
			merged := make(bson.M, len(a)+len(b))
			for op, val := range a {
				merged[op] = val
			}
			for op, val := range b {
				merged[op] = val
			}
			dst[k] = merged
			continue
		}

		dst["$and"] = append(andList(dst), bson.M{k: v})
	}
}

func andList(m bson.M) bson.A {
	if list, ok := m["$and"].(bson.A); ok {
		return list
	}
	return nil
}

// operatorDocs reports whether both values are field operator documents,
// documents whose keys all start with $.
func operatorDocs(a, b any) (bson.M, bson.M, bool) {
	ma, ok1 := a.(bson.M)
	mb, ok2 := b.(bson.M)
	if !ok1 || !ok2 || !isOperatorDoc(ma) || !isOperatorDoc(mb) {
		return nil, nil, false
	}
	return ma, mb, true
}

func isOperatorDoc(m bson.M) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func overlaps(a, b bson.M) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

// objectID converts 24 character hex strings compared against _id into
// ObjectIDs.
func objectID(field string, v any) (bson.ObjectID, bool) {
	s, ok := v.(string)
	if field != idField || !ok || len(s) != 24 {
		return bson.ObjectID{}, false
	}
	id, err := bson.ObjectIDFromHex(s)
	if err != nil {
		return bson.ObjectID{}, false
	}
	return id, true
}

// LikePattern translates a SQL LIKE pattern into an anchored, case
// sensitive regular expression. Regex metacharacters in the literal parts
// are quoted, % matches any sequence and _ any single character.
func LikePattern(like string) bson.Regex {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range like {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return bson.Regex{Pattern: b.String(), Options: "m"}
}

// regexValue accepts a bson.Regex, a "/pattern/flags" literal or a raw
// pattern.
func regexValue(v any) bson.Regex {
	switch re := v.(type) {
	case bson.Regex:
		return re
	case *regexp.Regexp:
		return bson.Regex{Pattern: re.String()}
	case string:
		if len(re) > 1 && re[0] == '/' {
			if i := strings.LastIndexByte(re, '/'); i > 0 {
				return bson.Regex{Pattern: re[1:i], Options: re[i+1:]}
			}
		}
		return bson.Regex{Pattern: re}
	default:
		return bson.Regex{Pattern: fmt.Sprint(v)}
	}
}
