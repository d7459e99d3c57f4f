package dialect

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dosco/mongosource/criteria"
)

var ErrUnsupportedAggregate = errors.New("dialect: unsupported aggregate operation")

// MapReduce is a pair of server side JavaScript functions plus an optional
// finalize function. The bodies are opaque to this package's callers and
// are sent to the store as code values.
type MapReduce struct {
	Map      string
	Reduce   string
	Finalize string
}

// mapTemplate reads the field (a dotted path is walked member by member),
// turns it into a number and emits it under the field name. Dates become
// epoch milliseconds, objects and arrays the sum of their members.
const mapTemplate = `function() {
	var value = this;
	%s.forEach(function(k) {
		if (value !== null && value !== undefined) {
			value = value[k];
		}
	});
	if (value instanceof Date) {
		value = value.getTime();
	} else if (value instanceof Object) {
		var sum = 0;
		for (var i in value) {
			sum += parseFloat(value[i]);
		}
		value = sum;
	} else {
		value = parseFloat(value);
	}
	emit(%s, value);
}`

const (
	reduceSum = `function(key, values) {
	var r = 0;
	values.forEach(function(v) { r += v; });
	return r;
}`

	reduceAvg = `function(key, values) {
	var r = 0;
	values.forEach(function(v) { r += v; });
	return r / (values.length || 1);
}`

	reduceMax = `function(key, values) {
	return Math.max.apply(Math, values);
}`

	reduceMin = `function(key, values) {
	return Math.min.apply(Math, values);
}`
)

// CompileAggregate returns the map/reduce pair computing a over its field.
// Every document emits under the same key, so the reduce output is a
// single value.
func CompileAggregate(a criteria.Aggregate) (MapReduce, error) {
	var reduce string

	switch a.Operation {
	case criteria.OpSum:
		reduce = reduceSum
	case criteria.OpAvg:
		reduce = reduceAvg
	case criteria.OpMax:
		reduce = reduceMax
	case criteria.OpMin:
		reduce = reduceMin
	default:
		return MapReduce{}, fmt.Errorf("%w: %q", ErrUnsupportedAggregate, a.Operation)
	}

	if a.Field == "" {
		return MapReduce{}, fmt.Errorf("dialect: aggregate %s requires a field", a.Operation)
	}

	return MapReduce{
		Map:    fmt.Sprintf(mapTemplate, jsLiteral(strings.Split(a.Field, ".")), jsLiteral(a.Field)),
		Reduce: reduce,
	}, nil
}

// jsLiteral renders v as a JSON value, which is also a valid JavaScript
// literal since encoding/json escapes U+2028 and U+2029.
func jsLiteral(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
