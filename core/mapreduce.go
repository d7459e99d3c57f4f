package core

import (
	"context"

	"github.com/dosco/mongosource/criteria"
	"github.com/dosco/mongosource/mongodriver"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// MapReduceSpec is a caller supplied map/reduce program. Finalize and
// Scope are optional.
type MapReduceSpec struct {
	Map      string
	Reduce   string
	Finalize string
	Scope    map[string]any
}

// Aggregate computes a over the documents matching c. It returns nil when
// no document matches.
func (s *Source) Aggregate(ctx context.Context, a criteria.Aggregate, c *criteria.Criteria) (value any, err error) {
	coll, err := collectionOf(c)
	if err != nil {
		return nil, err
	}

	ctx, span := s.spanStart(ctx, "Aggregate", coll)
	span.SetAttributesString(StringAttr{"aggregate", a.String()})
	defer func() { span.Error(err); span.End() }()

	mr, err := s.program(a)
	if err != nil {
		return nil, err
	}

	cmd := bson.D{
		{Key: "mapReduce", Value: coll},
		{Key: "map", Value: bson.JavaScript(mr.Map)},
		{Key: "reduce", Value: bson.JavaScript(mr.Reduce)},
		{Key: "out", Value: bson.M{"inline": 1}},
	}

	var filter bson.M
	if f := s.qb.Compile(c); len(f) != 0 {
		filter = f
		cmd = append(cmd, bson.E{Key: "query", Value: filter})
	}

	results, err := s.runMapReduce(ctx, coll, filter, cmd)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	value, _ = lookup(results[0], "value")
	return mongodriver.Decode(value, nil)
}

// MapReduce runs a caller supplied map/reduce program over the documents
// matching c, in the order of c, and returns every result document.
func (s *Source) MapReduce(ctx context.Context, c *criteria.Criteria, spec MapReduceSpec) (docs []Document, err error) {
	coll, err := collectionOf(c)
	if err != nil {
		return nil, err
	}

	ctx, span := s.spanStart(ctx, "MapReduce", coll)
	defer func() { span.Error(err); span.End() }()

	if spec.Map == "" || spec.Reduce == "" {
		return nil, errors.New("core: map and reduce functions are required")
	}

	cmd := bson.D{
		{Key: "mapReduce", Value: coll},
		{Key: "map", Value: bson.JavaScript(spec.Map)},
		{Key: "reduce", Value: bson.JavaScript(spec.Reduce)},
		{Key: "out", Value: bson.M{"inline": 1}},
	}
	if spec.Finalize != "" {
		cmd = append(cmd, bson.E{Key: "finalize", Value: bson.JavaScript(spec.Finalize)})
	}

	var filter bson.M
	if len(c.Expressions) != 0 {
		filter = s.qb.Compile(c)
		cmd = append(cmd, bson.E{Key: "query", Value: filter})
	}
	if sort := s.qb.CompileSort(c); len(sort) != 0 {
		cmd = append(cmd, bson.E{Key: "sort", Value: sort})
	}
	if len(spec.Scope) != 0 {
		cmd = append(cmd, bson.E{Key: "scope", Value: normalize(spec.Scope)})
	}

	results, err := s.runMapReduce(ctx, coll, filter, cmd)
	if err != nil {
		return nil, err
	}

	docs = make([]Document, 0, len(results))
	for _, r := range results {
		v, err := mongodriver.Decode(r, nil)
		if err != nil {
			return nil, err
		}
		doc, ok := v.(map[string]any)
		if !ok {
			return nil, errors.Errorf("core: unexpected mapReduce result %T", r)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// runMapReduce sends a mapReduce command and returns its inline results.
func (s *Source) runMapReduce(ctx context.Context, coll string, filter bson.M, cmd bson.D) ([]any, error) {
	s.logMapReduce(coll, filter)

	reply, err := s.store.RunCommand(ctx, cmd)
	if err != nil {
		if qe, ok := asQueryError(err); ok {
			return nil, qe
		}
		return nil, errors.Wrapf(err, "core: mapReduce on %s", coll)
	}
	if qe := commandFailure(reply); qe != nil {
		return nil, qe
	}

	switch results := reply["results"].(type) {
	case bson.A:
		return results, nil
	case []any:
		return results, nil
	case nil:
		return nil, nil
	default:
		return nil, errors.Errorf("core: unexpected mapReduce results %T", results)
	}
}

// logMapReduce writes the diagnostic line of a map/reduce run.
func (s *Source) logMapReduce(coll string, filter bson.M) {
	if s.log == nil {
		return
	}

	query := "null"
	if filter != nil {
		b, err := bson.MarshalExtJSON(filter, false, false)
		if err != nil {
			query = err.Error()
		} else {
			query = string(b)
		}
	}
	s.log.Debugf("MapReduce: Collection: %s, Query: %s", coll, query)
}

// lookup reads a field of a decoded document.
func lookup(doc any, key string) (any, bool) {
	switch d := doc.(type) {
	case bson.M:
		v, ok := d[key]
		return v, ok
	case map[string]any:
		v, ok := d[key]
		return v, ok
	case bson.D:
		for _, e := range d {
			if e.Key == key {
				return e.Value, true
			}
		}
	}
	return nil, false
}
