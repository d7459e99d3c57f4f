package mongodriver

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dosco/mongosource/criteria"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Visitor is called for every value Walk reaches. It returns the value to
// use in its place and whether Walk should stop descending into it.
// Containers returned with stop == false are walked in turn.
type Visitor func(v any) (repl any, stop bool, err error)

// Walk rebuilds v bottom up, replacing every value with what visit returns.
// Maps, documents and slices keep their container type; other slices and
// string keyed maps are rebuilt as bson.A and bson.M.
func Walk(v any, visit Visitor) (any, error) {
	repl, stop, err := visit(v)
	if err != nil {
		return nil, err
	}
	if stop {
		return repl, nil
	}

	switch val := repl.(type) {
	case nil:
		return nil, nil

	case bson.M:
		out := make(bson.M, len(val))
		for k, x := range val {
			w, err := Walk(x, visit)
			if err != nil {
				return nil, err
			}
			out[k] = w
		}
		return out, nil

	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			w, err := Walk(x, visit)
			if err != nil {
				return nil, err
			}
			out[k] = w
		}
		return out, nil

	case bson.D:
		out := make(bson.D, len(val))
		for i, e := range val {
			w, err := Walk(e.Value, visit)
			if err != nil {
				return nil, err
			}
			out[i] = bson.E{Key: e.Key, Value: w}
		}
		return out, nil

	case bson.A:
		return walkSlice(val, visit)

	case []any:
		out, err := walkSlice(val, visit)
		return []any(out), err

	case []byte, string, bool, int, int32, int64, float64,
		bson.ObjectID, bson.DateTime, bson.Regex, bson.Binary,
		bson.Decimal128, bson.Timestamp, bson.JavaScript, time.Time:
		return val, nil
	}

	return walkReflect(repl, visit)
}

func walkSlice(val []any, visit Visitor) (bson.A, error) {
	out := make(bson.A, len(val))
	for i, x := range val {
		w, err := Walk(x, visit)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

// walkReflect handles typed slices and maps such as []string or
// map[string]int.
func walkReflect(v any, visit Visitor) (any, error) {
	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return v, nil
		}
		out := make(bson.A, rv.Len())
		for i := range out {
			w, err := Walk(rv.Index(i).Interface(), visit)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
			return v, nil
		}
		out := make(bson.M, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			w, err := Walk(iter.Value().Interface(), visit)
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = w
		}
		return out, nil
	}

	return v, nil
}

// Escape converts caller values into values the store accepts. Times
// become BSON dates, everything else is kept.
func Escape(v any) any {
	out, _ := Walk(v, func(v any) (any, bool, error) {
		switch t := v.(type) {
		case time.Time:
			return bson.NewDateTimeFromTime(t), true, nil
		case *time.Time:
			if t == nil {
				return nil, true, nil
			}
			return bson.NewDateTimeFromTime(*t), true, nil
		}
		return v, false, nil
	})
	return out
}

// Deprivatize turns v into plain data the driver can store. Values
// implementing criteria.HasPrimaryKey are replaced by their key, structs by
// a document of their exported fields, pointers by what they point to.
func Deprivatize(v any) any {
	out, _ := Walk(v, func(v any) (any, bool, error) {
		switch t := v.(type) {
		case nil:
			return nil, true, nil
		case criteria.HasPrimaryKey:
			return t.PrimaryKeyValue(), true, nil
		case time.Time, bson.ObjectID, bson.DateTime, bson.Regex, bson.Binary,
			bson.Decimal128, bson.Timestamp, bson.JavaScript:
			return t, true, nil
		case bson.M, bson.D, bson.A, map[string]any, []any:
			return t, false, nil
		}

		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return nil, true, nil
			}
			return Deprivatize(rv.Elem().Interface()), true, nil
		}
		if rv.Kind() == reflect.Struct {
			return structDoc(rv), false, nil
		}
		return v, false, nil
	})
	return out
}

// DeprivatizeDocument is Deprivatize for a value stored as a whole
// document. A struct is expanded field by field even when it implements
// criteria.HasPrimaryKey.
func DeprivatizeDocument(v any) (bson.M, error) {
	if d, ok := v.(bson.D); ok {
		doc := make(bson.M, len(d))
		for _, e := range d {
			doc[e.Key] = Deprivatize(e.Value)
		}
		return doc, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("mongodriver: nil document")
		}
		rv = rv.Elem()
	}

	var doc bson.M
	switch {
	case rv.Kind() == reflect.Struct:
		doc = structDoc(rv)
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		doc = make(bson.M, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			doc[iter.Key().String()] = iter.Value().Interface()
		}
	default:
		return nil, fmt.Errorf("mongodriver: %T is not a document", v)
	}

	for k, x := range doc {
		doc[k] = Deprivatize(x)
	}
	return doc, nil
}

// structDoc copies the exported fields of a struct into a document, named
// the way the bson codec names them.
func structDoc(rv reflect.Value) bson.M {
	doc := bson.M{}
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}

		name, opts, _ := strings.Cut(f.Tag.Get("bson"), ",")
		if name == "-" {
			continue
		}
		fv := rv.Field(i)

		if strings.Contains(opts, "omitempty") && fv.IsZero() {
			continue
		}

		if strings.Contains(opts, "inline") && fv.Kind() == reflect.Struct {
			for k, x := range structDoc(fv) {
				doc[k] = x
			}
			continue
		}

		if name == "" {
			name = strings.ToLower(f.Name)
		}
		doc[name] = fv.Interface()
	}
	return doc
}

// Ref is a reference to a document in another collection, stored as
// {$ref, $id[, $db]}.
type Ref struct {
	Collection string
	ID         any
	DB         string
}

// ParseRef reports whether v is a stored reference.
func ParseRef(v any) (Ref, bool) {
	var get func(string) (any, bool)

	switch d := v.(type) {
	case bson.M:
		get = func(k string) (any, bool) { x, ok := d[k]; return x, ok }
	case map[string]any:
		get = func(k string) (any, bool) { x, ok := d[k]; return x, ok }
	case bson.D:
		get = func(k string) (any, bool) {
			for _, e := range d {
				if e.Key == k {
					return e.Value, true
				}
			}
			return nil, false
		}
	default:
		return Ref{}, false
	}

	coll, ok := get("$ref")
	if !ok {
		return Ref{}, false
	}
	name, ok := coll.(string)
	if !ok || name == "" {
		return Ref{}, false
	}
	id, ok := get("$id")
	if !ok {
		return Ref{}, false
	}

	ref := Ref{Collection: name, ID: id}
	if db, ok := get("$db"); ok {
		ref.DB, _ = db.(string)
	}
	return ref, true
}

// Resolver loads the document a reference points at.
type Resolver func(ref Ref) (any, error)

// Decode converts a value read from the store into plain Go values:
// ObjectIDs become hex strings, dates become UTC times truncated to the
// second, documents become map[string]any and arrays []any. References are
// replaced by what resolve returns; the result is not decoded further.
// With a nil resolve references are kept as documents.
func Decode(v any, resolve Resolver) (any, error) {
	return Walk(v, func(v any) (any, bool, error) {
		switch t := v.(type) {
		case bson.ObjectID:
			return t.Hex(), true, nil
		case bson.DateTime:
			return t.Time().UTC().Truncate(time.Second), true, nil
		case bson.Timestamp:
			return time.Unix(int64(t.T), 0).UTC(), true, nil

		case bson.M, bson.D, map[string]any:
			if ref, ok := ParseRef(t); ok && resolve != nil {
				doc, err := resolve(ref)
				return doc, true, err
			}
			switch d := t.(type) {
			case bson.M:
				return map[string]any(d), false, nil
			case bson.D:
				m := make(map[string]any, len(d))
				for _, e := range d {
					m[e.Key] = e.Value
				}
				return m, false, nil
			}
			return t, false, nil

		case bson.A:
			return []any(t), false, nil
		}
		return v, false, nil
	})
}

// DecodeDocument decodes a document read from the store.
func DecodeDocument(doc bson.M, resolve Resolver) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		d, err := Decode(v, resolve)
		if err != nil {
			return nil, err
		}
		out[k] = d
	}
	return out, nil
}
