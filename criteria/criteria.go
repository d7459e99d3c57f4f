// Package criteria holds the caller side model of a document query: the
// target collection, a filter expression tree, ordering, pagination,
// projection and the aggregate operations that can run over a selection.
//
// A Criteria is built once by the caller and then handed to a data source,
// which compiles it into the store's native query representation. The
// compilers only read a Criteria, they never change it.
package criteria

import (
	"reflect"

	"github.com/gobuffalo/flect"
)

// Collection names a set of documents in the store.
type Collection struct {
	Name string
}

// CollectionNamer lets a value type pick its own collection name.
type CollectionNamer interface {
	CollectionName() string
}

// NewCollection returns a collection with the given name.
func NewCollection(name string) *Collection {
	return &Collection{Name: name}
}

// CollectionFor derives a collection from a value. Types implementing
// CollectionNamer choose their own name, other types map to the underscored
// plural of their type name (UserAccount becomes user_accounts).
func CollectionFor(v any) *Collection {
	if cn, ok := v.(CollectionNamer); ok {
		return NewCollection(cn.CollectionName())
	}
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return nil
	}
	return NewCollection(flect.Pluralize(flect.Underscore(t.Name())))
}

// HasPrimaryKey is implemented by value objects that stand for a stored
// document. When such a value appears in a filter or a write only its key
// is sent to the store.
type HasPrimaryKey interface {
	PrimaryKeyValue() any
}

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Order sorts results by a field.
type Order struct {
	Field     string
	Direction Direction
}

// Limit paginates results.
type Limit struct {
	Length int64
	Offset int64
}

// Criteria describes which documents to select, how to order them and how
// many to return.
type Criteria struct {
	Collection  *Collection
	Expressions []Expression
	Orders      []Order
	Limit       *Limit
	Fields      []string

	// Distinct names the field to return distinct values of. Empty means a
	// regular query.
	Distinct string
}

// New returns an empty criteria over a collection.
func New(collection *Collection) *Criteria {
	return &Criteria{Collection: collection}
}

// Where adds filter expressions. Root expressions are conjoined.
func (c *Criteria) Where(exps ...Expression) *Criteria {
	c.Expressions = append(c.Expressions, exps...)
	return c
}

// OrderBy appends a sort field.
func (c *Criteria) OrderBy(field string, dir Direction) *Criteria {
	c.Orders = append(c.Orders, Order{Field: field, Direction: dir})
	return c
}

// Take limits the result to length documents after skipping offset.
func (c *Criteria) Take(length, offset int64) *Criteria {
	c.Limit = &Limit{Length: length, Offset: offset}
	return c
}

// Select restricts the returned fields.
func (c *Criteria) Select(fields ...string) *Criteria {
	c.Fields = append(c.Fields, fields...)
	return c
}

// DistinctOn switches the criteria to return the distinct values of field.
func (c *Criteria) DistinctOn(field string) *Criteria {
	c.Distinct = field
	return c
}

// CollectionName returns the target collection name or an empty string.
func (c *Criteria) CollectionName() string {
	if c == nil || c.Collection == nil {
		return ""
	}
	return c.Collection.Name
}
