package core

import (
	"context"
	"fmt"

	"github.com/dosco/mongosource/criteria"
	"github.com/dosco/mongosource/mongodriver"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const idField = "_id"

// Find returns the documents selected by c. When c asks for the distinct
// values of a field each value comes back as a one field document.
func (s *Source) Find(ctx context.Context, c *criteria.Criteria) (docs []Document, err error) {
	coll, err := collectionOf(c)
	if err != nil {
		return nil, err
	}

	ctx, span := s.spanStart(ctx, "Find", coll)
	defer func() { span.Error(err); span.End() }()

	filter := s.qb.Compile(c)

	if c.Distinct != "" {
		values, err := s.store.Distinct(ctx, coll, c.Distinct, filter)
		if err != nil {
			return nil, err
		}
		docs = make([]Document, 0, len(values))
		for _, v := range values {
			doc, err := s.decode(ctx, bson.M{c.Distinct: v})
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}

	fo := mongodriver.FindOptions{
		Sort:       s.qb.CompileSort(c),
		Projection: s.qb.CompileProjection(c),
	}
	if c.Limit != nil {
		fo.Skip = c.Limit.Offset
		fo.Limit = c.Limit.Length
	}

	raw, err := s.store.Find(ctx, coll, filter, fo)
	if err != nil {
		return nil, err
	}

	docs = make([]Document, 0, len(raw))
	for _, r := range raw {
		doc, err := s.decode(ctx, r)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count returns the number of documents matching c.
func (s *Source) Count(ctx context.Context, c *criteria.Criteria) (n int64, err error) {
	coll, err := collectionOf(c)
	if err != nil {
		return 0, err
	}

	ctx, span := s.spanStart(ctx, "Count", coll)
	defer func() { span.Error(err); span.End() }()

	return s.store.Count(ctx, coll, s.qb.Compile(c))
}

// Save inserts values into collection and returns the document id. values
// is a map or a struct; value objects inside it are stored by their key.
func (s *Source) Save(ctx context.Context, values any, collection *criteria.Collection) (id string, err error) {
	if collection == nil || collection.Name == "" {
		return "", ErrNoCollection
	}

	ctx, span := s.spanStart(ctx, "Save", collection.Name)
	defer func() { span.Error(err); span.End() }()

	doc, err := mongodriver.DeprivatizeDocument(values)
	if err != nil {
		return "", errors.Wrap(err, "core: save")
	}

	inserted, err := s.store.Insert(ctx, collection.Name, mongodriver.Escape(doc))
	if err != nil {
		return "", errors.Wrapf(err, "core: save into %s", collection.Name)
	}

	if oid, ok := inserted.(bson.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(inserted), nil
}

// Update sets the fields in values on every document matching c. The _id
// of a document never changes, so an _id in values is ignored.
func (s *Source) Update(ctx context.Context, values any, c *criteria.Criteria) (err error) {
	coll, err := collectionOf(c)
	if err != nil {
		return err
	}

	ctx, span := s.spanStart(ctx, "Update", coll)
	defer func() { span.Error(err); span.End() }()

	doc, err := mongodriver.DeprivatizeDocument(values)
	if err != nil {
		return errors.Wrap(err, "core: update")
	}
	delete(doc, idField)
	if len(doc) == 0 {
		return errors.New("core: update has no fields to set")
	}

	update := bson.M{"$set": mongodriver.Escape(doc)}
	if _, err := s.store.Update(ctx, coll, s.qb.Compile(c), update); err != nil {
		return errors.Wrapf(err, "core: update %s", coll)
	}
	return nil
}

// Delete removes every document matching c.
func (s *Source) Delete(ctx context.Context, c *criteria.Criteria) (err error) {
	coll, err := collectionOf(c)
	if err != nil {
		return err
	}

	ctx, span := s.spanStart(ctx, "Delete", coll)
	defer func() { span.Error(err); span.End() }()

	if _, err := s.store.Delete(ctx, coll, s.qb.Compile(c)); err != nil {
		return errors.Wrapf(err, "core: delete from %s", coll)
	}
	return nil
}

// decode post-processes a document read from the store. References are
// replaced by the document they point at, or nil when it is gone.
func (s *Source) decode(ctx context.Context, raw bson.M) (Document, error) {
	return mongodriver.DecodeDocument(raw, func(ref mongodriver.Ref) (any, error) {
		doc, err := s.store.FetchRef(ctx, ref)
		if err != nil || doc == nil {
			return nil, err
		}
		return Document(doc), nil
	})
}

func collectionOf(c *criteria.Criteria) (string, error) {
	if name := c.CollectionName(); name != "" {
		return name, nil
	}
	return "", ErrNoCollection
}
