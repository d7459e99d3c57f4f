package mongodriver

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
)

// FindOptions are the cursor options of a find.
type FindOptions struct {
	Sort       bson.D
	Projection bson.M
	Skip       int64
	Limit      int64
}

// collection returns a handle whose writes wait for the primary to
// acknowledge them.
func (c *Conn) collection(name string) *mongo.Collection {
	return c.db.Collection(name, options.Collection().SetWriteConcern(writeconcern.W1()))
}

// Find returns every document of coll matching filter.
func (c *Conn) Find(ctx context.Context, coll string, filter any, fo FindOptions) ([]bson.M, error) {
	if coll == "" {
		return nil, fmt.Errorf("mongodriver: find requires collection")
	}

	findOpts := options.Find()
	if len(fo.Sort) != 0 {
		findOpts.SetSort(fo.Sort)
	}
	if fo.Projection != nil {
		findOpts.SetProjection(fo.Projection)
	}
	if fo.Skip > 0 {
		findOpts.SetSkip(fo.Skip)
	}
	if fo.Limit > 0 {
		findOpts.SetLimit(fo.Limit)
	}

	cursor, err := c.collection(coll).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongodriver: find: %w", err)
	}

	results := []bson.M{}
	if err := cursor.All(ctx, &results); err != nil {
		cursor.Close(ctx)
		return nil, fmt.Errorf("mongodriver: find results: %w", err)
	}
	cursor.Close(ctx)

	return results, nil
}

// Count returns the number of documents of coll matching filter.
func (c *Conn) Count(ctx context.Context, coll string, filter any) (int64, error) {
	if coll == "" {
		return 0, fmt.Errorf("mongodriver: count requires collection")
	}
	n, err := c.collection(coll).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongodriver: count: %w", err)
	}
	return n, nil
}

// Distinct returns the distinct values of field over the documents of coll
// matching filter.
func (c *Conn) Distinct(ctx context.Context, coll, field string, filter any) ([]any, error) {
	if coll == "" {
		return nil, fmt.Errorf("mongodriver: distinct requires collection")
	}

	res := c.collection(coll).Distinct(ctx, field, filter)
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("mongodriver: distinct: %w", err)
	}

	values := []any{}
	if err := res.Decode(&values); err != nil {
		return nil, fmt.Errorf("mongodriver: distinct results: %w", err)
	}
	return values, nil
}

// Insert stores doc and returns its _id, generated by the driver when doc
// has none.
func (c *Conn) Insert(ctx context.Context, coll string, doc any) (any, error) {
	if coll == "" {
		return nil, fmt.Errorf("mongodriver: insert requires collection")
	}
	if doc == nil {
		return nil, fmt.Errorf("mongodriver: insert requires document")
	}

	result, err := c.collection(coll).InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("mongodriver: insert: %w", err)
	}
	return result.InsertedID, nil
}

// Update applies update to every document of coll matching filter and
// returns the number of matched documents.
func (c *Conn) Update(ctx context.Context, coll string, filter, update any) (int64, error) {
	if coll == "" {
		return 0, fmt.Errorf("mongodriver: update requires collection")
	}

	result, err := c.collection(coll).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("mongodriver: update: %w", err)
	}
	return result.MatchedCount, nil
}

// Delete removes every document of coll matching filter.
func (c *Conn) Delete(ctx context.Context, coll string, filter any) (int64, error) {
	if coll == "" {
		return 0, fmt.Errorf("mongodriver: delete requires collection")
	}

	result, err := c.collection(coll).DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongodriver: delete: %w", err)
	}
	return result.DeletedCount, nil
}

// RunCommand runs a database command and returns its reply. Server side
// command failures are returned wrapped, so mongo.CommandError stays
// reachable through errors.As.
func (c *Conn) RunCommand(ctx context.Context, cmd bson.D) (bson.M, error) {
	var reply bson.M
	if err := c.db.RunCommand(ctx, cmd).Decode(&reply); err != nil {
		return nil, fmt.Errorf("mongodriver: command: %w", err)
	}
	return reply, nil
}

// FetchRef loads the document ref points at. A dangling reference yields a
// nil document and no error.
func (c *Conn) FetchRef(ctx context.Context, ref Ref) (bson.M, error) {
	db := c.db
	if ref.DB != "" && ref.DB != db.Name() {
		db = c.client.Database(ref.DB)
	}

	var doc bson.M
	err := db.Collection(ref.Collection).FindOne(ctx, bson.M{"_id": ref.ID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongodriver: fetch %s: %w", ref.Collection, err)
	}
	return doc, nil
}
