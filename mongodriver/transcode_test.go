package mongodriver

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type author struct {
	ID bson.ObjectID
}

func (a author) PrimaryKeyValue() any { return a.ID }

type address struct {
	City string `bson:"city"`
	Zip  string `bson:"zip,omitempty"`
}

type post struct {
	Title    string
	Author   author
	Address  *address `bson:"address"`
	Tags     []string `bson:"tags"`
	Draft    bool     `bson:"-"`
	Created  time.Time
	internal string
}

func TestEscapeTimes(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	got := Escape(bson.M{
		"at":    ts,
		"ptr":   &ts,
		"list":  []any{ts, "x"},
		"typed": []time.Time{ts},
		"keep":  bson.D{{Key: "n", Value: 1}},
	})

	want := bson.M{
		"at":    bson.NewDateTimeFromTime(ts),
		"ptr":   bson.NewDateTimeFromTime(ts),
		"list":  []any{bson.NewDateTimeFromTime(ts), "x"},
		"typed": bson.A{bson.NewDateTimeFromTime(ts)},
		"keep":  bson.D{{Key: "n", Value: 1}},
	}
	assert.Equal(t, want, got)
}

func TestEscapeScalar(t *testing.T) {
	assert.Equal(t, 42, Escape(42))
	assert.Nil(t, Escape(nil))
}

func TestDeprivatize(t *testing.T) {
	id := bson.NewObjectID()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	got := Deprivatize(&post{
		Title:    "hello",
		Author:   author{ID: id},
		Address:  &address{City: "Lisbon"},
		Tags:     []string{"a", "b"},
		Draft:    true,
		Created:  created,
		internal: "hidden",
	})

	want := bson.M{
		"title":   "hello",
		"author":  id,
		"address": bson.M{"city": "Lisbon"},
		"tags":    bson.A{"a", "b"},
		"created": created,
	}
	assert.Equal(t, want, got)
}

func TestDeprivatizeKeyInFilterValues(t *testing.T) {
	id := bson.NewObjectID()
	got := Deprivatize(bson.M{"author": bson.M{"$in": bson.A{author{ID: id}}}})
	assert.Equal(t, bson.M{"author": bson.M{"$in": bson.A{id}}}, got)
}

func TestParseRef(t *testing.T) {
	id := bson.NewObjectID()

	ref, ok := ParseRef(bson.D{{Key: "$ref", Value: "users"}, {Key: "$id", Value: id}, {Key: "$db", Value: "other"}})
	require.True(t, ok)
	assert.Equal(t, Ref{Collection: "users", ID: id, DB: "other"}, ref)

	ref, ok = ParseRef(bson.M{"$ref": "users", "$id": 7})
	require.True(t, ok)
	assert.Equal(t, Ref{Collection: "users", ID: 7}, ref)

	for _, v := range []any{
		bson.M{"$ref": "users"},
		bson.M{"$id": 1},
		bson.M{"$ref": 3, "$id": 1},
		"users",
	} {
		_, ok := ParseRef(v)
		assert.False(t, ok, "%v", v)
	}
}

func TestDecodeDocument(t *testing.T) {
	id := bson.NewObjectID()
	refID := bson.NewObjectID()
	at := time.Date(2024, 5, 6, 7, 8, 9, 987_000_000, time.UTC)

	doc := bson.M{
		"_id":     id,
		"at":      bson.NewDateTimeFromTime(at),
		"ts":      bson.Timestamp{T: uint32(at.Unix()), I: 3},
		"author":  bson.D{{Key: "$ref", Value: "users"}, {Key: "$id", Value: refID}},
		"nested":  bson.D{{Key: "ids", Value: bson.A{id}}},
		"plain":   "x",
		"counter": int32(4),
	}

	var seen []Ref
	got, err := DecodeDocument(doc, func(ref Ref) (any, error) {
		seen = append(seen, ref)
		return bson.M{"_id": ref.ID, "name": "Ann"}, nil
	})
	require.NoError(t, err)

	want := map[string]any{
		"_id":     id.Hex(),
		"at":      time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		"ts":      time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		"author":  bson.M{"_id": refID, "name": "Ann"},
		"nested":  map[string]any{"ids": []any{id.Hex()}},
		"plain":   "x",
		"counter": int32(4),
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []Ref{{Collection: "users", ID: refID}}, seen)
}

func TestDecodeWithoutResolver(t *testing.T) {
	refID := bson.NewObjectID()
	got, err := Decode(bson.M{"$ref": "users", "$id": refID}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"$ref": "users", "$id": refID.Hex()}, got)
}

func TestDecodeResolverError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Decode(bson.A{bson.M{"$ref": "users", "$id": 1}}, func(Ref) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}
