package core

import (
	"context"
	"sync"

	"github.com/dosco/mongosource/mongodriver"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type findCall struct {
	coll   string
	filter any
	opts   mongodriver.FindOptions
}

type updateCall struct {
	coll   string
	filter any
	update any
}

// fakeStore records every call and answers with canned values.
type fakeStore struct {
	mu sync.Mutex

	finds    []findCall
	counts   []any
	distinct []any
	inserts  []any
	updates  []updateCall
	deletes  []any
	commands []bson.D
	fetched  []mongodriver.Ref

	docs     []bson.M
	values   []any
	count    int64
	insertID any
	reply    bson.M
	refs     map[string]bson.M
	err      error
}

func (f *fakeStore) Find(_ context.Context, coll string, filter any, fo mongodriver.FindOptions) ([]bson.M, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds = append(f.finds, findCall{coll, filter, fo})
	return f.docs, f.err
}

func (f *fakeStore) Count(_ context.Context, coll string, filter any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, filter)
	return f.count, f.err
}

func (f *fakeStore) Distinct(_ context.Context, coll, field string, filter any) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distinct = append(f.distinct, filter)
	return f.values, f.err
}

func (f *fakeStore) Insert(_ context.Context, coll string, doc any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, doc)
	if f.err != nil {
		return nil, f.err
	}
	if f.insertID != nil {
		return f.insertID, nil
	}
	return bson.NewObjectID(), nil
}

func (f *fakeStore) Update(_ context.Context, coll string, filter, update any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updateCall{coll, filter, update})
	return 1, f.err
}

func (f *fakeStore) Delete(_ context.Context, coll string, filter any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, filter)
	return 1, f.err
}

func (f *fakeStore) RunCommand(_ context.Context, cmd bson.D) (bson.M, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return f.reply, f.err
}

func (f *fakeStore) FetchRef(_ context.Context, ref mongodriver.Ref) (bson.M, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, ref)
	return f.refs[ref.Collection], f.err
}
