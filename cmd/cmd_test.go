package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dosco/mongosource/core"
	"github.com/dosco/mongosource/mongodriver"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"
)

// memStore answers every read with docs and remembers the last write.
type memStore struct {
	docs     []bson.M
	count    int64
	inserted any
	filter   any
	update   any
	deleted  bool
	command  bson.D
	reply    bson.M
}

func (m *memStore) Find(_ context.Context, _ string, filter any, _ mongodriver.FindOptions) ([]bson.M, error) {
	m.filter = filter
	return m.docs, nil
}

func (m *memStore) Count(_ context.Context, _ string, filter any) (int64, error) {
	m.filter = filter
	return m.count, nil
}

func (m *memStore) Distinct(context.Context, string, string, any) ([]any, error) {
	return nil, nil
}

func (m *memStore) Insert(_ context.Context, _ string, doc any) (any, error) {
	m.inserted = doc
	return bson.NewObjectID(), nil
}

func (m *memStore) Update(_ context.Context, _ string, filter, update any) (int64, error) {
	m.filter, m.update = filter, update
	return 1, nil
}

func (m *memStore) Delete(_ context.Context, _ string, filter any) (int64, error) {
	m.filter, m.deleted = filter, true
	return 1, nil
}

func (m *memStore) RunCommand(_ context.Context, cmd bson.D) (bson.M, error) {
	m.command = cmd
	return m.reply, nil
}

func (m *memStore) FetchRef(context.Context, mongodriver.Ref) (bson.M, error) {
	return nil, nil
}

func run(t *testing.T, store *memStore, args ...string) (string, error) {
	t.Helper()

	prev := openSource
	t.Cleanup(func() {
		openSource, format = prev, "json"
	})

	openSource = func(context.Context) (*core.Source, error) {
		return core.New(store)
	}

	var out bytes.Buffer
	c := rootCmd()
	c.SetOut(&out)
	c.SetIn(strings.NewReader(`{"collection":"orders"}`))
	c.SetArgs(args)
	err := c.Execute()
	return out.String(), err
}

// memFS points @file reads at an in-memory filesystem for the test.
func memFS(t *testing.T, files map[string]string) {
	t.Helper()

	prev := fs
	fs = afero.NewMemMapFs()
	t.Cleanup(func() { fs = prev })

	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	}
}

func TestFind(t *testing.T) {
	store := &memStore{docs: []bson.M{{"name": "ada", "age": int32(36)}}}

	out, err := run(t, store, "find", `{"collection":"users","where":[{"op":">","field":"age","value":30}]}`)
	require.NoError(t, err)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "ada", docs[0]["name"])
	assert.Equal(t, bson.M{"age": bson.M{"$gt": int64(30)}}, store.filter)
}

func TestFindEmptyYAML(t *testing.T) {
	out, err := run(t, &memStore{}, "--format", "yaml", "find", "-")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestCountFromFile(t *testing.T) {
	memFS(t, map[string]string{
		"/q/open.json": `{"collection":"orders","where":[{"op":"=","field":"open","value":true}]}`,
	})

	store := &memStore{count: 7}
	out, err := run(t, store, "count", "@/q/open.json")
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
	assert.Equal(t, bson.M{"open": true}, store.filter)
}

func TestAggregate(t *testing.T) {
	store := &memStore{reply: bson.M{"ok": 1.0, "results": bson.A{bson.M{"_id": nil, "value": 42.5}}}}

	out, err := run(t, store, "aggregate", "avg:price", `{"collection":"orders"}`)
	require.NoError(t, err)
	assert.Equal(t, "42.5\n", out)
	assert.Equal(t, "orders", store.command[0].Value)
}

func TestAggregateBadOperation(t *testing.T) {
	_, err := run(t, &memStore{}, "aggregate", "median:price", `{"collection":"orders"}`)
	assert.ErrorContains(t, err, "unknown aggregate operation")
}

func TestMapReduce(t *testing.T) {
	memFS(t, map[string]string{
		"/js/map.js":    "function() { emit(this.sku, 1); }",
		"/js/reduce.js": "function(k, v) { return Array.sum(v); }",
	})

	store := &memStore{reply: bson.M{"ok": 1.0, "results": bson.A{bson.M{"_id": "a", "value": 2.0}}}}
	out, err := run(t, store, "mapreduce", "--map", "/js/map.js", "--reduce", "/js/reduce.js",
		"--scope", `{"limit":3}`, `{"collection":"orders"}`)
	require.NoError(t, err)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	assert.Equal(t, []map[string]any{{"_id": "a", "value": 2.0}}, docs)

	cmd := make(map[string]any, len(store.command))
	for _, e := range store.command {
		cmd[e.Key] = e.Value
	}
	assert.Equal(t, bson.JavaScript("function() { emit(this.sku, 1); }"), cmd["map"])
	assert.Equal(t, map[string]any{"limit": int64(3)}, cmd["scope"])
}

func TestMapReduceNeedsFunctions(t *testing.T) {
	_, err := run(t, &memStore{}, "mapreduce", `{"collection":"orders"}`)
	assert.Error(t, err)
}

func TestInsert(t *testing.T) {
	store := &memStore{}
	out, err := run(t, store, "insert", "orders", `{"sku":"x1","qty":2,"price":9.5,"tags":["a"]}`)
	require.NoError(t, err)

	var res map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res["id"], 24)
	assert.Equal(t, bson.M{"sku": "x1", "qty": int64(2), "price": 9.5, "tags": []any{"a"}}, store.inserted)
}

func TestInsertInvalidDocument(t *testing.T) {
	for _, doc := range []string{`[1,2]`, `null`, `{`} {
		_, err := run(t, &memStore{}, "insert", "orders", doc)
		assert.ErrorContains(t, err, "invalid document", doc)
	}
}

func TestUpdate(t *testing.T) {
	store := &memStore{}
	_, err := run(t, store, "update", `{"collection":"orders","where":[{"op":"=","field":"sku","value":"x1"}]}`, `{"_id":"ignored","qty":3}`)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"sku": "x1"}, store.filter)
	assert.Equal(t, bson.M{"$set": bson.M{"qty": int64(3)}}, store.update)
}

func TestDelete(t *testing.T) {
	store := &memStore{}
	_, err := run(t, store, "delete", `{"collection":"orders"}`)
	require.NoError(t, err)
	assert.True(t, store.deleted)
	assert.Equal(t, bson.M{}, store.filter)
}

func TestBadCriteria(t *testing.T) {
	_, err := run(t, &memStore{}, "find", `{"where":[]}`)
	assert.ErrorContains(t, err, "collection is required")
}

func TestPrintResultYAML(t *testing.T) {
	format = "yaml"
	defer func() { format = "json" }()

	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, map[string]any{"total": 3, "sku": "x1"}))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, map[string]any{"total": 3, "sku": "x1"}, got)
}

func TestPrintResultUnknownFormat(t *testing.T) {
	format = "xml"
	defer func() { format = "json" }()
	assert.Error(t, printResult(&bytes.Buffer{}, 1))
}

func TestVersion(t *testing.T) {
	out, err := run(t, &memStore{}, "version")
	require.NoError(t, err)
	assert.Equal(t, "mongosource (unknown version)\n", out)
}
