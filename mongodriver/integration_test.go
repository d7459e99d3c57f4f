package mongodriver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func startMongo(t *testing.T) *Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Skipf("mongodb container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	conn, err := Connect(ctx, ConnectOptions{
		Host:     uri,
		Database: "mongodriver_test",
		Options:  map[string]any{"server_selection_timeout": "20s"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })

	return conn
}

func TestConnIntegration(t *testing.T) {
	conn := startMongo(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, doc := range []bson.M{
		{"name": "ann", "age": 31, "team": "red"},
		{"name": "bob", "age": 25, "team": "blue"},
		{"name": "cid", "age": 40, "team": "red"},
	} {
		id, err := conn.Insert(ctx, "people", doc)
		require.NoError(t, err)
		assert.IsType(t, bson.ObjectID{}, id)
	}

	n, err := conn.Count(ctx, "people", bson.M{"team": "red"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	docs, err := conn.Find(ctx, "people", bson.M{}, FindOptions{
		Sort:       bson.D{{Key: "age", Value: -1}},
		Projection: bson.M{"name": 1},
		Skip:       1,
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "ann", docs[0]["name"])
	assert.NotContains(t, docs[0], "age")

	teams, err := conn.Distinct(ctx, "people", "team", bson.M{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"red", "blue"}, teams)

	matched, err := conn.Update(ctx, "people", bson.M{"team": "red"}, bson.M{"$set": bson.M{"team": "green"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), matched)

	deleted, err := conn.Delete(ctx, "people", bson.M{"team": "green"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	missing, err := conn.FetchRef(ctx, Ref{Collection: "people", ID: bson.NewObjectID()})
	require.NoError(t, err)
	assert.Nil(t, missing)

	reply, err := conn.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, reply["ok"])
}
