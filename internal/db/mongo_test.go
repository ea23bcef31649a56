package db

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectMongo_BadURI(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, "mongodb://bad:uri")
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestMongoUserData_NilCollection(t *testing.T) {
	coll := &MongoUserData{}

	_, _, err := coll.Fetch(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrNilCollection)
	assert.ErrorIs(t, coll.Upsert(context.Background(), "user-1", []byte(`{}`)), ErrNilCollection)
}

func TestPostgresUserData_NilPool(t *testing.T) {
	store := &PostgresUserData{}

	_, _, err := store.Fetch(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrNilPool)
	assert.ErrorIs(t, store.Upsert(context.Background(), "user-1", []byte(`{}`)), ErrNilPool)
	assert.ErrorIs(t, store.EnsureSchema(context.Background()), ErrNilPool)
}

type payloadShape struct {
	Motorcycles []struct {
		RegistrationNumber string  `json:"registrationNumber"`
		CurrentOdometer    float64 `json:"currentOdometer"`
	} `json:"motorcycles"`
	SavedMakes  []string            `json:"savedMakes"`
	SavedModels map[string][]string `json:"savedModels"`
}

const samplePayload = `{"motorcycles":[{"registrationNumber":"MH01AB1234","currentOdometer":15000.5}],` +
	`"savedMakes":["Honda"],"savedModels":{"Honda":["Activa 6G"]},"serviceRecords":[]}`

func assertSamePayload(t *testing.T, want, got []byte) {
	t.Helper()
	var a, b payloadShape
	require.NoError(t, json.Unmarshal(want, &a))
	require.NoError(t, json.Unmarshal(got, &b))
	assert.Equal(t, a, b)
}

// Integration test (requires running MongoDB)
func TestMongoUserData_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	defer client.Disconnect(context.Background())

	coll := client.Database("test_fleet").Collection("user_data")
	coll.Drop(ctx)
	store := &MongoUserData{Collection: coll}

	_, found, err := store.Fetch(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Upsert(ctx, "user-1", []byte(samplePayload)))
	got, found, err := store.Fetch(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, found)
	assertSamePayload(t, []byte(samplePayload), got)

	require.NoError(t, store.Upsert(ctx, "user-1", []byte(`{"savedMakes":["Bajaj"]}`)))
	got, _, err = store.Fetch(ctx, "user-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"savedMakes":["Bajaj"]}`, string(got))
}

// Integration test (requires running Postgres)
func TestPostgresUserData_Integration(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	pool, err := ConnectPostgres(ctx, url)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	defer pool.Close()

	store := &PostgresUserData{Pool: pool}
	require.NoError(t, store.EnsureSchema(ctx))
	cleanup := func() {
		_, err := pool.Exec(context.Background(), `DELETE FROM user_data WHERE user_id = $1`, "it-user")
		require.NoError(t, err)
	}
	cleanup()
	defer cleanup()

	_, found, err := store.Fetch(ctx, "it-user")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Upsert(ctx, "it-user", []byte(samplePayload)))
	require.NoError(t, store.Upsert(ctx, "it-user", []byte(samplePayload)))
	got, found, err := store.Fetch(ctx, "it-user")
	require.NoError(t, err)
	require.True(t, found)
	assertSamePayload(t, []byte(samplePayload), got)
}
