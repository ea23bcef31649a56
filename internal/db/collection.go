package db

import (
	"context"
	"errors"
)

var ErrNilCollection = errors.New("mongo collection is nil")

// UserDataStore holds one JSON payload per user. It is the remote side of the
// local-first fleet store.
type UserDataStore interface {
	Fetch(ctx context.Context, userID string) ([]byte, bool, error)
	Upsert(ctx context.Context, userID string, payload []byte) error
}

var (
	_ UserDataStore = (*MongoUserData)(nil)
	_ UserDataStore = (*PostgresUserData)(nil)

	_ UserCollection = (*MongoUserCollection)(nil)
	_ UserCollection = (*SQLiteUserCollection)(nil)
)
