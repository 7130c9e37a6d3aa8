//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/razorphish/core-api-sub000/internal/repository"
)

func TestPostgresStoreContract(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatal("DATABASE_URL must be set for integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := repository.OpenPostgres(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	runStoreContract(t, store)
}

func TestMongoStoreContract(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Fatal("MONGO_URI must be set for integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := repository.OpenMongo(ctx, uri, "oauthd_integration")
	if err != nil {
		t.Fatalf("failed to open mongo: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	runStoreContract(t, store)
}
