package surrealdb

import (
	"context"
	"testing"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/testenv"
	surreal "github.com/surrealdb/surrealdb.go"
)

// testDB starts the shared SurrealDB container and returns a connected *surreal.DB
// using a unique database name per test to ensure isolation.
func testDB(t *testing.T) *surreal.DB {
	t.Helper()

	sc := testenv.StartSurrealDB(t)
	ctx := context.Background()

	db, err := Connect(ctx, &common.StorageConfig{
		Address:   sc.Address(),
		Namespace: "folio_test",
		Database:  testenv.DatabaseName(t, "t"),
		Username:  "root",
		Password:  "root",
	})
	if err != nil {
		t.Fatalf("connect to SurrealDB: %v", err)
	}
	if err := DefineTables(ctx, db); err != nil {
		t.Fatalf("define tables: %v", err)
	}

	t.Cleanup(func() {
		db.Close(context.Background())
	})

	return db
}

// testLogger returns a silent logger for tests.
func testLogger() *common.Logger {
	return common.NewSilentLogger()
}
