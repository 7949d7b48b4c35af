// Package testutil provides test utilities for parcel: migrated in-memory
// databases with optional seed records.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/parcel/internal/storage"
	"github.com/Veraticus/parcel/internal/testutil/records"
)

// TestDB represents a test database with associated seed data.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
	Seeded  records.Seeded
}

// SetupTestDB creates a new in-memory test database seeded with the given
// fixture. A nil fixture leaves the database empty. Migrations and cleanup
// are handled automatically.
//
// Example:
//
//	db := testutil.SetupTestDB(t, records.FixtureListing)
func SetupTestDB(t *testing.T, fixture records.Fixture) *TestDB {
	t.Helper()
	return SetupTestDBWithBuilder(t, func(b records.Builder) records.Builder {
		if fixture == nil {
			return b
		}
		return b.WithFixture(fixture)
	})
}

// SetupTestDBWithBuilder creates a test database seeded through a records
// builder.
//
// Example:
//
//	db := testutil.SetupTestDBWithBuilder(t, func(b records.Builder) records.Builder {
//		return b.WithFixture(records.FixtureListing).WithSale("jane@example.com", "12 Oak St", 340000)
//	})
func SetupTestDBWithBuilder(t *testing.T, configure func(records.Builder) records.Builder) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	builder := records.NewBuilder(t)
	if configure != nil {
		builder = configure(builder)
	}
	seeded, err := builder.Build(ctx, store)
	if err != nil {
		t.Fatalf("failed to seed records: %v", err)
	}

	return &TestDB{
		Storage: store,
		Seeded:  seeded,
		t:       t,
	}
}

// MustClientID returns the id of a seeded client or fails the test.
func (db *TestDB) MustClientID(email string) int64 {
	db.t.Helper()
	return db.Seeded.MustClient(db.t, email).ID
}
