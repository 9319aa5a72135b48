package repository_test

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pairmatch/ledger/internal/db"
	"github.com/pairmatch/ledger/internal/identity"
)

// setupTestDB opens an in-memory sqlite DB with the full schema.
// TranslateError is on so duplicate keys surface the same way as in prod.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

func testKey(b byte) identity.Key {
	var k identity.Key
	for i := range k {
		k[i] = b
	}
	return k
}
