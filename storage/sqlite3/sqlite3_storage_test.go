package sqlite3

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trevex/tenantscope"
	"github.com/trevex/tenantscope/hotel"
	"github.com/trevex/tenantscope/testsuite"
)

var (
	filepath = ""
	storage  *SQLite3Storage
)

func TestMain(m *testing.M) {

	filepath = os.Getenv("TEST_SQLITE_FILE")

	if filepath == "" {
		_ = os.Remove("./test.db")
		filepath = "./test.db"
	}

	if err := RunMigrations(context.Background(), filepath, hotel.SQLiteMigrations); err != nil {
		log.Fatalf("Could not migrate db: %s", err)
	}

	var err error
	storage, err = NewSQLite3Storage(filepath, hotel.Schema, PoolSize(4))
	if err != nil {
		log.Fatalf("SQLite3Storage creation failed: %v", err)
	}

	code := m.Run()

	// os.Exit doesn't care for defer, so let's explicitly purge and close...
	storage.Close()

	os.Exit(code)
}

func TestSQLite3WithTestSuite(t *testing.T) {
	testsuite.RunTestAll(t, map[string]testsuite.TestConfig{
		"sqlitex": {
			Storage: storage,
		},
	})
}

func TestSQLite3MigrationsAreIdempotent(t *testing.T) {
	require.NoError(t, RunMigrations(context.Background(), filepath, hotel.SQLiteMigrations))
}

func TestSQLite3Booleans(t *testing.T) {
	ctx := context.Background()
	id, err := tenantscope.NewID()
	require.NoError(t, err)

	_, err = storage.Execute(ctx, tenantscope.Request{
		Op:     tenantscope.OpCreateOne,
		Entity: hotel.StaffMember,
		Data:   []tenantscope.Record{{"id": id, "tenantId": "hotel-bools", "name": "Eve", "active": false}},
	})
	require.NoError(t, err)

	res, err := storage.Execute(ctx, tenantscope.Request{
		Op:     tenantscope.OpUpdateOne,
		Entity: hotel.StaffMember,
		Where:  tenantscope.Filter{"id": id, "active": false},
		Data:   []tenantscope.Record{{"active": true}},
	})
	require.NoError(t, err)
	require.Equal(t, true, res.Records[0]["active"])
	require.Equal(t, nil, res.Records[0]["role"])
}

func BenchmarkSQLite3(b *testing.B) {
	testsuite.RunBenchmarkAll(b, map[string]tenantscope.Storage{
		"sqlitex": storage,
	})
}
