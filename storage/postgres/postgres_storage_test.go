package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/trevex/tenantscope"
	"github.com/trevex/tenantscope/hotel"
	"github.com/trevex/tenantscope/testsuite"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"
)

var (
	databaseURL = ""
	storage     *PostgresStorage
)

func TestMain(m *testing.M) {
	var (
		pool     *dockertest.Pool
		resource *dockertest.Resource
		err      error
	)

	databaseURL = os.Getenv("TEST_POSTGRES_DATABASE_URL")

	if databaseURL == "" {
		pool, err = dockertest.NewPool("")
		if err != nil {
			log.Fatalf("Could not connect to docker: %s", err)
		}

		resource, err = pool.RunWithOptions(&dockertest.RunOptions{
			Repository: "postgres",
			Tag:        "15.4",
			Env: []string{
				"POSTGRES_PASSWORD=tenantscope",
				"POSTGRES_USER=tenantscope",
				"POSTGRES_DB=tenantscope",
				"listen_addresses = '*'",
			},
		}, func(config *docker.HostConfig) {
			config.AutoRemove = true // Stopped container should be removed
			config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		})
		if err != nil {
			log.Fatalf("Could not start resource: %s", err)
		}
		_ = resource.Expire(300) // In any case container should be killed in 5min

		hostAndPort := resource.GetHostPort("5432/tcp")
		databaseURL = fmt.Sprintf("postgres://tenantscope:tenantscope@%s/tenantscope?sslmode=disable", hostAndPort)

		// We connect with exponential backoff (maximum wait 2min)
		pool.MaxWait = 120 * time.Second
		if err = pool.Retry(func() error {
			db, err := sql.Open("pgx", databaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.Ping()
		}); err != nil {
			log.Fatalf("Could not connect to postgres: %s", err)
		}
	}

	if err := RunMigrations(databaseURL, hotel.PostgresMigrations); err != nil {
		log.Fatalf("Could not migrate db: %s", err)
	}

	storage, err = NewPostgresStorage(databaseURL, hotel.Schema, MaxConns(8))
	if err != nil {
		log.Fatalf("PostgresStorage creation failed: %v", err)
	}

	code := m.Run()

	// os.Exit doesn't care for defer, so let's explicitly purge and close...
	storage.Close()
	if pool != nil {
		if err := pool.Purge(resource); err != nil {
			log.Fatalf("Could not purge resource: %s", err)
		}
	}

	os.Exit(code)
}

func TestPostgresWithTestSuite(t *testing.T) {
	testsuite.RunTestAll(t, map[string]testsuite.TestConfig{
		"pgxpool": {
			Storage: storage,
		},
	})
}

func TestPostgresMigrationsAreIdempotent(t *testing.T) {
	require.NoError(t, RunMigrations(databaseURL, hotel.PostgresMigrations))
}

func TestPostgresValues(t *testing.T) {
	ctx := context.Background()
	id, err := tenantscope.NewID()
	require.NoError(t, err)

	res, err := storage.Execute(ctx, tenantscope.Request{
		Op:     tenantscope.OpCreateOne,
		Entity: hotel.Invoice,
		Data:   []tenantscope.Record{{"id": id, "tenantId": "hotel-values", "amountCents": 1250, "paid": true}},
	})
	require.NoError(t, err)
	require.Equal(t, tenantscope.Record{
		"id":          id,
		"tenantId":    "hotel-values",
		"bookingId":   nil,
		"amountCents": int64(1250),
		"paid":        true,
	}, res.Records[0])

	res, err = storage.Execute(ctx, tenantscope.Request{
		Op:     tenantscope.OpCount,
		Entity: hotel.Invoice,
		Where:  tenantscope.Filter{"id": id, "bookingId": nil, "paid": tenantscope.Ne(false)},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
}

func BenchmarkPostgres(b *testing.B) {
	testsuite.RunBenchmarkAll(b, map[string]tenantscope.Storage{
		"pgxpool": storage,
	})
}

func standardizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
