package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/trevex/tenantscope"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
)

// RunMigrations applies the golang-migrate files found at the root of source,
// e.g. [hotel.PostgresMigrations].
func RunMigrations(databaseURL string, source fs.FS) error {
	driver, err := iofs.New(source, ".")
	if err != nil {
		return err
	}
	migrations, err := migrate.NewWithSourceInstance("iofs", driver, databaseURL)
	if err != nil {
		return err
	}
	err = migrations.Up()
	if err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

const uniqueViolation = "23505"

type PostgresOption interface {
	do(*postgresConfig)
}

type postgresConfig struct {
	maxConns int32
}

type postgresFunctionAdapter func(*postgresConfig)

func (fn postgresFunctionAdapter) do(c *postgresConfig) {
	fn(c)
}

// MaxConns overrides the pool size, which otherwise is taken from the
// pool_max_conns parameter of the database URL.
func MaxConns(n int32) PostgresOption {
	return postgresFunctionAdapter(func(c *postgresConfig) { c.maxConns = n })
}

type PostgresStorage struct {
	pool   *pgxpool.Pool
	schema tenantscope.Schema
	qb     *QueryBuilder
}

func NewPostgresStorage(databaseURL string, schema tenantscope.Schema, options ...PostgresOption) (*PostgresStorage, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	opts := postgresConfig{}
	lo.ForEach(options, func(o PostgresOption, _ int) { o.do(&opts) })
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	if opts.maxConns > 0 {
		config.MaxConns = opts.maxConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}
	return &PostgresStorage{pool, schema, NewQueryBuilder(schema, Numbered)}, nil
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStorage) Execute(ctx context.Context, req tenantscope.Request) (tenantscope.Result, error) {
	req, err := s.schema.NormalizeRequest(req)
	if err != nil {
		return tenantscope.Result{}, err
	}
	res, err := s.execute(ctx, req)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return res, fmt.Errorf("%w: %s", tenantscope.ErrAlreadyExists, pgErr.Detail)
	}
	return res, err
}

func (s *PostgresStorage) execute(ctx context.Context, req tenantscope.Request) (tenantscope.Result, error) {
	switch req.Op {
	case tenantscope.OpReadOne:
		q, err := s.qb.Select(req.Entity, req.Where, tenantscope.Page{Limit: 1})
		if err != nil {
			return tenantscope.Result{}, err
		}
		return s.queryOne(ctx, q)
	case tenantscope.OpReadMany:
		q, err := s.qb.Select(req.Entity, req.Where, req.Page)
		if err != nil {
			return tenantscope.Result{}, err
		}
		records, err := s.query(ctx, q)
		return tenantscope.Result{Records: records, Count: len(records)}, err
	case tenantscope.OpCount:
		q, err := s.qb.Count(req.Entity, req.Where)
		if err != nil {
			return tenantscope.Result{}, err
		}
		var count int64
		if err := s.pool.QueryRow(ctx, q.SQL, q.Args...).Scan(&count); err != nil {
			return tenantscope.Result{}, err
		}
		return tenantscope.Result{Count: int(count)}, nil
	case tenantscope.OpUpdateOne, tenantscope.OpUpdateMany:
		one := req.Op == tenantscope.OpUpdateOne
		q, err := s.qb.Update(req.Entity, req.Where, req.Data[0], one)
		if err != nil {
			return tenantscope.Result{}, err
		}
		if one {
			return s.queryOne(ctx, q)
		}
		return s.exec(ctx, q)
	case tenantscope.OpDeleteOne, tenantscope.OpDeleteMany:
		one := req.Op == tenantscope.OpDeleteOne
		q, err := s.qb.Delete(req.Entity, req.Where, one)
		if err != nil {
			return tenantscope.Result{}, err
		}
		if one {
			return s.queryOne(ctx, q)
		}
		return s.exec(ctx, q)
	case tenantscope.OpCreateOne:
		q, err := s.qb.Insert(req.Entity, req.Data[0])
		if err != nil {
			return tenantscope.Result{}, err
		}
		return s.queryOne(ctx, q)
	case tenantscope.OpCreateMany:
		return s.createMany(ctx, req)
	default:
		panic("unreachable")
	}
}

func (s *PostgresStorage) query(ctx context.Context, q Query) ([]tenantscope.Record, error) {
	rows, err := s.pool.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	return lo.Map(maps, func(m map[string]any, _ int) tenantscope.Record { return tenantscope.Record(m) }), nil
}

func (s *PostgresStorage) queryOne(ctx context.Context, q Query) (tenantscope.Result, error) {
	records, err := s.query(ctx, q)
	if err != nil {
		return tenantscope.Result{}, err
	}
	if len(records) == 0 {
		return tenantscope.Result{}, tenantscope.ErrNotFound
	}
	return tenantscope.Result{Records: records[:1], Count: 1}, nil
}

func (s *PostgresStorage) exec(ctx context.Context, q Query) (tenantscope.Result, error) {
	tag, err := s.pool.Exec(ctx, q.SQL, q.Args...)
	if err != nil {
		return tenantscope.Result{}, err
	}
	return tenantscope.Result{Count: int(tag.RowsAffected())}, nil
}

// createMany inserts all records in one transaction; either all of them are
// created or none.
func (s *PostgresStorage) createMany(ctx context.Context, req tenantscope.Request) (tenantscope.Result, error) {
	batch := &pgx.Batch{}
	for _, r := range req.Data {
		q, err := s.qb.Insert(req.Entity, r)
		if err != nil {
			return tenantscope.Result{}, err
		}
		batch.Queue(q.SQL, q.Args...)
	}
	if batch.Len() == 0 {
		return tenantscope.Result{}, nil
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return tenantscope.Result{}, err
	}
	return tenantscope.Result{Count: len(req.Data)}, nil
}

var _ tenantscope.Storage = (*PostgresStorage)(nil)
