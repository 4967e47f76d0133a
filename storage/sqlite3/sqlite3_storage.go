package sqlite3

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/samber/lo"
	"github.com/trevex/tenantscope"
	"github.com/trevex/tenantscope/storage/postgres"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitemigration"
	"zombiezen.com/go/sqlite/sqlitex"
)

// RunMigrations applies every *.sql file at the root of source in name order,
// e.g. [hotel.SQLiteMigrations]. Applied versions are tracked in the
// user_version pragma.
func RunMigrations(ctx context.Context, filepath string, source fs.FS) error {
	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return err
	}
	migrations := []string{}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		script, err := fs.ReadFile(source, entry.Name())
		if err != nil {
			return err
		}
		migrations = append(migrations, string(script))
	}

	conn, err := sqlite.OpenConn(filepath, sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL)
	if err != nil {
		return err
	}
	defer conn.Close()
	return sqlitemigration.Migrate(ctx, conn, sqlitemigration.Schema{Migrations: migrations})
}

type SQLite3Option interface {
	do(*sqlite3Config)
}

type sqlite3Config struct {
	poolSize int
}

type sqlite3FunctionAdapter func(*sqlite3Config)

func (fn sqlite3FunctionAdapter) do(c *sqlite3Config) {
	fn(c)
}

// PoolSize sets the number of connections kept open, defaults to 10.
func PoolSize(n int) SQLite3Option {
	return sqlite3FunctionAdapter(func(c *sqlite3Config) { c.poolSize = n })
}

type SQLite3Storage struct {
	pool   *sqlitex.Pool
	schema tenantscope.Schema
	qb     *postgres.QueryBuilder
}

func NewSQLite3Storage(filepath string, schema tenantscope.Schema, options ...SQLite3Option) (*SQLite3Storage, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	opts := sqlite3Config{poolSize: 10}
	lo.ForEach(options, func(o SQLite3Option, _ int) { o.do(&opts) })
	pool, err := sqlitex.NewPool(filepath, sqlitex.PoolOptions{
		PoolSize: opts.poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteTransient(conn, "PRAGMA busy_timeout = 5000;", nil)
		},
	})
	if err != nil {
		return nil, err
	}
	// The query builder is shared with postgres, only the placeholders differ.
	return &SQLite3Storage{pool, schema, postgres.NewQueryBuilder(schema, postgres.Positional)}, nil
}

func (s *SQLite3Storage) Close() error {
	return s.pool.Close()
}

func (s *SQLite3Storage) Execute(ctx context.Context, req tenantscope.Request) (tenantscope.Result, error) {
	req, err := s.schema.NormalizeRequest(req)
	if err != nil {
		return tenantscope.Result{}, err
	}
	entity, err := s.schema.Entity(req.Entity)
	if err != nil {
		return tenantscope.Result{}, err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return tenantscope.Result{}, err
	}
	defer s.pool.Put(conn)

	res, err := s.execute(conn, entity, req)
	switch sqlite.ErrCode(err) {
	case sqlite.ResultConstraintPrimaryKey, sqlite.ResultConstraintUnique:
		return res, fmt.Errorf("%w: %v", tenantscope.ErrAlreadyExists, err)
	}
	return res, err
}

func (s *SQLite3Storage) execute(conn *sqlite.Conn, entity tenantscope.Entity, req tenantscope.Request) (tenantscope.Result, error) {
	switch req.Op {
	case tenantscope.OpReadOne:
		q, err := s.qb.Select(req.Entity, req.Where, tenantscope.Page{Limit: 1})
		if err != nil {
			return tenantscope.Result{}, err
		}
		return queryOne(conn, entity, q)
	case tenantscope.OpReadMany:
		q, err := s.qb.Select(req.Entity, req.Where, req.Page)
		if err != nil {
			return tenantscope.Result{}, err
		}
		records, err := query(conn, entity, q)
		return tenantscope.Result{Records: records, Count: len(records)}, err
	case tenantscope.OpCount:
		q, err := s.qb.Count(req.Entity, req.Where)
		if err != nil {
			return tenantscope.Result{}, err
		}
		count := 0
		err = sqlitex.Execute(conn, q.SQL, &sqlitex.ExecOptions{
			Args: args(q),
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = int(stmt.ColumnInt64(0))
				return nil
			},
		})
		return tenantscope.Result{Count: count}, err
	case tenantscope.OpUpdateOne, tenantscope.OpUpdateMany:
		one := req.Op == tenantscope.OpUpdateOne
		q, err := s.qb.Update(req.Entity, req.Where, req.Data[0], one)
		if err != nil {
			return tenantscope.Result{}, err
		}
		if one {
			return queryOne(conn, entity, q)
		}
		return exec(conn, q)
	case tenantscope.OpDeleteOne, tenantscope.OpDeleteMany:
		one := req.Op == tenantscope.OpDeleteOne
		q, err := s.qb.Delete(req.Entity, req.Where, one)
		if err != nil {
			return tenantscope.Result{}, err
		}
		if one {
			return queryOne(conn, entity, q)
		}
		return exec(conn, q)
	case tenantscope.OpCreateOne:
		q, err := s.qb.Insert(req.Entity, req.Data[0])
		if err != nil {
			return tenantscope.Result{}, err
		}
		return queryOne(conn, entity, q)
	case tenantscope.OpCreateMany:
		return s.createMany(conn, req)
	default:
		panic("unreachable")
	}
}

// createMany inserts all records inside a savepoint; either all of them are
// created or none.
func (s *SQLite3Storage) createMany(conn *sqlite.Conn, req tenantscope.Request) (res tenantscope.Result, err error) {
	defer sqlitex.Save(conn)(&err)
	for _, r := range req.Data {
		q, err := s.qb.Insert(req.Entity, r)
		if err != nil {
			return tenantscope.Result{}, err
		}
		if err := sqlitex.Execute(conn, q.SQL, &sqlitex.ExecOptions{Args: args(q)}); err != nil {
			return tenantscope.Result{}, err
		}
	}
	return tenantscope.Result{Count: len(req.Data)}, nil
}

func query(conn *sqlite.Conn, entity tenantscope.Entity, q postgres.Query) ([]tenantscope.Record, error) {
	records := []tenantscope.Record{}
	err := sqlitex.Execute(conn, q.SQL, &sqlitex.ExecOptions{
		Args: args(q),
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r, err := scan(stmt, entity)
			if err != nil {
				return err
			}
			records = append(records, r)
			return nil
		},
	})
	return records, err
}

func queryOne(conn *sqlite.Conn, entity tenantscope.Entity, q postgres.Query) (tenantscope.Result, error) {
	records, err := query(conn, entity, q)
	if err != nil {
		return tenantscope.Result{}, err
	}
	if len(records) == 0 {
		return tenantscope.Result{}, tenantscope.ErrNotFound
	}
	return tenantscope.Result{Records: records[:1], Count: 1}, nil
}

func exec(conn *sqlite.Conn, q postgres.Query) (tenantscope.Result, error) {
	if err := sqlitex.Execute(conn, q.SQL, &sqlitex.ExecOptions{Args: args(q)}); err != nil {
		return tenantscope.Result{}, err
	}
	return tenantscope.Result{Count: conn.Changes()}, nil
}

// scan reads the current row. Booleans are stored as integers and converted
// back using the schema.
func scan(stmt *sqlite.Stmt, entity tenantscope.Entity) (tenantscope.Record, error) {
	r := make(tenantscope.Record, stmt.ColumnCount())
	for i := 0; i < stmt.ColumnCount(); i++ {
		var v any
		switch stmt.ColumnType(i) {
		case sqlite.TypeNull:
			v = nil
		case sqlite.TypeInteger:
			v = stmt.ColumnInt64(i)
		case sqlite.TypeFloat:
			v = stmt.ColumnFloat(i)
		default:
			v = stmt.ColumnText(i)
		}
		name := strings.Trim(stmt.ColumnName(i), `"`)
		c, err := entity.Coerce(name, v)
		if err != nil {
			return nil, err
		}
		r[name] = c
	}
	return r, nil
}

func args(q postgres.Query) []any {
	return lo.Map(q.Args, func(v any, _ int) any {
		if b, ok := v.(bool); ok {
			return lo.Ternary[int64](b, 1, 0)
		}
		return v
	})
}

var _ tenantscope.Storage = (*SQLite3Storage)(nil)
