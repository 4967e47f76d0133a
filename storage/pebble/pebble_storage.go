package pebble

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/trevex/tenantscope"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/samber/lo"
)

type PebbleOption interface {
	do(*pebbleConfig)
}

type pebbleConfig struct {
	inMemory bool
}

type pebbleFunctionAdapter func(*pebbleConfig)

func (fn pebbleFunctionAdapter) do(c *pebbleConfig) {
	fn(c)
}

// InMemory keeps all data in memory, dirname is only used as name.
func InMemory() PebbleOption {
	return pebbleFunctionAdapter(func(c *pebbleConfig) { c.inMemory = true })
}

// PebbleStorage stores every record as JSON under r/<entity>/<id>. Filters are
// evaluated in-process, which makes it suitable for tests and small
// single-node deployments.
type PebbleStorage struct {
	db     *pebble.DB
	schema tenantscope.Schema
	// Writes read their matches before committing, so they are serialized.
	mu sync.Mutex
}

func NewPebbleStorage(dirname string, schema tenantscope.Schema, options ...PebbleOption) (*PebbleStorage, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	opts := pebbleConfig{}
	lo.ForEach(options, func(o PebbleOption, _ int) { o.do(&opts) })
	pebbleOpts := &pebble.Options{}
	if opts.inMemory {
		pebbleOpts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dirname, pebbleOpts)
	if err != nil {
		return nil, err
	}
	return &PebbleStorage{db: db, schema: schema}, nil
}

func (s *PebbleStorage) Close() error {
	return s.db.Close()
}

func (s *PebbleStorage) Execute(ctx context.Context, req tenantscope.Request) (tenantscope.Result, error) {
	req, err := s.schema.NormalizeRequest(req)
	if err != nil {
		return tenantscope.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return tenantscope.Result{}, err
	}

	switch req.Op {
	case tenantscope.OpReadOne:
		records, err := s.scan(s.db, req.Entity, req.Where, tenantscope.Page{Limit: 1})
		if err != nil {
			return tenantscope.Result{}, err
		}
		return one(records)
	case tenantscope.OpReadMany:
		records, err := s.scan(s.db, req.Entity, req.Where, req.Page)
		return tenantscope.Result{Records: records, Count: len(records)}, err
	case tenantscope.OpCount:
		records, err := s.scan(s.db, req.Entity, req.Where, tenantscope.Page{})
		return tenantscope.Result{Count: len(records)}, err
	case tenantscope.OpUpdateOne, tenantscope.OpUpdateMany:
		return s.write(req, func(b *pebble.Batch, r tenantscope.Record) (tenantscope.Record, error) {
			for field, v := range req.Data[0] {
				r[field] = v
			}
			return r, s.set(b, req.Entity, r)
		})
	case tenantscope.OpDeleteOne, tenantscope.OpDeleteMany:
		return s.write(req, func(b *pebble.Batch, r tenantscope.Record) (tenantscope.Record, error) {
			return r, b.Delete(key(req.Entity, r[tenantscope.IDField].(string)), nil)
		})
	case tenantscope.OpCreateOne, tenantscope.OpCreateMany:
		return s.create(req)
	default:
		panic("unreachable")
	}
}

// write applies fn to the first match (single-record ops) or to all matches
// and commits the changes in one batch.
func (s *PebbleStorage) write(req tenantscope.Request, fn func(*pebble.Batch, tenantscope.Record) (tenantscope.Record, error)) (tenantscope.Result, error) {
	single := req.Op == tenantscope.OpUpdateOne || req.Op == tenantscope.OpDeleteOne
	page := tenantscope.Page{}
	if single {
		page.Limit = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := s.scan(s.db, req.Entity, req.Where, page)
	if err != nil {
		return tenantscope.Result{}, err
	}
	if single && len(matches) == 0 {
		return tenantscope.Result{}, tenantscope.ErrNotFound
	}

	b := s.db.NewBatch()
	defer b.Close()
	records := make([]tenantscope.Record, 0, len(matches))
	for _, r := range matches {
		r, err := fn(b, r)
		if err != nil {
			return tenantscope.Result{}, err
		}
		records = append(records, r)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return tenantscope.Result{}, err
	}
	if single {
		return tenantscope.Result{Records: records, Count: 1}, nil
	}
	return tenantscope.Result{Count: len(records)}, nil
}

func (s *PebbleStorage) create(req tenantscope.Request) (tenantscope.Result, error) {
	e, err := s.schema.Entity(req.Entity)
	if err != nil {
		return tenantscope.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()
	seen := map[string]bool{}
	records := make([]tenantscope.Record, 0, len(req.Data))
	for _, data := range req.Data {
		r := e.Complete(data)
		id := r[tenantscope.IDField].(string)
		exists, err := s.exists(req.Entity, id)
		if err != nil {
			return tenantscope.Result{}, err
		}
		if exists || seen[id] {
			return tenantscope.Result{}, fmt.Errorf("%w: %s %s", tenantscope.ErrAlreadyExists, req.Entity, id)
		}
		seen[id] = true
		if err := s.set(b, req.Entity, r); err != nil {
			return tenantscope.Result{}, err
		}
		records = append(records, r)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return tenantscope.Result{}, err
	}
	if req.Op == tenantscope.OpCreateOne {
		return tenantscope.Result{Records: records, Count: 1}, nil
	}
	return tenantscope.Result{Count: len(records)}, nil
}

func (s *PebbleStorage) exists(entity, id string) (bool, error) {
	_, closer, err := s.db.Get(key(entity, id))
	if err == pebble.ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (s *PebbleStorage) set(b *pebble.Batch, entity string, r tenantscope.Record) error {
	value, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return b.Set(key(entity, r[tenantscope.IDField].(string)), value, nil)
}

// scan returns the records of entity matching where in id order.
func (s *PebbleStorage) scan(reader pebble.Reader, entity string, where tenantscope.Filter, page tenantscope.Page) ([]tenantscope.Record, error) {
	e, err := s.schema.Entity(entity)
	if err != nil {
		return nil, err
	}
	iter, err := reader.NewIter(prefixIterOptions(prefix(entity)))
	if err != nil {
		return nil, err
	}

	records := []tenantscope.Record{}
	valid := iter.First()
	if page.After != "" {
		// The zero byte makes the seek skip After itself.
		valid = iter.SeekGE(append(key(entity, page.After), 0))
	}
	for ; valid; valid = iter.Next() {
		r, err := decode(e, iter.Value())
		if err != nil {
			iter.Close()
			return nil, err
		}
		ok, err := s.match(reader, e, r, where)
		if err != nil {
			iter.Close()
			return nil, err
		}
		if !ok {
			continue
		}
		records = append(records, r)
		if page.Limit > 0 && len(records) == page.Limit {
			break
		}
	}
	return records, iter.Close()
}

func decode(e tenantscope.Entity, value []byte) (tenantscope.Record, error) {
	raw := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	r := make(tenantscope.Record, len(e.Fields))
	for field := range e.Fields {
		v, err := e.Coerce(field, raw[field])
		if err != nil {
			return nil, err
		}
		r[field] = v
	}
	return r, nil
}

func prefix(entity string) []byte {
	return []byte("r/" + entity + "/")
}

func key(entity, id string) []byte {
	return append(prefix(entity), id...)
}

func keyUpperBound(b []byte) []byte {
	end := make([]byte, len(b))
	copy(end, b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i] = end[i] + 1
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // no upper-bound
}

func prefixIterOptions(prefix []byte) *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	}
}

func one(records []tenantscope.Record) (tenantscope.Result, error) {
	if len(records) == 0 {
		return tenantscope.Result{}, tenantscope.ErrNotFound
	}
	return tenantscope.Result{Records: records[:1], Count: 1}, nil
}

var _ tenantscope.Storage = (*PebbleStorage)(nil)
