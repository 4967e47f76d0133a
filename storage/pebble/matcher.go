package pebble

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/trevex/tenantscope"
)

// match evaluates where against r with the same semantics the SQL backends
// have: NULL never equals a value, but differs from every value.
func (s *PebbleStorage) match(reader pebble.Reader, e tenantscope.Entity, r tenantscope.Record, where tenantscope.Filter) (bool, error) {
	for key, value := range where {
		ok, err := s.condition(reader, e, r, key, value)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (s *PebbleStorage) condition(reader pebble.Reader, e tenantscope.Entity, r tenantscope.Record, key string, value any) (bool, error) {
	if key == tenantscope.And {
		filters, ok := value.([]tenantscope.Filter)
		if !ok {
			return false, fmt.Errorf("%w: %s expects []Filter, got %T", tenantscope.ErrInvalidValue, key, value)
		}
		for _, f := range filters {
			ok, err := s.match(reader, e, r, f)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}

	if relation, ok := e.Relations[key]; ok {
		switch c := value.(type) {
		case tenantscope.SomeCondition:
			return s.related(reader, relation, r, c.Where)
		case tenantscope.NoneCondition:
			found, err := s.related(reader, relation, r, c.Where)
			return !found, err
		default:
			return false, fmt.Errorf("%w: relation %s expects Some or None, got %T", tenantscope.ErrInvalidValue, key, value)
		}
	}

	if _, ok := e.Fields[key]; !ok {
		return false, fmt.Errorf("%w: %s", tenantscope.ErrUnknownField, key)
	}
	actual := r[key]
	switch c := value.(type) {
	case tenantscope.InCondition:
		for _, v := range c.Values {
			if v == actual {
				return true, nil
			}
		}
		return false, nil
	case tenantscope.NeCondition:
		return c.Value != actual, nil
	case tenantscope.SomeCondition, tenantscope.NoneCondition:
		return false, fmt.Errorf("%w: %s is a field, not a relation", tenantscope.ErrInvalidValue, key)
	default:
		return value == actual, nil
	}
}

// related reports whether any record reachable through relation matches where.
func (s *PebbleStorage) related(reader pebble.Reader, relation tenantscope.Relation, r tenantscope.Record, where tenantscope.Filter) (bool, error) {
	local := r[relation.LocalKey]
	if local == nil {
		return false, nil
	}
	target, err := s.schema.Entity(relation.Entity)
	if err != nil {
		return false, err
	}
	if relation.ForeignKey == tenantscope.IDField {
		id, _ := local.(string)
		value, closer, err := reader.Get(key(relation.Entity, id))
		if err == pebble.ErrNotFound {
			return false, nil
		} else if err != nil {
			return false, err
		}
		defer closer.Close()
		related, err := decode(target, value)
		if err != nil {
			return false, err
		}
		return s.match(reader, target, related, where)
	}

	// Foreign keys are not indexed, so all records of the target are visited.
	matches, err := s.scan(reader, relation.Entity, tenantscope.Filter{relation.ForeignKey: local}, tenantscope.Page{})
	if err != nil {
		return false, err
	}
	for _, related := range matches {
		ok, err := s.match(reader, target, related, where)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
