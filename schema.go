package tenantscope

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// IDField is the primary key every entity carries.
const IDField = "id"

type FieldType int

const (
	FieldString FieldType = iota + 1
	FieldInt
	FieldBool
)

func (t FieldType) String() string {
	switch t {
	case FieldString:
		return "string"
	case FieldInt:
		return "int"
	case FieldBool:
		return "bool"
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// A Relation links records of one entity to records of another entity whose
// ForeignKey equals this record's LocalKey.
type Relation struct {
	Entity     string
	LocalKey   string
	ForeignKey string
}

type Entity struct {
	Table     string
	Fields    map[string]FieldType
	Relations map[string]Relation
}

// Schema describes the entities a [Storage] knows about.
type Schema map[string]Entity

func (s Schema) Validate() error {
	for name, e := range s {
		if e.Table == "" {
			return fmt.Errorf("entity %s: missing table", name)
		}
		if e.Fields[IDField] != FieldString {
			return fmt.Errorf("entity %s: %q must be a string field", name, IDField)
		}
		for field, t := range e.Fields {
			if field == And {
				return fmt.Errorf("entity %s: %q is reserved", name, And)
			}
			if t < FieldString || t > FieldBool {
				return fmt.Errorf("entity %s: field %s has unknown type %v", name, field, t)
			}
		}
		for relation, r := range e.Relations {
			if _, clash := e.Fields[relation]; clash || relation == And {
				return fmt.Errorf("entity %s: relation %s clashes with a field", name, relation)
			}
			target, ok := s[r.Entity]
			if !ok {
				return fmt.Errorf("entity %s: relation %s targets unknown entity %s", name, relation, r.Entity)
			}
			if _, ok := e.Fields[r.LocalKey]; !ok {
				return fmt.Errorf("entity %s: relation %s uses unknown local key %s", name, relation, r.LocalKey)
			}
			if _, ok := target.Fields[r.ForeignKey]; !ok {
				return fmt.Errorf("entity %s: relation %s uses unknown foreign key %s.%s", name, relation, r.Entity, r.ForeignKey)
			}
		}
	}
	return nil
}

func (s Schema) Entity(name string) (Entity, error) {
	e, ok := s[name]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return e, nil
}

// Columns returns the field names in sorted order.
func (e Entity) Columns() []string {
	columns := maps.Keys(e.Fields)
	slices.Sort(columns)
	return columns
}

// Complete returns a copy of r in which every field of the entity is present.
func (e Entity) Complete(r Record) Record {
	c := make(Record, len(e.Fields))
	for field := range e.Fields {
		c[field] = r[field]
	}
	return c
}

// Coerce converts v to the canonical Go type of field: string, int64 or bool.
func (e Entity) Coerce(field string, v any) (any, error) {
	t, ok := e.Fields[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	c, ok := coerce(t, v)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects %v, got %T", ErrInvalidValue, field, t, v)
	}
	return c, nil
}

func coerce(t FieldType, v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	switch t {
	case FieldString:
		switch v := v.(type) {
		case string:
			return v, true
		case TenantID:
			return string(v), true
		}
	case FieldInt:
		switch v := v.(type) {
		case int64:
			return v, true
		case int:
			return int64(v), true
		case int32:
			return int64(v), true
		case int16:
			return int64(v), true
		case int8:
			return int64(v), true
		case uint32:
			return int64(v), true
		case uint16:
			return int64(v), true
		case uint8:
			return int64(v), true
		case float64:
			if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
				return int64(v), true
			}
		case json.Number:
			i, err := v.Int64()
			return i, err == nil
		}
	case FieldBool:
		switch v := v.(type) {
		case bool:
			return v, true
		case int64:
			return v != 0, v == 0 || v == 1
		}
	}
	return nil, false
}

func (s Schema) NormalizeFilter(entity string, f Filter) (Filter, error) {
	e, err := s.Entity(entity)
	if err != nil {
		return nil, err
	}
	return s.normalizeFilter(entity, e, f)
}

func (s Schema) normalizeFilter(name string, e Entity, f Filter) (Filter, error) {
	out := make(Filter, len(f))
	for key, value := range f {
		if key == And {
			filters, ok := value.([]Filter)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s expects []Filter, got %T", ErrInvalidValue, name, And, value)
			}
			normalized := make([]Filter, 0, len(filters))
			for _, sub := range filters {
				n, err := s.normalizeFilter(name, e, sub)
				if err != nil {
					return nil, err
				}
				normalized = append(normalized, n)
			}
			out[And] = normalized
			continue
		}

		if _, ok := e.Fields[key]; ok {
			v, err := normalizeCondition(e, key, value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out[key] = v
			continue
		}

		if r, ok := e.Relations[key]; ok {
			target := s[r.Entity]
			switch c := value.(type) {
			case SomeCondition:
				where, err := s.normalizeFilter(r.Entity, target, c.Where)
				if err != nil {
					return nil, err
				}
				out[key] = Some(where)
			case NoneCondition:
				where, err := s.normalizeFilter(r.Entity, target, c.Where)
				if err != nil {
					return nil, err
				}
				out[key] = None(where)
			default:
				return nil, fmt.Errorf("%w: relation %s.%s expects Some or None, got %T", ErrInvalidValue, name, key, value)
			}
			continue
		}

		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, name, key)
	}
	return out, nil
}

func normalizeCondition(e Entity, field string, value any) (any, error) {
	switch c := value.(type) {
	case InCondition:
		values := make([]any, 0, len(c.Values))
		for _, v := range c.Values {
			n, err := e.Coerce(field, v)
			if err != nil {
				return nil, err
			}
			values = append(values, n)
		}
		return In(values...), nil
	case NeCondition:
		v, err := e.Coerce(field, c.Value)
		if err != nil {
			return nil, err
		}
		return Ne(v), nil
	case SomeCondition, NoneCondition:
		return nil, fmt.Errorf("%w: %s is a field, not a relation", ErrInvalidValue, field)
	default:
		return e.Coerce(field, value)
	}
}

// NormalizeRecord coerces every value of r and rejects unknown fields.
func (s Schema) NormalizeRecord(entity string, r Record) (Record, error) {
	e, err := s.Entity(entity)
	if err != nil {
		return nil, err
	}
	out := make(Record, len(r))
	for field, value := range r {
		v, err := e.Coerce(field, value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entity, err)
		}
		out[field] = v
	}
	return out, nil
}

// NormalizeRequest validates req against the schema and returns a copy with
// normalized filter and payload. Records created without an id get a UUIDv7.
func (s Schema) NormalizeRequest(req Request) (Request, error) {
	if !req.Op.Valid() {
		return Request{}, fmt.Errorf("%w: %v", ErrUnknownOp, req.Op)
	}
	where, err := s.NormalizeFilter(req.Entity, req.Where)
	if err != nil {
		return Request{}, err
	}
	req.Where = where
	if req.Page.Limit < 0 {
		return Request{}, fmt.Errorf("%w: negative limit", ErrInvalidRequest)
	}

	switch req.Op {
	case OpReadOne, OpReadMany, OpCount, OpDeleteOne, OpDeleteMany:
		if len(req.Data) != 0 {
			return Request{}, fmt.Errorf("%w: %v takes no data", ErrInvalidRequest, req.Op)
		}
	case OpUpdateOne, OpUpdateMany:
		if len(req.Data) != 1 {
			return Request{}, fmt.Errorf("%w: %v takes exactly one record", ErrInvalidRequest, req.Op)
		}
		data, err := s.NormalizeRecord(req.Entity, req.Data[0])
		if err != nil {
			return Request{}, err
		}
		if _, ok := data[IDField]; ok {
			return Request{}, fmt.Errorf("%w: %s.%s is immutable", ErrInvalidValue, req.Entity, IDField)
		}
		if len(data) == 0 {
			return Request{}, fmt.Errorf("%w: nothing to update", ErrInvalidRequest)
		}
		req.Data = []Record{data}
	case OpCreateOne, OpCreateMany:
		if req.Op == OpCreateOne && len(req.Data) != 1 {
			return Request{}, fmt.Errorf("%w: %v takes exactly one record", ErrInvalidRequest, req.Op)
		}
		records := make([]Record, 0, len(req.Data))
		for _, r := range req.Data {
			data, err := s.NormalizeRecord(req.Entity, r)
			if err != nil {
				return Request{}, err
			}
			if id, _ := data[IDField].(string); id == "" {
				if data[IDField], err = NewID(); err != nil {
					return Request{}, err
				}
			}
			records = append(records, data)
		}
		req.Data = records
	default:
		panic("unreachable")
	}
	return req, nil
}

// NewID returns a new time-ordered record id.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
