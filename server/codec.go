package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/trevex/tenantscope"
)

type requestBody struct {
	Where map[string]any `json:"where"`
	// Data is a single object or, for createMany, a list of objects.
	Data any `json:"data"`
	Page struct {
		After string `json:"after"`
		Limit int    `json:"limit"`
	} `json:"page"`
}

type responseBody struct {
	Records []tenantscope.Record `json:"records"`
	Count   int                  `json:"count"`
}

type errorBody struct {
	Error string `json:"error"`
}

// decodeRequest reads the JSON body of an entity operation. Numbers are kept
// as json.Number and converted by the schema of the storage. An empty body is
// an operation without filter or data.
func decodeRequest(r io.Reader) (tenantscope.Request, error) {
	var body requestBody
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return tenantscope.Request{}, fmt.Errorf("%w: %s", tenantscope.ErrInvalidRequest, err)
	}

	where, err := decodeFilter(body.Where)
	if err != nil {
		return tenantscope.Request{}, err
	}
	data, err := decodeData(body.Data)
	if err != nil {
		return tenantscope.Request{}, err
	}
	return tenantscope.Request{
		Where: where,
		Data:  data,
		Page:  tenantscope.Page{After: body.Page.After, Limit: body.Page.Limit},
	}, nil
}

func decodeFilter(raw map[string]any) (tenantscope.Filter, error) {
	if raw == nil {
		return nil, nil
	}
	where := make(tenantscope.Filter, len(raw))
	for key, value := range raw {
		if key == tenantscope.And {
			filters, err := decodeFilters(value)
			if err != nil {
				return nil, err
			}
			where[key] = filters
			continue
		}
		cond, err := decodeCondition(key, value)
		if err != nil {
			return nil, err
		}
		where[key] = cond
	}
	return where, nil
}

func decodeFilters(value any) ([]tenantscope.Filter, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a list of filters", tenantscope.ErrInvalidValue, tenantscope.And)
	}
	filters := make([]tenantscope.Filter, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a list of filters", tenantscope.ErrInvalidValue, tenantscope.And)
		}
		f, err := decodeFilter(obj)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// decodeCondition turns {"in": [...]}, {"ne": v}, {"some": {...}} and
// {"none": {...}} into conditions, every other scalar is kept for equality.
func decodeCondition(key string, value any) (any, error) {
	switch v := value.(type) {
	case []any:
		return nil, fmt.Errorf("%w: %s: lists are only allowed in \"in\"", tenantscope.ErrInvalidValue, key)
	case map[string]any:
		if len(v) != 1 {
			return nil, fmt.Errorf("%w: %s: expected exactly one of in, ne, some, none", tenantscope.ErrInvalidValue, key)
		}
		for name, operand := range v {
			switch name {
			case "in":
				values, ok := operand.([]any)
				if !ok {
					return nil, fmt.Errorf("%w: %s: \"in\" expects a list", tenantscope.ErrInvalidValue, key)
				}
				return tenantscope.In(values...), nil
			case "ne":
				return tenantscope.Ne(operand), nil
			case "some", "none":
				obj, ok := operand.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("%w: %s: %q expects a filter", tenantscope.ErrInvalidValue, key, name)
				}
				nested, err := decodeFilter(obj)
				if err != nil {
					return nil, err
				}
				if nested == nil {
					nested = tenantscope.Filter{}
				}
				if name == "some" {
					return tenantscope.Some(nested), nil
				}
				return tenantscope.None(nested), nil
			default:
				return nil, fmt.Errorf("%w: %s: unknown condition %q", tenantscope.ErrInvalidValue, key, name)
			}
		}
		panic("unreachable")
	default:
		return value, nil
	}
}

func decodeData(value any) ([]tenantscope.Record, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []tenantscope.Record{v}, nil
	case []any:
		records := make([]tenantscope.Record, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: data must contain objects", tenantscope.ErrInvalidRequest)
			}
			records = append(records, obj)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("%w: data must be an object or a list of objects", tenantscope.ErrInvalidRequest)
	}
}
