package tenantscope

// And is the reserved [Filter] key. Its value is a []Filter that must all match.
const And = "AND"

// A Filter is a conjunction of conditions keyed by field or relation name.
// A plain value means equality (nil matches NULL), otherwise the value is a [Condition].
type Filter map[string]any

// Record is a single row as passed to and returned from a [Storage].
type Record map[string]any

// Condition is implemented by [InCondition], [NeCondition], [SomeCondition] and [NoneCondition].
type Condition interface {
	condition()
}

// InCondition matches if the field equals one of Values. An empty set matches nothing.
type InCondition struct {
	Values []any
}

// NeCondition matches if the field is not equal to Value.
type NeCondition struct {
	Value any
}

// SomeCondition is keyed by a relation and matches if at least one related record matches Where.
type SomeCondition struct {
	Where Filter
}

// NoneCondition is keyed by a relation and matches if no related record matches Where.
type NoneCondition struct {
	Where Filter
}

func (InCondition) condition()   {}
func (NeCondition) condition()   {}
func (SomeCondition) condition() {}
func (NoneCondition) condition() {}

func In(values ...any) InCondition {
	return InCondition{Values: values}
}

func Ne(value any) NeCondition {
	return NeCondition{Value: value}
}

func Some(where Filter) SomeCondition {
	return SomeCondition{Where: where}
}

func None(where Filter) NoneCondition {
	return NoneCondition{Where: where}
}

// AllOf joins filters under the [And] key, skipping empty ones.
func AllOf(filters ...Filter) Filter {
	nonEmpty := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if len(f) > 0 {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return Filter{And: nonEmpty}
}

// Clone returns a shallow copy of the filter.
func (f Filter) Clone() Filter {
	c := make(Filter, len(f)+1)
	for k, v := range f {
		c[k] = v
	}
	return c
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	c := make(Record, len(r)+1)
	for k, v := range r {
		c[k] = v
	}
	return c
}
