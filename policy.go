package tenantscope

import (
	"fmt"
)

// Scoping is how an entity is tied to a tenant.
type Scoping int

const (
	// ScopeDirect entities carry their own tenant field.
	ScopeDirect Scoping = iota + 1
	// ScopeAssociative entities belong to a tenant through a relation to a
	// directly scoped entity.
	ScopeAssociative
	// ScopeUnscoped entities are global and never rewritten.
	ScopeUnscoped
)

func (s Scoping) String() string {
	switch s {
	case ScopeDirect:
		return "direct"
	case ScopeAssociative:
		return "associative"
	case ScopeUnscoped:
		return "unscoped"
	}
	return fmt.Sprintf("Scoping(%d)", int(s))
}

// AssociativeMatch decides when an associatively scoped record is visible to a tenant.
type AssociativeMatch int

const (
	// AnyRelated makes a record visible to every tenant it has at least one
	// related record in. A guest who stayed at two hotels is visible to both.
	AnyRelated AssociativeMatch = iota + 1
	// OnlyRelated additionally requires that no related record belongs to
	// another tenant.
	OnlyRelated
)

type EntityPolicy struct {
	Scoping Scoping
	// TenantField is the field holding the tenant. For associative entities it
	// lives on the related entity and is filled in by [NewPolicy].
	TenantField string
	// Relation is only set for associative entities.
	Relation string
	Match    AssociativeMatch
}

func Direct(tenantField string) EntityPolicy {
	return EntityPolicy{Scoping: ScopeDirect, TenantField: tenantField}
}

func Associative(relation string, match AssociativeMatch) EntityPolicy {
	return EntityPolicy{Scoping: ScopeAssociative, Relation: relation, Match: match}
}

func Unscoped() EntityPolicy {
	return EntityPolicy{Scoping: ScopeUnscoped}
}

// PolicyMap maps entity names to their scoping.
type PolicyMap map[string]EntityPolicy

// Policy is a validated [PolicyMap] bound to the [Schema] it was checked against.
type Policy struct {
	schema  Schema
	entries PolicyMap
}

// NewPolicy checks entries against schema. Every entity of the schema needs an
// entry, global entities have to be tagged [Unscoped] explicitly.
func NewPolicy(schema Schema, entries PolicyMap) (*Policy, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	for name := range schema {
		if _, ok := entries[name]; !ok {
			return nil, fmt.Errorf("entity %s has no tenant policy", name)
		}
	}

	resolved := make(PolicyMap, len(entries))
	for name, entry := range entries {
		entity, ok := schema[name]
		if !ok {
			return nil, fmt.Errorf("policy for %s: %w", name, ErrUnknownEntity)
		}
		switch entry.Scoping {
		case ScopeDirect:
			if entity.Fields[entry.TenantField] != FieldString {
				return nil, fmt.Errorf("policy for %s: tenant field %q is not a string field", name, entry.TenantField)
			}
		case ScopeAssociative:
			relation, ok := entity.Relations[entry.Relation]
			if !ok {
				return nil, fmt.Errorf("policy for %s: unknown relation %q", name, entry.Relation)
			}
			target, ok := entries[relation.Entity]
			if !ok || target.Scoping != ScopeDirect {
				return nil, fmt.Errorf("policy for %s: relation %q must target a directly scoped entity", name, entry.Relation)
			}
			if entry.Match != AnyRelated && entry.Match != OnlyRelated {
				return nil, fmt.Errorf("policy for %s: unknown associative match %d", name, entry.Match)
			}
			entry.TenantField = target.TenantField
		case ScopeUnscoped:
		default:
			return nil, fmt.Errorf("policy for %s: unknown scoping %v", name, entry.Scoping)
		}
		resolved[name] = entry
	}

	return &Policy{schema: schema, entries: resolved}, nil
}

func (p *Policy) Lookup(entity string) (EntityPolicy, bool) {
	entry, ok := p.entries[entity]
	return entry, ok
}

func (p *Policy) Schema() Schema {
	return p.schema
}
