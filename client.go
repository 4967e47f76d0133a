package tenantscope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

type Option interface {
	apply(*options)
}

type options struct {
	log           *slog.Logger
	allowUnlisted bool
}

type optionAdapter func(*options)

func (fn optionAdapter) apply(o *options) {
	fn(o)
}

// WithLogger logs every scoped request at debug level.
func WithLogger(log *slog.Logger) Option {
	return optionAdapter(func(o *options) { o.log = log })
}

// AllowUnlisted forwards requests for entities missing from the policy
// unchanged instead of failing with [ErrUnlistedEntity].
func AllowUnlisted() Option {
	return optionAdapter(func(o *options) { o.allowUnlisted = true })
}

// A RestrictedClient is bound to exactly one tenant and rewrites every request
// so that it cannot observe or modify records of another tenant.
//
// Clients are meant to be created per request and dropped afterwards; never
// share one between callers.
type RestrictedClient struct {
	storage Storage
	policy  *Policy
	tenant  TenantID
	opts    options
}

// NewRestrictedClient resolves the tenant for identity and selection (see
// [ResolveTenant]) and binds a client to it. If no tenant can be resolved a
// [*TenancyError] is returned and no client exists.
func NewRestrictedClient(storage Storage, policy *Policy, identity Identity, selection TenantID, opts ...Option) (*RestrictedClient, error) {
	tenant, err := ResolveTenant(identity, selection)
	if err != nil {
		return nil, err
	}
	return Bind(storage, policy, tenant, opts...)
}

// Bind returns a client restricted to tenant.
func Bind(storage Storage, policy *Policy, tenant TenantID, opts ...Option) (*RestrictedClient, error) {
	if tenant == "" {
		return nil, &TenancyError{Reason: "no tenant context"}
	}
	if storage == nil || policy == nil {
		return nil, errors.New("restricted client needs a storage and a policy")
	}
	o := options{}
	lo.ForEach(opts, func(opt Option, _ int) { opt.apply(&o) })
	return &RestrictedClient{storage, policy, tenant, o}, nil
}

func (c *RestrictedClient) Tenant() TenantID {
	return c.tenant
}

// Execute scopes req to the bound tenant and forwards it to the storage.
// Errors of the storage are returned as they are.
func (c *RestrictedClient) Execute(ctx context.Context, req Request) (Result, error) {
	scoped, err := c.Scope(req)
	if err != nil {
		return Result{}, err
	}
	if c.opts.log != nil {
		c.opts.log.Debug("scoped request",
			slog.String("entity", scoped.Entity),
			slog.String("op", scoped.Op.String()),
			slog.String("tenant", string(c.tenant)),
		)
	}
	return c.storage.Execute(ctx, scoped)
}

// Scope returns the request Execute would forward. The caller's filter and
// payload are never modified; rewritten parts are copies.
func (c *RestrictedClient) Scope(req Request) (Request, error) {
	if !req.Op.Valid() {
		return Request{}, fmt.Errorf("%w: %v", ErrUnknownOp, req.Op)
	}
	entry, ok := c.policy.Lookup(req.Entity)
	if !ok {
		if c.opts.allowUnlisted {
			return req, nil
		}
		return Request{}, fmt.Errorf("%w: %s", ErrUnlistedEntity, req.Entity)
	}

	switch entry.Scoping {
	case ScopeUnscoped:
		return req, nil
	case ScopeDirect:
		return c.scopeDirect(req, entry), nil
	case ScopeAssociative:
		return c.scopeAssociative(req, entry), nil
	default:
		panic("unreachable")
	}
}

func (c *RestrictedClient) scopeDirect(req Request, entry EntityPolicy) Request {
	switch req.Op {
	case OpReadOne, OpReadMany, OpCount, OpDeleteOne, OpDeleteMany:
		req.Where = c.pin(req.Where, entry.TenantField)
	case OpUpdateOne, OpUpdateMany:
		req.Where = c.pin(req.Where, entry.TenantField)
		// An update must not move records into another tenant either. Ids
		// are immutable, so entities scoped by their own id need no stamp.
		if entry.TenantField != IDField {
			req.Data = c.stamp(req.Data, entry.TenantField)
		}
	case OpCreateOne, OpCreateMany:
		req.Data = c.stamp(req.Data, entry.TenantField)
	default:
		panic("unreachable")
	}
	return req
}

func (c *RestrictedClient) scopeAssociative(req Request, entry EntityPolicy) Request {
	switch req.Op {
	case OpReadOne, OpReadMany, OpCount, OpUpdateOne, OpUpdateMany, OpDeleteOne, OpDeleteMany:
		req.Where = AllOf(append([]Filter{req.Where}, c.related(entry)...)...)
	case OpCreateOne, OpCreateMany:
		// The relation created alongside carries the tenant.
	default:
		panic("unreachable")
	}
	return req
}

// pin overwrites whatever the caller put under field. If field is the
// primary key the caller's condition is kept and joined with the tenant, so a
// foreign id matches nothing instead of the tenant's own record.
func (c *RestrictedClient) pin(where Filter, field string) Filter {
	if field == IDField {
		return AllOf(where, Filter{field: string(c.tenant)})
	}
	pinned := where.Clone()
	pinned[field] = string(c.tenant)
	return pinned
}

func (c *RestrictedClient) stamp(data []Record, field string) []Record {
	return lo.Map(data, func(r Record, _ int) Record {
		stamped := r.Clone()
		stamped[field] = string(c.tenant)
		return stamped
	})
}

func (c *RestrictedClient) related(entry EntityPolicy) []Filter {
	tenant := string(c.tenant)
	switch entry.Match {
	case AnyRelated:
		return []Filter{
			{entry.Relation: Some(Filter{entry.TenantField: tenant})},
		}
	case OnlyRelated:
		return []Filter{
			{entry.Relation: Some(Filter{entry.TenantField: tenant})},
			{entry.Relation: None(Filter{entry.TenantField: Ne(tenant)})},
		}
	default:
		panic("unreachable")
	}
}

func (c *RestrictedClient) FindOne(ctx context.Context, entity string, where Filter) (Record, error) {
	res, err := c.Execute(ctx, Request{Op: OpReadOne, Entity: entity, Where: where})
	if err != nil {
		return nil, err
	}
	return first(res), nil
}

func (c *RestrictedClient) FindMany(ctx context.Context, entity string, where Filter, page Page) ([]Record, error) {
	res, err := c.Execute(ctx, Request{Op: OpReadMany, Entity: entity, Where: where, Page: page})
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (c *RestrictedClient) Count(ctx context.Context, entity string, where Filter) (int, error) {
	res, err := c.Execute(ctx, Request{Op: OpCount, Entity: entity, Where: where})
	return res.Count, err
}

func (c *RestrictedClient) UpdateOne(ctx context.Context, entity string, where Filter, data Record) (Record, error) {
	res, err := c.Execute(ctx, Request{Op: OpUpdateOne, Entity: entity, Where: where, Data: []Record{data}})
	if err != nil {
		return nil, err
	}
	return first(res), nil
}

func (c *RestrictedClient) UpdateMany(ctx context.Context, entity string, where Filter, data Record) (int, error) {
	res, err := c.Execute(ctx, Request{Op: OpUpdateMany, Entity: entity, Where: where, Data: []Record{data}})
	return res.Count, err
}

func (c *RestrictedClient) DeleteOne(ctx context.Context, entity string, where Filter) (Record, error) {
	res, err := c.Execute(ctx, Request{Op: OpDeleteOne, Entity: entity, Where: where})
	if err != nil {
		return nil, err
	}
	return first(res), nil
}

func (c *RestrictedClient) DeleteMany(ctx context.Context, entity string, where Filter) (int, error) {
	res, err := c.Execute(ctx, Request{Op: OpDeleteMany, Entity: entity, Where: where})
	return res.Count, err
}

func (c *RestrictedClient) CreateOne(ctx context.Context, entity string, data Record) (Record, error) {
	res, err := c.Execute(ctx, Request{Op: OpCreateOne, Entity: entity, Data: []Record{data}})
	if err != nil {
		return nil, err
	}
	return first(res), nil
}

func (c *RestrictedClient) CreateMany(ctx context.Context, entity string, data []Record) (int, error) {
	res, err := c.Execute(ctx, Request{Op: OpCreateMany, Entity: entity, Data: data})
	return res.Count, err
}

func first(res Result) Record {
	if len(res.Records) == 0 {
		return nil
	}
	return res.Records[0]
}
