package tenantscope

import (
	"errors"
)

var (
	// ErrNoTenantContext matches every [*TenancyError] via errors.Is.
	ErrNoTenantContext = errors.New("no tenant context")
	// ErrUnlistedEntity is returned when a request names an entity the policy
	// table does not list and [AllowUnlisted] was not given.
	ErrUnlistedEntity = errors.New("entity not listed in tenant policy")
	ErrUnknownOp      = errors.New("unknown operation")

	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrUnknownEntity  = errors.New("unknown entity")
	ErrUnknownField   = errors.New("unknown field")
	ErrInvalidValue   = errors.New("invalid value")
	ErrInvalidRequest = errors.New("invalid request")
)

// TenancyError reports that no tenant could be resolved for a caller. It is
// only ever returned while constructing a [RestrictedClient].
type TenancyError struct {
	Role   Role
	Reason string
}

func (e *TenancyError) Error() string {
	return "tenancy: " + e.Reason + " (role " + e.Role.String() + ")"
}

func (e *TenancyError) Is(target error) bool {
	return target == ErrNoTenantContext
}
