package tenantscope

import (
	"errors"
	"fmt"
	"strings"
)

// TenantID identifies a single hotel/property. The empty TenantID means no tenant.
type TenantID string

// Role is the closed set of caller roles. Roles are parsed once at the
// authentication boundary with [ParseRole]; nothing downstream compares role strings.
type Role int

const (
	RoleStaff Role = iota + 1
	RoleManager
	RoleAdmin
)

var ErrInvalidRole = errors.New("invalid role")

var roleNames = map[Role]string{
	RoleStaff:   "STAFF",
	RoleManager: "MANAGER",
	RoleAdmin:   "ADMIN",
}

// ParseRole maps the role claim of an authenticated caller onto a [Role].
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseRole(s string) (Role, error) {
	canonical := strings.ToUpper(strings.TrimSpace(s))
	for role, name := range roleNames {
		if name == canonical {
			return role, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Elevated reports whether the role may act across tenants. Elevated callers
// have to select a tenant explicitly for every tenant-scoped operation.
func (r Role) Elevated() bool {
	return r == RoleAdmin
}

// Identity is the verified caller of a single request.
type Identity struct {
	Role       Role
	HomeTenant TenantID
}

// ResolveTenant determines the one tenant a request may operate on.
//
// Elevated callers get exactly their selection and are never defaulted to a
// home tenant. Everybody else is pinned to their home tenant and the selection
// is ignored, so a forged selection cannot redirect them. If no tenant remains
// a [*TenancyError] is returned.
func ResolveTenant(identity Identity, selection TenantID) (TenantID, error) {
	if !identity.Role.Valid() {
		return "", &TenancyError{Role: identity.Role, Reason: "invalid role"}
	}

	var target TenantID
	if identity.Role.Elevated() {
		target = selection
	} else {
		target = identity.HomeTenant
	}

	if strings.TrimSpace(string(target)) == "" {
		return "", &TenancyError{Role: identity.Role, Reason: "no tenant context"}
	}
	return target, nil
}
