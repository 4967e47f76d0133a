package tenantscope_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trevex/tenantscope"
)

func TestParseRole(t *testing.T) {
	for input, expected := range map[string]tenantscope.Role{
		"STAFF":     tenantscope.RoleStaff,
		"staff":     tenantscope.RoleStaff,
		" Manager ": tenantscope.RoleManager,
		"admin":     tenantscope.RoleAdmin,
	} {
		role, err := tenantscope.ParseRole(input)
		require.NoError(t, err, input)
		require.Equal(t, expected, role, input)
	}

	for _, input := range []string{"", "root", "ADMINISTRATOR", "guest"} {
		_, err := tenantscope.ParseRole(input)
		require.ErrorIs(t, err, tenantscope.ErrInvalidRole, input)
	}

	require.True(t, tenantscope.RoleAdmin.Elevated())
	require.False(t, tenantscope.RoleManager.Elevated())
	require.False(t, tenantscope.RoleStaff.Elevated())
	require.Equal(t, "MANAGER", tenantscope.RoleManager.String())
}

func TestResolveTenant(t *testing.T) {
	// Non-elevated callers always get their home tenant.
	for _, role := range []tenantscope.Role{tenantscope.RoleStaff, tenantscope.RoleManager} {
		for _, selection := range []tenantscope.TenantID{"", "hotel-a", "hotel-b", " "} {
			tenant, err := tenantscope.ResolveTenant(tenantscope.Identity{Role: role, HomeTenant: "hotel-a"}, selection)
			require.NoError(t, err)
			require.Equal(t, tenantscope.TenantID("hotel-a"), tenant)
		}
	}

	tenant, err := tenantscope.ResolveTenant(tenantscope.Identity{Role: tenantscope.RoleAdmin}, "hotel-b")
	require.NoError(t, err)
	require.Equal(t, tenantscope.TenantID("hotel-b"), tenant)

	tenant, err = tenantscope.ResolveTenant(tenantscope.Identity{Role: tenantscope.RoleAdmin, HomeTenant: "hotel-a"}, "hotel-b")
	require.NoError(t, err)
	require.Equal(t, tenantscope.TenantID("hotel-b"), tenant)
}

func TestResolveTenantFailsClosed(t *testing.T) {
	for name, tc := range map[string]struct {
		identity  tenantscope.Identity
		selection tenantscope.TenantID
	}{
		"admin_without_selection":   {tenantscope.Identity{Role: tenantscope.RoleAdmin}, ""},
		"admin_not_defaulted":       {tenantscope.Identity{Role: tenantscope.RoleAdmin, HomeTenant: "hotel-a"}, ""},
		"admin_blank_selection":     {tenantscope.Identity{Role: tenantscope.RoleAdmin}, "  "},
		"staff_without_home":        {tenantscope.Identity{Role: tenantscope.RoleStaff}, "hotel-b"},
		"manager_without_home":      {tenantscope.Identity{Role: tenantscope.RoleManager}, ""},
		"invalid_role":              {tenantscope.Identity{HomeTenant: "hotel-a"}, "hotel-a"},
		"invalid_role_out_of_range": {tenantscope.Identity{Role: 42, HomeTenant: "hotel-a"}, "hotel-a"},
	} {
		t.Run(name, func(t *testing.T) {
			tenant, err := tenantscope.ResolveTenant(tc.identity, tc.selection)
			require.ErrorIs(t, err, tenantscope.ErrNoTenantContext)
			require.Empty(t, tenant)

			var tenancyErr *tenantscope.TenancyError
			require.True(t, errors.As(err, &tenancyErr))
			require.Equal(t, tc.identity.Role, tenancyErr.Role)

			client, err := tenantscope.NewRestrictedClient(newRecorder(), testPolicy(t), tc.identity, tc.selection)
			require.ErrorIs(t, err, tenantscope.ErrNoTenantContext)
			require.Nil(t, client)
		})
	}
}
