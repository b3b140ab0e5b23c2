package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllowed(t *testing.T) {
	require.True(t, Allowed(RoleAdmin, RoleAdmin))
	require.True(t, Allowed(RoleSales, RoleAdmin, RoleSales))
	require.False(t, Allowed(RoleWarehouse, RoleAdmin, RoleSales))
	require.False(t, Allowed("", RoleAdmin))
}

func TestAllowedNormalizesRole(t *testing.T) {
	require.True(t, Allowed(" Admin ", RoleAdmin))
	require.True(t, Allowed("SALES", RoleSales))
	require.False(t, Allowed("admins", RoleAdmin))
}

func TestAllowedEmptyRequirementAdmitsEveryone(t *testing.T) {
	require.True(t, Allowed(RoleWarehouse))
	require.True(t, Allowed("anything"))
}
