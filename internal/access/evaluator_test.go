package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var probeModules = []string{
	ModuleDashboard, ModuleReservations, ModuleRooms, ModuleGuests, ModuleBilling,
	ModuleUsers, ModuleBranches, ModuleSettings, ModuleInventoryStock,
	"analytics", "not-a-module", "",
}

func TestNilSubjectIsDenied(t *testing.T) {
	ev := NewEvaluator(nil)
	for _, a := range Actions() {
		assert.False(t, ev.HasPermission(nil, ModuleDashboard, a))
	}
}

func TestSuperAdminAllowsEverything(t *testing.T) {
	ev := NewEvaluator(nil)
	s := &Subject{UserID: 1, Role: RoleSuperAdmin}
	for _, m := range probeModules {
		for _, a := range Actions() {
			assert.Truef(t, ev.HasPermission(s, m, a), "module=%q action=%s", m, a)
		}
	}
}

func TestSuperAdminIgnoresCustomPermissions(t *testing.T) {
	s := &Subject{Role: RoleSuperAdmin, CustomPermissions: map[string]Grant{ModuleUsers: {}}}
	assert.True(t, HasPermission(s, ModuleUsers, ActionDelete))
}

func TestBranchAdminExcludesAdministrationModules(t *testing.T) {
	ev := NewEvaluator(nil)
	s := &Subject{Role: RoleBranchAdmin}
	restricted := map[string]bool{ModuleUsers: true, ModuleBranches: true, ModuleSettings: true}
	for _, m := range probeModules {
		for _, a := range Actions() {
			assert.Equalf(t, !restricted[m], ev.HasPermission(s, m, a), "module=%q action=%s", m, a)
		}
	}
	assert.False(t, ev.CanAccess(s, "  Users "))
}

func TestFrontDeskTable(t *testing.T) {
	ev := NewEvaluator(nil)
	s := &Subject{Role: RoleFrontDesk}

	assert.False(t, ev.HasPermission(s, ModuleRooms, ActionDelete))
	assert.True(t, ev.HasPermission(s, ModuleReservations, ActionDelete))
	assert.False(t, ev.HasPermission(s, "analytics", ActionRead))

	for _, m := range []string{ModuleDashboard, ModuleRooms, ModuleGuests, ModuleBilling} {
		assert.True(t, ev.CanAccess(s, m), m)
		assert.True(t, ev.CanWrite(s, m), m)
		assert.False(t, ev.CanDelete(s, m), m)
	}
	for _, m := range []string{ModuleUsers, ModuleSettings, ModuleInventoryStock, ModuleRoomTypes} {
		for _, a := range Actions() {
			assert.False(t, ev.HasPermission(s, m, a), m)
		}
	}
}

func TestCustomRoleWithoutPermissionsIsDenied(t *testing.T) {
	s := &Subject{Role: RoleCustom}
	for _, m := range probeModules {
		for _, a := range Actions() {
			assert.False(t, HasPermission(s, m, a))
		}
	}
}

func TestCustomRoleConsultsGrantMap(t *testing.T) {
	s := &Subject{Role: RoleCustom, CustomPermissions: map[string]Grant{
		ModuleBilling: {Read: true},
		"Rooms":       {Read: true, Write: true},
	}}
	ev := NewEvaluator(nil)

	assert.True(t, ev.CanAccess(s, ModuleBilling))
	assert.False(t, ev.CanWrite(s, ModuleBilling))
	assert.False(t, ev.CanDelete(s, ModuleBilling))
	assert.True(t, ev.CanWrite(s, ModuleRooms))
	assert.False(t, ev.CanAccess(s, ModuleGuests))
	assert.False(t, ev.HasPermission(s, ModuleBilling, Action("approve")))
}

func TestUnknownRoleIsDenied(t *testing.T) {
	s := &Subject{Role: "manager", CustomPermissions: map[string]Grant{ModuleRooms: grantAll}}
	for _, a := range Actions() {
		assert.False(t, HasPermission(s, ModuleRooms, a))
	}
}

func TestEvaluationReflectsLatestGrants(t *testing.T) {
	s := &Subject{Role: RoleCustom, CustomPermissions: map[string]Grant{ModuleGuests: {Read: true}}}
	ev := NewEvaluator(nil)
	require.True(t, ev.CanAccess(s, ModuleGuests))

	s.CustomPermissions = map[string]Grant{}
	assert.False(t, ev.CanAccess(s, ModuleGuests))

	s.Role = RoleFrontDesk
	assert.True(t, ev.CanAccess(s, ModuleGuests))
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	a := map[string]Grant{ModuleReservations: {Read: true}}
	b := map[string]Grant{ModuleReservations: {Write: true}, ModuleRooms: {Read: true}}

	ab := Aggregate(a, b)
	ba := Aggregate(b, a)
	assert.Equal(t, ab, ba)
	assert.Equal(t, Grant{Read: true, Write: true}, ab[ModuleReservations])
	assert.Equal(t, Grant{Read: true}, ab[ModuleRooms])
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" Write ")
	require.NoError(t, err)
	assert.Equal(t, ActionWrite, a)

	_, err = ParseAction("update")
	assert.Error(t, err)
}

func TestCatalog(t *testing.T) {
	mods := Modules()
	require.NotEmpty(t, mods)
	seen := make(map[string]bool)
	for _, m := range mods {
		assert.False(t, seen[m.ID], "duplicate module %s", m.ID)
		seen[m.ID] = true
		assert.True(t, IsKnownModule(m.ID))
	}
	assert.True(t, IsKnownModule(" Reservations"))
	assert.False(t, IsKnownModule("analytics"))

	mods[0].ID = "mutated"
	assert.Equal(t, ModuleDashboard, Modules()[0].ID)
}

func TestScopeBranch(t *testing.T) {
	seven, nine := int64(7), int64(9)

	admin := &Subject{Role: RoleSuperAdmin, BranchID: &seven}
	assert.Nil(t, admin.ScopeBranch(nil))
	assert.Equal(t, &nine, admin.ScopeBranch(&nine))

	desk := &Subject{Role: RoleFrontDesk, BranchID: &seven}
	require.NotNil(t, desk.ScopeBranch(nil))
	assert.Equal(t, int64(7), *desk.ScopeBranch(nil))
	assert.Equal(t, int64(7), *desk.ScopeBranch(&nine))

	floating := &Subject{Role: RoleCustom}
	assert.Equal(t, &nine, floating.ScopeBranch(&nine))
}
