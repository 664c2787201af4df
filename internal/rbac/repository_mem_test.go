package rbac

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// memRepo is an in-memory Repository. WithTx works on a copy of the state and
// only publishes it when fn succeeds.
type memRepo struct {
	st    *memState
	fail  map[string]error
	calls *[]string
	txErr error
}

type memState struct {
	roles  map[int64]CustomRole
	perms  map[int64][]RolePermission
	assign map[int64][]Assignment
	users  map[int64]bool
	nextID int64
}

func newMemRepo(users ...int64) *memRepo {
	st := &memState{
		roles:  map[int64]CustomRole{},
		perms:  map[int64][]RolePermission{},
		assign: map[int64][]Assignment{},
		users:  map[int64]bool{},
		nextID: 1,
	}
	for _, u := range users {
		st.users[u] = true
	}
	return &memRepo{st: st, fail: map[string]error{}, calls: new([]string)}
}

func (s *memState) clone() *memState {
	c := &memState{
		roles:  maps.Clone(s.roles),
		perms:  make(map[int64][]RolePermission, len(s.perms)),
		assign: make(map[int64][]Assignment, len(s.assign)),
		users:  maps.Clone(s.users),
		nextID: s.nextID,
	}
	for k, v := range s.perms {
		c.perms[k] = slices.Clone(v)
	}
	for k, v := range s.assign {
		c.assign[k] = slices.Clone(v)
	}
	return c
}

func (m *memRepo) step(name string) error {
	*m.calls = append(*m.calls, name)
	return m.fail[name]
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if m.txErr != nil {
		return m.txErr
	}
	draft := m.st.clone()
	if err := fn(ctx, &memRepo{st: draft, fail: m.fail, calls: m.calls}); err != nil {
		return err
	}
	*m.st = *draft
	return nil
}

func (m *memRepo) CreateRole(_ context.Context, name string, active bool) (CustomRole, error) {
	if err := m.step("CreateRole"); err != nil {
		return CustomRole{}, err
	}
	for _, r := range m.st.roles {
		if r.Name == name {
			return CustomRole{}, ErrDuplicate
		}
	}
	now := time.Now().UTC()
	role := CustomRole{ID: m.st.nextID, Name: name, Active: active, CreatedAt: now, UpdatedAt: now}
	m.st.nextID++
	m.st.roles[role.ID] = role
	return role, nil
}

func (m *memRepo) UpdateRole(_ context.Context, id int64, name string, active *bool) (CustomRole, error) {
	if err := m.step("UpdateRole"); err != nil {
		return CustomRole{}, err
	}
	role, ok := m.st.roles[id]
	if !ok {
		return CustomRole{}, ErrNotFound
	}
	role.Name, role.UpdatedAt = name, time.Now().UTC()
	if active != nil {
		role.Active = *active
	}
	m.st.roles[id] = role
	return role, nil
}

func (m *memRepo) GetRole(_ context.Context, id int64) (CustomRole, error) {
	if err := m.step("GetRole"); err != nil {
		return CustomRole{}, err
	}
	role, ok := m.st.roles[id]
	if !ok {
		return CustomRole{}, ErrNotFound
	}
	return role, nil
}

func (m *memRepo) LockRole(_ context.Context, id int64) (CustomRole, error) {
	if err := m.step("LockRole"); err != nil {
		return CustomRole{}, err
	}
	role, ok := m.st.roles[id]
	if !ok {
		return CustomRole{}, ErrNotFound
	}
	return role, nil
}

func (m *memRepo) ListRoles(context.Context) ([]CustomRole, error) {
	if err := m.step("ListRoles"); err != nil {
		return nil, err
	}
	roles := slices.Collect(maps.Values(m.st.roles))
	slices.SortFunc(roles, func(a, b CustomRole) int { return strings.Compare(a.Name, b.Name) })
	return roles, nil
}

func (m *memRepo) DeleteRole(_ context.Context, id int64) (bool, error) {
	if err := m.step("DeleteRole"); err != nil {
		return false, err
	}
	_, ok := m.st.roles[id]
	delete(m.st.roles, id)
	return ok, nil
}

func (m *memRepo) ListRolePermissions(_ context.Context, roleID int64) ([]RolePermission, error) {
	if err := m.step("ListRolePermissions"); err != nil {
		return nil, err
	}
	return slices.Clone(m.st.perms[roleID]), nil
}

func (m *memRepo) DeleteRolePermissions(_ context.Context, roleID int64) error {
	if err := m.step("DeleteRolePermissions"); err != nil {
		return err
	}
	delete(m.st.perms, roleID)
	return nil
}

func (m *memRepo) InsertRolePermissions(_ context.Context, perms []RolePermission) error {
	if err := m.step("InsertRolePermissions"); err != nil {
		return err
	}
	for _, p := range perms {
		for _, existing := range m.st.perms[p.RoleID] {
			if existing.Module == p.Module {
				return &pgconn.PgError{Code: "23505", ConstraintName: "role_permissions_role_id_module_key"}
			}
		}
		m.st.perms[p.RoleID] = append(m.st.perms[p.RoleID], p)
	}
	return nil
}

func (m *memRepo) LockUser(_ context.Context, userID int64) (bool, error) {
	if err := m.step("LockUser"); err != nil {
		return false, err
	}
	return m.st.users[userID], nil
}

func (m *memRepo) ListUserAssignments(_ context.Context, userID int64) ([]Assignment, error) {
	if err := m.step("ListUserAssignments"); err != nil {
		return nil, err
	}
	out := slices.Clone(m.st.assign[userID])
	for i := range out {
		role := m.st.roles[out[i].RoleID]
		out[i].RoleName, out[i].RoleActive = role.Name, role.Active
	}
	return out, nil
}

func (m *memRepo) DeleteUserAssignments(_ context.Context, userID int64) error {
	if err := m.step("DeleteUserAssignments"); err != nil {
		return err
	}
	delete(m.st.assign, userID)
	return nil
}

func (m *memRepo) InsertUserAssignments(_ context.Context, userID int64, roleIDs []int64) error {
	if err := m.step("InsertUserAssignments"); err != nil {
		return err
	}
	for _, id := range roleIDs {
		if _, ok := m.st.roles[id]; !ok {
			return ErrNotFound
		}
		m.st.assign[userID] = append(m.st.assign[userID], Assignment{UserID: userID, RoleID: id, AssignedAt: time.Now().UTC()})
	}
	return nil
}

func (m *memRepo) DeleteRoleAssignments(_ context.Context, roleID int64) error {
	if err := m.step("DeleteRoleAssignments"); err != nil {
		return err
	}
	for user, list := range m.st.assign {
		m.st.assign[user] = slices.DeleteFunc(list, func(a Assignment) bool { return a.RoleID == roleID })
	}
	return nil
}

func (m *memRepo) ActiveUserPermissions(_ context.Context, userID int64) ([]RolePermission, error) {
	if err := m.step("ActiveUserPermissions"); err != nil {
		return nil, err
	}
	var out []RolePermission
	for _, a := range m.st.assign[userID] {
		if role, ok := m.st.roles[a.RoleID]; ok && role.Active {
			out = append(out, m.st.perms[a.RoleID]...)
		}
	}
	return out, nil
}

func (m *memRepo) roleIDs(userID int64) []int64 {
	var ids []int64
	for _, a := range m.st.assign[userID] {
		ids = append(ids, a.RoleID)
	}
	return ids
}

var _ Repository = (*memRepo)(nil)
