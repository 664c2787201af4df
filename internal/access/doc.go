// Package access decides whether a subject may read, write or delete within a
// module. Built-in roles and custom roles are both reduced to a PermissionMap
// and answered by the same lookup, so there is a single authorization path.
//
// Every decision fails closed: a nil subject, an unknown role, a module absent
// from the map or an unrecognised action all resolve to false.
package access
