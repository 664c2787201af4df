package syncclient

import "github.com/innkeeper-pms/innkeeper/internal/realtime"

// InvalidationTable maps a change category to the query keys it makes stale.
// A category missing from the table invalidates the whole cache.
type InvalidationTable map[realtime.Category][]string

// Keys returns the keys for category and whether the category is known.
func (t InvalidationTable) Keys(category realtime.Category) ([]string, bool) {
	keys, ok := t[category]
	return keys, ok
}

// DefaultTable returns the category mapping used by the web client.
func DefaultTable() InvalidationTable {
	return InvalidationTable{
		realtime.CategoryReservations: {
			"/api/reservations",
			"/api/rooms",
			"/api/dashboard/metrics",
			"/api/dashboard/today-reservations",
		},
		realtime.CategoryRooms: {
			"/api/rooms",
			"/api/room-types",
			"/api/dashboard/metrics",
		},
		realtime.CategoryGuests: {
			"/api/guests",
			"/api/reservations",
		},
		realtime.CategoryAnalyticsGroups: {
			"/api/analytics/groups",
			"/api/dashboard/metrics",
		},
		realtime.CategoryPermissions: {
			"/api/auth/user",
			"/api/roles",
			"/api/users",
		},
	}
}

// DefaultPollKeys are invalidated on start and on every poll tick.
func DefaultPollKeys() []string {
	return []string{
		"/api/dashboard/metrics",
		"/api/dashboard/today-reservations",
		"/api/reservations",
		"/api/rooms",
		"/api/guests",
		"/api/notifications",
	}
}
