package access

import (
	"strings"

	"golang.org/x/text/cases"
)

// Module identifiers gated by the permission system. A feature module that is
// not listed here cannot be granted to a custom role.
const (
	ModuleDashboard            = "dashboard"
	ModuleReservations         = "reservations"
	ModuleRooms                = "rooms"
	ModuleGuests               = "guests"
	ModuleBilling              = "billing"
	ModuleRoomTypes            = "room-types"
	ModuleRestaurantTables     = "restaurant-tables"
	ModuleRestaurantMenu       = "restaurant-menu"
	ModuleRestaurantOrders     = "restaurant-orders"
	ModuleInventoryItems       = "inventory-items"
	ModuleInventoryStock       = "inventory-stock"
	ModuleInventoryConsumption = "inventory-consumption"
	ModuleBranches             = "branches"
	ModuleUsers                = "users"
	ModuleTaxManagement        = "tax-management"
	ModuleSettings             = "settings"
	ModuleProfile              = "profile"
	ModuleNotifications        = "notifications"
)

// Module describes a catalog entry.
type Module struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var catalog = []Module{
	{ID: ModuleDashboard, Name: "Dashboard", Description: "Occupancy and revenue overview"},
	{ID: ModuleReservations, Name: "Reservations", Description: "Create, modify and cancel bookings"},
	{ID: ModuleRooms, Name: "Rooms", Description: "Room inventory and housekeeping status"},
	{ID: ModuleGuests, Name: "Guests", Description: "Guest profiles and stay history"},
	{ID: ModuleBilling, Name: "Billing", Description: "Folios, invoices and payments"},
	{ID: ModuleRoomTypes, Name: "Room Types", Description: "Room categories and base rates"},
	{ID: ModuleRestaurantTables, Name: "Restaurant Tables", Description: "Table layout and status"},
	{ID: ModuleRestaurantMenu, Name: "Restaurant Menu", Description: "Menu items and categories"},
	{ID: ModuleRestaurantOrders, Name: "Restaurant Orders", Description: "Dine-in and room-service orders"},
	{ID: ModuleInventoryItems, Name: "Inventory Items", Description: "Stock item master data"},
	{ID: ModuleInventoryStock, Name: "Inventory Stock", Description: "Stock levels and movements"},
	{ID: ModuleInventoryConsumption, Name: "Inventory Consumption", Description: "Consumption deductions from orders"},
	{ID: ModuleBranches, Name: "Branches", Description: "Property branches"},
	{ID: ModuleUsers, Name: "Users", Description: "Staff accounts, roles and permissions"},
	{ID: ModuleTaxManagement, Name: "Tax Management", Description: "Tax rates applied to billing"},
	{ID: ModuleSettings, Name: "Settings", Description: "System-wide configuration"},
	{ID: ModuleProfile, Name: "Profile", Description: "Own account details"},
	{ID: ModuleNotifications, Name: "Notifications", Description: "Push notification preferences"},
}

var catalogIndex = func() map[string]struct{} {
	idx := make(map[string]struct{}, len(catalog))
	for _, m := range catalog {
		idx[m.ID] = struct{}{}
	}
	return idx
}()

// Modules returns a copy of the module catalog.
func Modules() []Module {
	out := make([]Module, len(catalog))
	copy(out, catalog)
	return out
}

// IsKnownModule reports whether id is part of the catalog.
func IsKnownModule(id string) bool {
	_, ok := catalogIndex[NormalizeModule(id)]
	return ok
}

// NormalizeModule trims and case-folds a module identifier.
func NormalizeModule(id string) string {
	return cases.Fold().String(strings.TrimSpace(id))
}
