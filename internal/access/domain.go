// Package access answers whether an actor may read or write a named module.
// It is a pure capability check: no side effects, consulted before every
// write transition.
package access

// Module is the closed set of access-controlled application modules.
type Module string

const (
	ModuleClients          Module = "clients"
	ModuleSuppliers        Module = "suppliers"
	ModuleProducts         Module = "products"
	ModuleSalesWorkflow    Module = "sales-workflow"
	ModulePurchaseWorkflow Module = "purchase-workflow"
	ModuleAccounting       Module = "accounting"
	ModuleAdministration   Module = "administration"
	ModuleNotifications    Module = "notifications"
)

// Mode distinguishes read from write access.
type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// Permission is the capability a role holds on a module. The zero value
// grants nothing: a missing permission entry means no access.
type Permission struct {
	CanRead  bool
	CanWrite bool
}

// Allows reports whether the permission covers the requested mode.
func (p Permission) Allows(mode Mode) bool {
	switch mode {
	case ModeRead:
		return p.CanRead
	case ModeWrite:
		return p.CanWrite
	}
	return false
}
