package access

// Well-known resource and action segments for permission keys. The catalog
// accepts any lowercase dotted triple, so this registry is not a closed
// set; it exists to prevent typos in seeds, admin surfaces, and tests, and
// to give the fallback clearance table a stable verb vocabulary.

// Resource segments (MeStore administrative domains)
const (
	// ResourceUsers covers account records.
	ResourceUsers = "users"

	// ResourceOrders covers marketplace orders.
	ResourceOrders = "orders"

	// ResourceProducts covers vendor product listings.
	ResourceProducts = "products"

	// ResourcePayments covers payment and payout records.
	ResourcePayments = "payments"

	// ResourceVendors covers vendor onboarding and profiles.
	ResourceVendors = "vendors"

	// ResourceReports covers analytics and exports.
	ResourceReports = "reports"

	// ResourceAccess covers the access engine's own administration
	// (catalog bootstrap, cache invalidation, expiry sweep).
	ResourceAccess = "access"
)

// Action segments (read class)
const (
	// ActionRead allows reading a single record.
	ActionRead = "read"

	// ActionList allows listing records.
	ActionList = "list"

	// ActionView allows rendering dashboards and summaries.
	ActionView = "view"
)

// Action segments (write class)
const (
	// ActionCreate allows creating records.
	ActionCreate = "create"

	// ActionUpdate allows modifying records.
	ActionUpdate = "update"
)

// Action segments (sensitive class)
const (
	// ActionDelete allows deleting records.
	ActionDelete = "delete"

	// ActionApprove allows approving pending records (vendor onboarding,
	// refund requests).
	ActionApprove = "approve"

	// ActionExport allows bulk data export.
	ActionExport = "export"

	// ActionRefund allows issuing payment refunds.
	ActionRefund = "refund"
)

// Action segments (administrative class)
const (
	// ActionManage allows full administrative control of a resource.
	ActionManage = "manage"
)

// Well-known permission names used by the engine's own surfaces.
const (
	// PermAccessManage guards the operational admin surface: manual cache
	// invalidation and expiry sweeps.
	PermAccessManage = "access.manage.global"

	// PermCatalogBootstrap guards catalog mutation. SYSTEM scope: direct
	// SYSTEM-tier grants only, never inherited.
	PermCatalogBootstrap = "access.bootstrap.system"
)

// ValidateActionName checks whether an action segment belongs to the
// known verb vocabulary. Catalog definitions using other verbs still
// load; the fallback clearance table treats unknown verbs as sensitive.
func ValidateActionName(action string) bool {
	known := map[string]bool{
		ActionRead:    true,
		ActionList:    true,
		ActionView:    true,
		ActionCreate:  true,
		ActionUpdate:  true,
		ActionDelete:  true,
		ActionApprove: true,
		ActionExport:  true,
		ActionRefund:  true,
		ActionManage:  true,
	}

	return known[action]
}
