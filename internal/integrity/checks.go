package integrity

// Severity decides how a non-empty check affects the report.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// check is one query returning the ids of offending rows.
type check struct {
	name     string
	entity   string
	severity Severity
	message  string
	query    string
}

const soldByLot = `SELECT lot_id, SUM(qty) AS sold FROM sales_items GROUP BY lot_id`

const reservedByLot = `SELECT bi.lot_id, SUM(b.quantity * bi.quantity) AS reserved
	FROM bundle_items bi
	JOIN bundles b ON b.id = bi.bundle_id
	WHERE b.status = 'active'
	GROUP BY bi.lot_id`

var orphanChecks = []check{
	{
		name:     "sales_item_lot",
		entity:   "sales_item",
		severity: SeverityError,
		message:  "sales item references a missing lot",
		query:    `SELECT si.id FROM sales_items si LEFT JOIN lots l ON l.id = si.lot_id WHERE l.id IS NULL`,
	},
	{
		name:     "bundle_item_bundle",
		entity:   "bundle_item",
		severity: SeverityError,
		message:  "bundle item references a missing bundle",
		query:    `SELECT bi.id FROM bundle_items bi LEFT JOIN bundles b ON b.id = bi.bundle_id WHERE b.id IS NULL`,
	},
	{
		name:     "bundle_item_lot",
		entity:   "bundle_item",
		severity: SeverityError,
		message:  "bundle item references a missing lot",
		query:    `SELECT bi.id FROM bundle_items bi LEFT JOIN lots l ON l.id = bi.lot_id WHERE l.id IS NULL`,
	},
	{
		name:     "allocation_sales_item",
		entity:   "purchase_allocation",
		severity: SeverityError,
		message:  "purchase allocation references a missing sales item",
		query:    `SELECT pa.id FROM purchase_allocations pa LEFT JOIN sales_items si ON si.id = pa.sales_item_id WHERE si.id IS NULL`,
	},
	{
		name:     "allocation_acquisition",
		entity:   "purchase_allocation",
		severity: SeverityError,
		message:  "purchase allocation references a missing acquisition",
		query:    `SELECT pa.id FROM purchase_allocations pa LEFT JOIN acquisitions a ON a.id = pa.acquisition_id WHERE a.id IS NULL`,
	},
	{
		name:     "history_lot",
		entity:   "lot_purchase_history",
		severity: SeverityWarning,
		message:  "purchase history references a missing lot",
		query:    `SELECT h.id FROM lot_purchase_history h LEFT JOIN lots l ON l.id = h.lot_id WHERE l.id IS NULL`,
	},
	{
		name:     "photo_lot",
		entity:   "lot_photo",
		severity: SeverityWarning,
		message:  "photo references a missing lot",
		query:    `SELECT p.id FROM lot_photos p LEFT JOIN lots l ON l.id = p.lot_id WHERE l.id IS NULL`,
	},
	{
		name:     "listing_lot",
		entity:   "listing",
		severity: SeverityWarning,
		message:  "listing references a missing lot",
		query:    `SELECT li.id FROM listings li LEFT JOIN lots l ON l.id = li.lot_id WHERE l.id IS NULL`,
	},
}

var quantityChecks = []check{
	{
		name:     "sold_exceeds_quantity",
		entity:   "lot",
		severity: SeverityError,
		message:  "sold quantity exceeds lot quantity",
		query:    `SELECT l.id FROM lots l JOIN (` + soldByLot + `) s ON s.lot_id = l.id WHERE s.sold > l.quantity`,
	},
	{
		name:     "negative_availability",
		entity:   "lot",
		severity: SeverityError,
		message:  "sales and active bundle reservations exceed lot quantity",
		query: `SELECT l.id FROM lots l
			LEFT JOIN (` + soldByLot + `) s ON s.lot_id = l.id
			LEFT JOIN (` + reservedByLot + `) r ON r.lot_id = l.id
			WHERE l.quantity - COALESCE(s.sold, 0) - COALESCE(r.reserved, 0) < 0`,
	},
	{
		name:     "history_quantity_mismatch",
		entity:   "lot",
		severity: SeverityWarning,
		message:  "purchase history does not sum to lot quantity",
		query: `SELECT l.id FROM lots l
			JOIN (SELECT lot_id, SUM(quantity) AS total FROM lot_purchase_history GROUP BY lot_id) h ON h.lot_id = l.id
			WHERE h.total <> l.quantity`,
	},
	{
		name:     "sold_out_not_marked",
		entity:   "lot",
		severity: SeverityWarning,
		message:  "lot is sold out but not marked sold",
		query: `SELECT l.id FROM lots l JOIN (` + soldByLot + `) s ON s.lot_id = l.id
			WHERE l.quantity > 0 AND s.sold >= l.quantity AND l.status <> 'sold'`,
	},
	{
		name:     "bundle_item_exceeds_lot",
		entity:   "bundle_item",
		severity: SeverityWarning,
		message:  "bundle item needs more cards than its lot holds",
		query:    `SELECT bi.id FROM bundle_items bi JOIN lots l ON l.id = bi.lot_id WHERE bi.quantity > l.quantity`,
	},
}
