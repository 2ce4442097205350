package models

// All lists every persisted model, in dependency order, for schema bootstrapping in tests.
func All() []any {
	return []any{
		&Acquisition{},
		&Lot{},
		&LotPurchaseHistory{},
		&LotPhoto{},
		&Listing{},
		&Buyer{},
		&SalesOrder{},
		&SalesItem{},
		&PurchaseAllocation{},
		&Bundle{},
		&BundleItem{},
		&AuditLog{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
