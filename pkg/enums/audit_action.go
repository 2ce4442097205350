package enums

// AuditAction names the mutation recorded in audit_log.
type AuditAction string

const (
	AuditLotCreated           AuditAction = "lot_created"
	AuditLotSplit             AuditAction = "lot_split"
	AuditLotsMerged           AuditAction = "lots_merged"
	AuditLotStatusChanged     AuditAction = "lot_status_changed"
	AuditLotForSaleChanged    AuditAction = "lot_for_sale_changed"
	AuditLotDeleted           AuditAction = "lot_deleted"
	AuditLotPhotoAdded        AuditAction = "lot_photo_added"
	AuditSaleRecorded         AuditAction = "sale_recorded"
	AuditBundleCreated        AuditAction = "bundle_created"
	AuditBundleUpdated        AuditAction = "bundle_updated"
	AuditBundleDeleted        AuditAction = "bundle_deleted"
	AuditBundleItemAdded      AuditAction = "bundle_item_added"
	AuditBundleItemUpdated    AuditAction = "bundle_item_updated"
	AuditBundleItemRemoved    AuditAction = "bundle_item_removed"
	AuditBundleSold           AuditAction = "bundle_sold"
	AuditAcquisitionCreated   AuditAction = "acquisition_created"
	AuditAcquisitionCommitted AuditAction = "acquisition_committed"
)

// AuditEntityType names the row an audit entry refers to.
type AuditEntityType string

const (
	AuditEntityLot         AuditEntityType = "lot"
	AuditEntityBundle      AuditEntityType = "bundle"
	AuditEntitySalesOrder  AuditEntityType = "sales_order"
	AuditEntityAcquisition AuditEntityType = "acquisition"
)
