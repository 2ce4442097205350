package enums

import "slices"

// OutboxAggregateType maps to outbox_events.aggregate_type.
type OutboxAggregateType string

const (
	AggregateLot         OutboxAggregateType = "lot"
	AggregateBundle      OutboxAggregateType = "bundle"
	AggregateSalesOrder  OutboxAggregateType = "sales_order"
	AggregateAcquisition OutboxAggregateType = "acquisition"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateLot,
	AggregateBundle,
	AggregateSalesOrder,
	AggregateAcquisition,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType maps to outbox_events.event_type.
type OutboxEventType string

const (
	EventLotCreated       OutboxEventType = "lot_created"
	EventLotSplit         OutboxEventType = "lot_split"
	EventLotsMerged       OutboxEventType = "lots_merged"
	EventLotStatusChanged OutboxEventType = "lot_status_changed"
	EventLotDeleted       OutboxEventType = "lot_deleted"
	EventSaleRecorded     OutboxEventType = "sale_recorded"
	EventBundleCreated    OutboxEventType = "bundle_created"
	EventBundleUpdated    OutboxEventType = "bundle_updated"
	EventBundleSold       OutboxEventType = "bundle_sold"
	EventBundleDeleted    OutboxEventType = "bundle_deleted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventLotCreated,
	EventLotSplit,
	EventLotsMerged,
	EventLotStatusChanged,
	EventLotDeleted,
	EventSaleRecorded,
	EventBundleCreated,
	EventBundleUpdated,
	EventBundleSold,
	EventBundleDeleted,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(validOutboxEventTypes, value, "event type")
}
