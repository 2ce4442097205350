// Package registry routes outbox rows to Pub/Sub topics and decodes their
// payloads before they leave the database.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/GregHandsley/pokeflip-sub002/pkg/config"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox/payloads"
)

// MaxSchemaVersion is the newest envelope version this publisher understands.
const MaxSchemaVersion = 1

type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will fail the same way on every
// attempt; the publisher dead-letters it instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func reject(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		Topic:          topic,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry sends stock movements (lot and bundle lifecycle) to the
// inventory topic and anything that records revenue to the sales topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	var errs []error
	if cfg.InventoryTopic == "" {
		errs = append(errs, errors.New("inventory topic is required"))
	}
	if cfg.SalesTopic == "" {
		errs = append(errs, errors.New("sales topic is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	inv, sales := cfg.InventoryTopic, cfg.SalesTopic
	routes := []EventDescriptor{
		route[payloads.LotCreatedEvent](enums.EventLotCreated, enums.AggregateLot, inv),
		route[payloads.LotSplitEvent](enums.EventLotSplit, enums.AggregateLot, inv),
		route[payloads.LotsMergedEvent](enums.EventLotsMerged, enums.AggregateLot, inv),
		route[payloads.LotStatusChangedEvent](enums.EventLotStatusChanged, enums.AggregateLot, inv),
		route[payloads.LotDeletedEvent](enums.EventLotDeleted, enums.AggregateLot, inv),
		route[payloads.BundleChangedEvent](enums.EventBundleCreated, enums.AggregateBundle, inv),
		route[payloads.BundleChangedEvent](enums.EventBundleUpdated, enums.AggregateBundle, inv),
		route[payloads.BundleDeletedEvent](enums.EventBundleDeleted, enums.AggregateBundle, inv),
		route[payloads.SaleRecordedEvent](enums.EventSaleRecorded, enums.AggregateSalesOrder, sales),
		route[payloads.BundleSoldEvent](enums.EventBundleSold, enums.AggregateBundle, sales),
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(routes))}
	for _, desc := range routes {
		if _, dup := reg.entries[desc.EventType]; dup {
			return nil, fmt.Errorf("event type %s routed twice", desc.EventType)
		}
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Topics lists the distinct destination topics, sorted.
func (r *EventRegistry) Topics() []string {
	topics := make([]string, 0, 2)
	for _, desc := range r.entries {
		topics = append(topics, desc.Topic)
	}
	slices.Sort(topics)
	return slices.Compact(topics)
}

// Resolve checks the row against its route and decodes the payload. Every
// failure is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, reject("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, reject("aggregate mismatch: %s events belong to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, reject("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, reject("decode envelope: %w", err)
	}
	if envelope.Version < 1 || envelope.Version > MaxSchemaVersion {
		return nil, reject("schema version %d not supported (max %d)", envelope.Version, MaxSchemaVersion)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, reject("payload missing for %s", event.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, reject("decode %s payload: %w", event.EventType, err)
	}
	if v, ok := payload.(payloads.Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, reject("invalid %s payload: %w", event.EventType, err)
		}
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
