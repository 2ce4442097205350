package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	"github.com/GregHandsley/pokeflip-sub002/pkg/metrics"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox/registry"
)

type outcomeKind int

const (
	outcomePublished outcomeKind = iota
	outcomeRetry
	outcomeDeadLetter
	// held events sit behind a failed event with the same ordering key; they
	// stay untouched and keep their attempt count.
	outcomeHeld
)

type outcome struct {
	event  models.OutboxEvent
	kind   outcomeKind
	topic  string
	env    outbox.PayloadEnvelope
	err    error
	reason enums.OutboxDLQErrorReason
}

type orderedGroup struct {
	key    string
	events []models.OutboxEvent
}

// orderingKey groups events of one aggregate, e.g. "lot:<uuid>".
func orderingKey(event models.OutboxEvent) string {
	return string(event.AggregateType) + ":" + event.AggregateID.String()
}

// groupByOrderingKey keeps first-seen group order and creation order within
// each group.
func groupByOrderingKey(events []models.OutboxEvent) []orderedGroup {
	index := map[string]int{}
	var groups []orderedGroup
	for _, e := range events {
		key := orderingKey(e)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, orderedGroup{key: key})
		}
		groups[i].events = append(groups[i].events, e)
	}
	return groups
}

// processBatch claims a batch, publishes each ordering group concurrently and
// records every outcome inside the claiming transaction.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		processed = true

		publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()

		groups := groupByOrderingKey(events)
		results := make([][]outcome, len(groups))
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for i, group := range groups {
			g.Go(func() error {
				results[i] = s.publishGroup(publishCtx, group)
				return nil
			})
		}
		_ = g.Wait()

		for _, group := range results {
			for _, o := range group {
				if err := s.apply(ctx, tx, o); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return processed, err
}

// publishGroup publishes one aggregate's events in order and stops at the
// first retryable failure.
func (s *Service) publishGroup(ctx context.Context, group orderedGroup) []outcome {
	out := make([]outcome, 0, len(group.events))
	for i, event := range group.events {
		resolved, err := s.registry.Resolve(event)
		if err != nil {
			out = append(out, outcome{event: event, kind: outcomeDeadLetter, err: err, reason: enums.OutboxDLQReasonNonRetryable})
			continue
		}
		o := outcome{event: event, topic: resolved.Descriptor.Topic, env: resolved.Envelope}

		pub, err := s.publish(ctx, group.key, event, resolved)
		var nonRetry registry.NonRetryableError
		switch {
		case err == nil:
			o.kind = outcomePublished
			out = append(out, o)
			continue
		case errors.As(err, &nonRetry):
			o.kind, o.err, o.reason = outcomeDeadLetter, err, enums.OutboxDLQReasonNonRetryable
			out = append(out, o)
			continue
		}

		o.kind, o.err = outcomeRetry, err
		out = append(out, o)
		for _, rest := range group.events[i+1:] {
			out = append(out, outcome{event: rest, kind: outcomeHeld})
		}
		if pub != nil {
			pub.ResumePublish(group.key)
		}
		break
	}
	return out
}

func (s *Service) publish(ctx context.Context, key string, event models.OutboxEvent, resolved *registry.ResolvedEvent) (publisher, error) {
	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return nil, registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  messageAttributes(event, resolved.Envelope),
		OrderingKey: key,
	})
	if result == nil {
		return pub, registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return pub, err
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, o outcome) error {
	eventType := string(o.event.EventType)
	logCtx := s.logg.WithFields(ctx, s.eventFields(o))

	switch o.kind {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, o.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", o.event.ID, err)
		}
		s.metrics.Inc(eventType, metrics.PublishOK)
		s.logg.Debug(logCtx, "outbox.event_published")
	case outcomeHeld:
		s.metrics.Inc(eventType, metrics.PublishHeld)
	case outcomeRetry:
		if o.event.AttemptCount+1 >= s.maxAttempts {
			o.kind = outcomeDeadLetter
			o.reason = enums.OutboxDLQReasonMaxAttempts
			o.err = fmt.Errorf("max publish attempts reached: %w", o.err)
			return s.deadLetter(ctx, tx, o)
		}
		if err := s.repo.MarkFailedTx(tx, o.event.ID, o.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", o.event.ID, err)
		}
		s.metrics.Inc(eventType, metrics.PublishRetry)
		s.logg.Warn(s.logg.WithField(logCtx, "error", o.err.Error()), "outbox.publish_retry")
	case outcomeDeadLetter:
		return s.deadLetter(ctx, tx, o)
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, o outcome) error {
	msg := o.err.Error()
	entry := models.OutboxDLQ{
		EventID:       o.event.ID,
		EventType:     o.event.EventType,
		AggregateType: o.event.AggregateType,
		AggregateID:   o.event.AggregateID,
		Payload:       o.event.Payload,
		ErrorReason:   o.reason,
		ErrorMessage:  &msg,
		AttemptCount:  o.event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", o.event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, o.event.ID, o.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", o.event.ID, err)
	}
	s.metrics.Inc(string(o.event.EventType), metrics.PublishDeadLetter)
	logCtx := s.logg.WithFields(ctx, s.eventFields(o))
	s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{"error": msg, "error_reason": o.reason}), "outbox.dead_lettered")
	return nil
}

// messageAttributes lets subscribers filter on lot/bundle/order ids without
// decoding the payload.
func messageAttributes(event models.OutboxEvent, envelope outbox.PayloadEnvelope) map[string]string {
	attrs := map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"schema_version": strconv.Itoa(envelope.Version),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
	if envelope.Actor != "" {
		attrs["actor"] = envelope.Actor
	}
	return attrs
}

func (s *Service) eventFields(o outcome) map[string]any {
	fields := map[string]any{
		"outbox_id":      o.event.ID.String(),
		"event_type":     o.event.EventType,
		"aggregate_type": o.event.AggregateType,
		"aggregate_id":   o.event.AggregateID.String(),
		"attempt_count":  o.event.AttemptCount,
	}
	if o.env.EventID != "" {
		fields["event_id"] = o.env.EventID
	}
	if o.topic != "" {
		fields["topic"] = o.topic
	}
	return fields
}
