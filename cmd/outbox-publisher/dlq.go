package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
)

type dlqOptions struct {
	cmd     string
	eventID string
	reason  string
	limit   int
}

// dlqRow is one line of -dlq=list output. Payloads are left out; they can be
// large and operators look them up by event id.
type dlqRow struct {
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	Reason        enums.OutboxDLQErrorReason `json:"reason"`
	Error         string                     `json:"error,omitempty"`
	Attempts      int                        `json:"attempts"`
	FailedAt      time.Time                  `json:"failed_at"`
}

// runDLQ lists or requeues dead-lettered events, writing one JSON object
// per line to out.
func runDLQ(ctx context.Context, dbClient *db.Client, dlq *outbox.DLQRepository, opts dlqOptions, out io.Writer) error {
	enc := json.NewEncoder(out)
	switch opts.cmd {
	case "list":
		reason, err := enums.ParseOutboxDLQErrorReason(opts.reason)
		if err != nil {
			return err
		}
		rows, err := dlq.List(ctx, outbox.DLQFilter{Reason: reason, Limit: opts.limit})
		if err != nil {
			return fmt.Errorf("list dlq: %w", err)
		}
		for _, r := range rows {
			row := dlqRow{
				EventID:       r.EventID,
				EventType:     r.EventType,
				AggregateType: r.AggregateType,
				AggregateID:   r.AggregateID,
				Reason:        r.ErrorReason,
				Attempts:      r.AttemptCount,
				FailedAt:      r.FailedAt.UTC(),
			}
			if r.ErrorMessage != nil {
				row.Error = *r.ErrorMessage
			}
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil

	case "requeue":
		eventID, err := uuid.Parse(opts.eventID)
		if err != nil {
			return fmt.Errorf("-event must be a uuid: %w", err)
		}
		err = dbClient.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := dlq.RequeueTx(tx, eventID)
			return err
		})
		if err != nil {
			return err
		}
		return enc.Encode(map[string]any{"event_id": eventID, "requeued": true})
	}
	return errors.New("-dlq must be list or requeue")
}
