package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/dbtest"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
)

func deadLetter(t *testing.T, db *gorm.DB, reason enums.OutboxDLQErrorReason) uuid.UUID {
	t.Helper()
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventSaleRecorded,
		AggregateType: enums.AggregateSalesOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  10,
	}
	require.NoError(t, outbox.NewRepository(db).Insert(db, event))
	msg := "publish: deadline exceeded"
	require.NoError(t, outbox.NewDLQRepository(db).InsertTx(db, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
	}))
	return event.ID
}

func decodeLines(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var rows []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var row map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &row))
		rows = append(rows, row)
	}
	return rows
}

func TestDLQListFiltersByReason(t *testing.T) {
	client := dbtest.Open(t)
	dlq := outbox.NewDLQRepository(client.DB())
	exhausted := deadLetter(t, client.DB(), enums.OutboxDLQReasonMaxAttempts)
	deadLetter(t, client.DB(), enums.OutboxDLQReasonNonRetryable)

	var out bytes.Buffer
	require.NoError(t, runDLQ(context.Background(), client, dlq, dlqOptions{cmd: "list"}, &out))
	assert.Len(t, decodeLines(t, &out), 2)

	out.Reset()
	require.NoError(t, runDLQ(context.Background(), client, dlq, dlqOptions{cmd: "list", reason: "max_attempts"}, &out))
	rows := decodeLines(t, &out)
	require.Len(t, rows, 1)
	assert.Equal(t, exhausted.String(), rows[0]["event_id"])
	assert.Equal(t, "publish: deadline exceeded", rows[0]["error"])
	assert.NotContains(t, rows[0], "payload")

	err := runDLQ(context.Background(), client, dlq, dlqOptions{cmd: "list", reason: "bogus"}, &out)
	assert.Error(t, err)
}

func TestDLQRequeueHandsEventBackToPublisher(t *testing.T) {
	client := dbtest.Open(t)
	db := client.DB()
	dlq := outbox.NewDLQRepository(db)
	eventID := deadLetter(t, db, enums.OutboxDLQReasonMaxAttempts)

	var out bytes.Buffer
	require.NoError(t, runDLQ(context.Background(), client, dlq, dlqOptions{cmd: "requeue", eventID: eventID.String()}, &out))
	assert.Contains(t, out.String(), `"requeued":true`)

	rows, err := outbox.NewRepository(db).FetchUnpublishedForPublish(db, 10, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, eventID, rows[0].ID)

	err = runDLQ(context.Background(), client, dlq, dlqOptions{cmd: "requeue", eventID: eventID.String()}, &out)
	assert.ErrorIs(t, err, outbox.ErrDLQEntryNotFound)
}

func TestDLQRejectsBadInput(t *testing.T) {
	client := dbtest.Open(t)
	dlq := outbox.NewDLQRepository(client.DB())
	var out bytes.Buffer

	assert.Error(t, runDLQ(context.Background(), client, dlq, dlqOptions{cmd: "requeue", eventID: "nope"}, &out))
	assert.Error(t, runDLQ(context.Background(), client, dlq, dlqOptions{cmd: "purge"}, &out))
}
