package outbox

import (
	"encoding/json"
	"time"
)

// PayloadEnvelope is what outbox_events.payload holds and what subscribers
// receive as the message body. Version covers the shape of Data; EventID
// equals the outbox row id and is the consumer's dedupe key.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      string          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
