package enums

// OutboxDLQErrorReason explains why an event was moved to outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}

// ParseOutboxDLQErrorReason also accepts the empty string, meaning any reason.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	if value == "" {
		return "", nil
	}
	return parse([]OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}, value, "dlq error reason")
}
