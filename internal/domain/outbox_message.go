package domain

import "time"

type OutboxMessageStatus string

const (
	OutboxStatusPending OutboxMessageStatus = "PENDING"
	OutboxStatusSent    OutboxMessageStatus = "SENT"
)

// OutboxMessage is a dead-letter record waiting to be relayed to Kafka.
type OutboxMessage struct {
	ID        string
	Key       string
	Payload   []byte
	Status    OutboxMessageStatus
	CreatedAt time.Time
	SentAt    *time.Time
}
