package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxStatus tracks an item through the delivery pipeline
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxComplete   OutboxStatus = "complete"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxItem is a queued unit of delivery. Items are retained after
// completion for audit and idempotency checks; a retention policy prunes
// them separately.
type OutboxItem struct {
	Id           uuid.UUID
	ActorId      uuid.UUID
	ActivityType string
	ActivityJSON string
	ObjectIRI    string
	Status       OutboxStatus
	Attempts     int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
