package domain

import (
	"encoding/json"
	"time"
)

// Audit holds the columns shared by every persisted business record.
type Audit struct {
	ID        string
	EventID   string
	Metadata  json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

func (a Audit) Deleted() bool {
	return a.DeletedAt != nil
}
