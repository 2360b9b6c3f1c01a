package domain

import (
	"encoding/json"
	"time"
)

type QuarantineReason string

const (
	QuarantineEmptyPayload      QuarantineReason = "empty_payload"
	QuarantineMalformedPayload  QuarantineReason = "malformed_payload"
	QuarantineMissingObjectType QuarantineReason = "missing_object_type"
	QuarantineUnknownObjectType QuarantineReason = "unknown_object_type"
	QuarantineInvalidRecord     QuarantineReason = "invalid_record"
)

// QuarantineEntry is an immutable record of a message the consumer could not
// route or persist. Message holds the original payload verbatim.
type QuarantineEntry struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	Reason    QuarantineReason `json:"reason"`
	Detail    string           `json:"detail,omitempty"`
	Topic     string           `json:"topic,omitempty"`
	Partition int              `json:"partition"`
	Offset    int64            `json:"offset"`
	Message   json.RawMessage  `json:"message"`
}
