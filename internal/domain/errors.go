package domain

import "errors"

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrDuplicateEventID  = errors.New("record with this event_id already exists")
	ErrInvalidField      = errors.New("invalid field value")
	ErrMissingEventID    = errors.New("event_id is required")
	ErrUnknownObjectType = errors.New("unknown object type")
)
