package util

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// eventNamespace scopes derived event ids so they never collide with ids
// minted by producers using plain UUIDv5 over the same bytes.
var eventNamespace = uuid.MustParse("6f1c8a52-3f0e-4b8e-9a57-0d1e2c6b7a90")

func GenerateUUID() string {
	return uuid.New().String()
}

// DeriveEventID returns a stable event id for a payload whose producer did not
// supply one. The same object type and canonical payload always yield the same
// id, so redeliveries of a legacy message upsert the same record.
func DeriveEventID(objectType string, canonicalPayload []byte) string {
	name := make([]byte, 0, len(objectType)+1+len(canonicalPayload))
	name = append(name, objectType...)
	name = append(name, 0)
	name = append(name, canonicalPayload...)
	return uuid.NewSHA1(eventNamespace, name).String()
}

// GenerateULID returns a time-sortable identifier.
func GenerateULID() string {
	return ulid.Make().String()
}
