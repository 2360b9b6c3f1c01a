package domain

import (
	"encoding/json"
	"time"
)

type Opportunity struct {
	Audit

	Name              *string
	Stage             *string
	Amount            *float64
	Probability       *float64
	ExpectedCloseDate *time.Time
	AccountID         *string
	OwnerID           *string
}

// OpportunityFields is the canonical projection of an Opportunity event.
// Nil pointers mean the producer omitted the field.
type OpportunityFields struct {
	EventID           string
	Name              *string
	Stage             *string
	Amount            *float64
	Probability       *float64
	ExpectedCloseDate *time.Time
	AccountID         *string
	OwnerID           *string
	Metadata          json.RawMessage
}

// Apply overwrites every business field of o with f.
func (o *Opportunity) Apply(f OpportunityFields) {
	o.EventID = f.EventID
	o.Name = f.Name
	o.Stage = f.Stage
	o.Amount = f.Amount
	o.Probability = f.Probability
	o.ExpectedCloseDate = f.ExpectedCloseDate
	o.AccountID = f.AccountID
	o.OwnerID = f.OwnerID
	o.Metadata = f.Metadata
}
