package domain

import (
	"encoding/json"
	"time"
)

type Project struct {
	Audit

	Name      *string
	Status    *string
	StartDate *time.Time
	EndDate   *time.Time
	Budget    *float64
	IsActive  bool
	ManagerID *string
	ClientID  *string
}

// ProjectFields is the canonical projection of a Project event.
type ProjectFields struct {
	EventID   string
	Name      *string
	Status    *string
	StartDate *time.Time
	EndDate   *time.Time
	Budget    *float64
	IsActive  bool
	ManagerID *string
	ClientID  *string
	Metadata  json.RawMessage
}

// Apply overwrites every business field of p with f.
func (p *Project) Apply(f ProjectFields) {
	p.EventID = f.EventID
	p.Name = f.Name
	p.Status = f.Status
	p.StartDate = f.StartDate
	p.EndDate = f.EndDate
	p.Budget = f.Budget
	p.IsActive = f.IsActive
	p.ManagerID = f.ManagerID
	p.ClientID = f.ClientID
	p.Metadata = f.Metadata
}
