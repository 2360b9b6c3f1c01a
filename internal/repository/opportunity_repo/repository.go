package opportunity_repo

import (
	"context"

	"salesconsumer/internal/domain"
)

type OpportunityRepository interface {
	// FindByEventIDTx reports found=false, with a nil error, when no row has eventID.
	FindByEventIDTx(ctx context.Context, querier domain.Querier, eventID string) (*domain.Opportunity, bool, error)
	InsertTx(ctx context.Context, querier domain.Querier, opportunity *domain.Opportunity) error
	UpdateTx(ctx context.Context, querier domain.Querier, opportunity *domain.Opportunity) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Opportunity, error)
	ListTx(ctx context.Context, querier domain.Querier, skip, limit int) ([]*domain.Opportunity, error)
	SoftDeleteTx(ctx context.Context, querier domain.Querier, id string) error
}
