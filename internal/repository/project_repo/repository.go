package project_repo

import (
	"context"

	"salesconsumer/internal/domain"
)

type ProjectRepository interface {
	FindByEventIDTx(ctx context.Context, querier domain.Querier, eventID string) (*domain.Project, bool, error)
	InsertTx(ctx context.Context, querier domain.Querier, project *domain.Project) error
	UpdateTx(ctx context.Context, querier domain.Querier, project *domain.Project) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Project, error)
	ListTx(ctx context.Context, querier domain.Querier, skip, limit int) ([]*domain.Project, error)
	SoftDeleteTx(ctx context.Context, querier domain.Querier, id string) error
}
