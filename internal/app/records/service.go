package records

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"salesconsumer/internal/domain"
	"salesconsumer/internal/infrastructure/database"
	"salesconsumer/internal/repository/opportunity_repo"
	"salesconsumer/internal/repository/project_repo"
)

// RecordService is the read and administrative side of the stored sales
// records. Soft-deleted records are hidden from every read.
type RecordService interface {
	ListOpportunities(ctx context.Context, skip, limit int) ([]*domain.Opportunity, error)
	GetOpportunity(ctx context.Context, eventID string) (*domain.Opportunity, error)
	DeleteOpportunity(ctx context.Context, eventID string) (*domain.Opportunity, error)
	ListProjects(ctx context.Context, skip, limit int) ([]*domain.Project, error)
	GetProject(ctx context.Context, eventID string) (*domain.Project, error)
	DeleteProject(ctx context.Context, eventID string) (*domain.Project, error)
}

type recordService struct {
	db              *sql.DB
	opportunityRepo opportunity_repo.OpportunityRepository
	projectRepo     project_repo.ProjectRepository
	logger          *zap.Logger
}

func NewRecordService(
	db *sql.DB,
	opportunityRepo opportunity_repo.OpportunityRepository,
	projectRepo project_repo.ProjectRepository,
	logger *zap.Logger,
) RecordService {
	return &recordService{
		db:              db,
		opportunityRepo: opportunityRepo,
		projectRepo:     projectRepo,
		logger:          logger,
	}
}

func (s *recordService) ListOpportunities(ctx context.Context, skip, limit int) ([]*domain.Opportunity, error) {
	return s.opportunityRepo.ListTx(ctx, s.db, skip, limit)
}

func (s *recordService) GetOpportunity(ctx context.Context, eventID string) (*domain.Opportunity, error) {
	o, found, err := s.opportunityRepo.FindByEventIDTx(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	if !found || o.Deleted() {
		return nil, domain.ErrRecordNotFound
	}
	return o, nil
}

func (s *recordService) DeleteOpportunity(ctx context.Context, eventID string) (*domain.Opportunity, error) {
	var deleted *domain.Opportunity
	err := database.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		o, found, err := s.opportunityRepo.FindByEventIDTx(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if !found || o.Deleted() {
			return domain.ErrRecordNotFound
		}
		if err := s.opportunityRepo.SoftDeleteTx(ctx, tx, o.ID); err != nil {
			return err
		}
		deleted, err = s.opportunityRepo.GetByIDTx(ctx, tx, o.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete opportunity %s: %w", eventID, err)
	}
	s.logger.Info("Opportunity soft-deleted", zap.String("event_id", eventID), zap.String("id", deleted.ID))
	return deleted, nil
}

func (s *recordService) ListProjects(ctx context.Context, skip, limit int) ([]*domain.Project, error) {
	return s.projectRepo.ListTx(ctx, s.db, skip, limit)
}

func (s *recordService) GetProject(ctx context.Context, eventID string) (*domain.Project, error) {
	p, found, err := s.projectRepo.FindByEventIDTx(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	if !found || p.Deleted() {
		return nil, domain.ErrRecordNotFound
	}
	return p, nil
}

func (s *recordService) DeleteProject(ctx context.Context, eventID string) (*domain.Project, error) {
	var deleted *domain.Project
	err := database.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		p, found, err := s.projectRepo.FindByEventIDTx(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if !found || p.Deleted() {
			return domain.ErrRecordNotFound
		}
		if err := s.projectRepo.SoftDeleteTx(ctx, tx, p.ID); err != nil {
			return err
		}
		deleted, err = s.projectRepo.GetByIDTx(ctx, tx, p.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete project %s: %w", eventID, err)
	}
	s.logger.Info("Project soft-deleted", zap.String("event_id", eventID), zap.String("id", deleted.ID))
	return deleted, nil
}
