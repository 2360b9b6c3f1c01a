// Package reconciler upserts decoded events into their business tables.
package reconciler

import (
	"context"
	"fmt"

	"salesconsumer/internal/codec"
	"salesconsumer/internal/domain"
	"salesconsumer/internal/repository/opportunity_repo"
	"salesconsumer/internal/repository/project_repo"

	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
)

// Reconciler upserts one record type. Reconcile performs exactly one write
// on success and runs inside the caller's transaction.
type Reconciler interface {
	ObjectType() domain.ObjectType
	Reconcile(ctx context.Context, querier domain.Querier, rec codec.Record) (Outcome, error)
}

type store[R any] interface {
	FindByEventIDTx(ctx context.Context, querier domain.Querier, eventID string) (*R, bool, error)
	InsertTx(ctx context.Context, querier domain.Querier, record *R) error
	UpdateTx(ctx context.Context, querier domain.Querier, record *R) error
}

func upsert[R any](ctx context.Context, querier domain.Querier, s store[R], eventID string, apply func(*R)) (Outcome, error) {
	existing, found, err := s.FindByEventIDTx(ctx, querier, eventID)
	if err != nil {
		return "", err
	}
	if found {
		apply(existing)
		if err := s.UpdateTx(ctx, querier, existing); err != nil {
			return "", err
		}
		return OutcomeUpdated, nil
	}

	record := new(R)
	apply(record)
	if err := s.InsertTx(ctx, querier, record); err != nil {
		return "", err
	}
	return OutcomeInserted, nil
}

type opportunityReconciler struct {
	repo   opportunity_repo.OpportunityRepository
	logger *zap.Logger
}

func NewOpportunityReconciler(repo opportunity_repo.OpportunityRepository, logger *zap.Logger) Reconciler {
	return &opportunityReconciler{repo: repo, logger: logger}
}

func (r *opportunityReconciler) ObjectType() domain.ObjectType {
	return domain.ObjectTypeOpportunity
}

func (r *opportunityReconciler) Reconcile(ctx context.Context, querier domain.Querier, rec codec.Record) (Outcome, error) {
	fields, err := OpportunityFieldsFrom(rec)
	if err != nil {
		return "", err
	}

	outcome, err := upsert[domain.Opportunity](ctx, querier, r.repo, fields.EventID, func(o *domain.Opportunity) {
		o.Apply(fields)
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert opportunity %s: %w", fields.EventID, err)
	}

	r.logger.Debug("Opportunity reconciled",
		zap.String("event_id", fields.EventID),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

type projectReconciler struct {
	repo   project_repo.ProjectRepository
	logger *zap.Logger
}

func NewProjectReconciler(repo project_repo.ProjectRepository, logger *zap.Logger) Reconciler {
	return &projectReconciler{repo: repo, logger: logger}
}

func (r *projectReconciler) ObjectType() domain.ObjectType {
	return domain.ObjectTypeProject
}

func (r *projectReconciler) Reconcile(ctx context.Context, querier domain.Querier, rec codec.Record) (Outcome, error) {
	fields, err := ProjectFieldsFrom(rec)
	if err != nil {
		return "", err
	}

	outcome, err := upsert[domain.Project](ctx, querier, r.repo, fields.EventID, func(p *domain.Project) {
		p.Apply(fields)
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert project %s: %w", fields.EventID, err)
	}

	r.logger.Debug("Project reconciled",
		zap.String("event_id", fields.EventID),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}
