package project_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"salesconsumer/internal/domain"
	"salesconsumer/internal/infrastructure/database"
	"salesconsumer/internal/util"
)

const DefaultListLimit = 100

const selectColumns = `id, event_id, name, status, start_date, end_date, budget, is_active,
		       manager_id, client_id, metadata, created_at, updated_at, deleted_at`

type projectRepository struct {
	driver database.Driver
}

func NewProjectRepository(driver database.Driver) *projectRepository {
	return &projectRepository{driver: driver}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p                             domain.Project
		name, status, manager, client sql.NullString
		budget                        sql.NullFloat64
		startDate, endDate, deletedAt sql.NullTime
		metadata                      sql.NullString
	)
	err := row.Scan(
		&p.ID,
		&p.EventID,
		&name,
		&status,
		&startDate,
		&endDate,
		&budget,
		&p.IsActive,
		&manager,
		&client,
		&metadata,
		&p.CreatedAt,
		&p.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Name = database.StringPtr(name)
	p.Status = database.StringPtr(status)
	p.StartDate = database.TimePtr(startDate)
	p.EndDate = database.TimePtr(endDate)
	p.Budget = database.FloatPtr(budget)
	p.ManagerID = database.StringPtr(manager)
	p.ClientID = database.StringPtr(client)
	p.Metadata = database.JSON(metadata)
	p.DeletedAt = database.TimePtr(deletedAt)
	return &p, nil
}

func (r *projectRepository) FindByEventIDTx(ctx context.Context, querier domain.Querier, eventID string) (*domain.Project, bool, error) {
	query := database.Rebind(r.driver, `SELECT `+selectColumns+` FROM projects WHERE event_id = ?`)
	p, err := scanProject(querier.QueryRowContext(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to find project by event_id %s: %w", eventID, err)
	}
	return p, true, nil
}

func (r *projectRepository) InsertTx(ctx context.Context, querier domain.Querier, p *domain.Project) error {
	if p.EventID == "" {
		return domain.ErrMissingEventID
	}
	if p.ID == "" {
		p.ID = util.GenerateUUID()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	query := database.Rebind(r.driver, `
		INSERT INTO projects (id, event_id, name, status, start_date, end_date, budget, is_active,
		                      manager_id, client_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := querier.ExecContext(ctx, query,
		p.ID,
		p.EventID,
		database.NullString(p.Name),
		database.NullString(p.Status),
		database.NullTime(p.StartDate),
		database.NullTime(p.EndDate),
		database.NullFloat(p.Budget),
		p.IsActive,
		database.NullString(p.ManagerID),
		database.NullString(p.ClientID),
		database.NullJSON(p.Metadata),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("project event_id %s: %w", p.EventID, domain.ErrDuplicateEventID)
		}
		return fmt.Errorf("failed to insert project %s: %w", p.EventID, err)
	}
	return nil
}

// UpdateTx overwrites every business field of the row identified by p.ID.
// deleted_at and created_at are left untouched.
func (r *projectRepository) UpdateTx(ctx context.Context, querier domain.Querier, p *domain.Project) error {
	p.UpdatedAt = time.Now().UTC()

	query := database.Rebind(r.driver, `
		UPDATE projects
		SET event_id = ?, name = ?, status = ?, start_date = ?, end_date = ?, budget = ?, is_active = ?,
		    manager_id = ?, client_id = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`)
	res, err := querier.ExecContext(ctx, query,
		p.EventID,
		database.NullString(p.Name),
		database.NullString(p.Status),
		database.NullTime(p.StartDate),
		database.NullTime(p.EndDate),
		database.NullFloat(p.Budget),
		p.IsActive,
		database.NullString(p.ManagerID),
		database.NullString(p.ClientID),
		database.NullJSON(p.Metadata),
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", p.ID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("project %s: %w", p.ID, domain.ErrRecordNotFound)
	}
	return nil
}

func (r *projectRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Project, error) {
	query := database.Rebind(r.driver, `SELECT `+selectColumns+` FROM projects WHERE id = ?`)
	p, err := scanProject(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get project %s: %w", id, err)
	}
	return p, nil
}

func (r *projectRepository) ListTx(ctx context.Context, querier domain.Querier, skip, limit int) ([]*domain.Project, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if skip < 0 {
		skip = 0
	}

	query := database.Rebind(r.driver, `
		SELECT `+selectColumns+`
		FROM projects
		WHERE deleted_at IS NULL
		ORDER BY created_at, id
		LIMIT ? OFFSET ?
	`)
	rows, err := querier.QueryContext(ctx, query, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return projects, nil
}

func (r *projectRepository) SoftDeleteTx(ctx context.Context, querier domain.Querier, id string) error {
	now := time.Now().UTC()
	query := database.Rebind(r.driver, `
		UPDATE projects
		SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`)
	res, err := querier.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("project %s: %w", id, domain.ErrRecordNotFound)
	}
	return nil
}
