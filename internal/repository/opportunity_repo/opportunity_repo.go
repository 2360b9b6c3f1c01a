package opportunity_repo

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

const selectColumns = `id, event_id, name, stage, amount, probability, expected_close_date,
		       account_id, owner_id, metadata, created_at, updated_at, deleted_at`

type opportunityRepository struct {
	driver database.Driver
}

func NewOpportunityRepository(driver database.Driver) *opportunityRepository {
	return &opportunityRepository{driver: driver}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row rowScanner) (*domain.Opportunity, error) {
	var (
		o                          domain.Opportunity
		name, stage, account, owner sql.NullString
		amount, probability        sql.NullFloat64
		closeDate, deletedAt       sql.NullTime
		metadata                   sql.NullString
	)
	err := row.Scan(
		&o.ID,
		&o.EventID,
		&name,
		&stage,
		&amount,
		&probability,
		&closeDate,
		&account,
		&owner,
		&metadata,
		&o.CreatedAt,
		&o.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Name = database.StringPtr(name)
	o.Stage = database.StringPtr(stage)
	o.Amount = database.FloatPtr(amount)
	o.Probability = database.FloatPtr(probability)
	o.ExpectedCloseDate = database.TimePtr(closeDate)
	o.AccountID = database.StringPtr(account)
	o.OwnerID = database.StringPtr(owner)
	o.Metadata = database.JSON(metadata)
	o.DeletedAt = database.TimePtr(deletedAt)
	return &o, nil
}

func (r *opportunityRepository) FindByEventIDTx(ctx context.Context, querier domain.Querier, eventID string) (*domain.Opportunity, bool, error) {
	query := database.Rebind(r.driver, `SELECT `+selectColumns+` FROM opportunities WHERE event_id = ?`)
	o, err := scanOpportunity(querier.QueryRowContext(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to find opportunity by event_id %s: %w", eventID, err)
	}
	return o, true, nil
}

func (r *opportunityRepository) InsertTx(ctx context.Context, querier domain.Querier, o *domain.Opportunity) error {
	if o.EventID == "" {
		return domain.ErrMissingEventID
	}
	if o.ID == "" {
		o.ID = util.GenerateUUID()
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	query := database.Rebind(r.driver, `
		INSERT INTO opportunities (id, event_id, name, stage, amount, probability, expected_close_date,
		                           account_id, owner_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := querier.ExecContext(ctx, query,
		o.ID,
		o.EventID,
		database.NullString(o.Name),
		database.NullString(o.Stage),
		database.NullFloat(o.Amount),
		database.NullFloat(o.Probability),
		database.NullTime(o.ExpectedCloseDate),
		database.NullString(o.AccountID),
		database.NullString(o.OwnerID),
		database.NullJSON(o.Metadata),
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("opportunity event_id %s: %w", o.EventID, domain.ErrDuplicateEventID)
		}
		return fmt.Errorf("failed to insert opportunity %s: %w", o.EventID, err)
	}
	return nil
}

// UpdateTx overwrites every business field of the row identified by o.ID.
// deleted_at and created_at are left untouched.
func (r *opportunityRepository) UpdateTx(ctx context.Context, querier domain.Querier, o *domain.Opportunity) error {
	o.UpdatedAt = time.Now().UTC()

	query := database.Rebind(r.driver, `
		UPDATE opportunities
		SET event_id = ?, name = ?, stage = ?, amount = ?, probability = ?, expected_close_date = ?,
		    account_id = ?, owner_id = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`)
	res, err := querier.ExecContext(ctx, query,
		o.EventID,
		database.NullString(o.Name),
		database.NullString(o.Stage),
		database.NullFloat(o.Amount),
		database.NullFloat(o.Probability),
		database.NullTime(o.ExpectedCloseDate),
		database.NullString(o.AccountID),
		database.NullString(o.OwnerID),
		database.NullJSON(o.Metadata),
		o.UpdatedAt,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update opportunity %s: %w", o.ID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("opportunity %s: %w", o.ID, domain.ErrRecordNotFound)
	}
	return nil
}

func (r *opportunityRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Opportunity, error) {
	query := database.Rebind(r.driver, `SELECT `+selectColumns+` FROM opportunities WHERE id = ?`)
	o, err := scanOpportunity(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get opportunity %s: %w", id, err)
	}
	return o, nil
}

// ListTx returns live opportunities in creation order. A non-positive limit
// falls back to DefaultListLimit.
func (r *opportunityRepository) ListTx(ctx context.Context, querier domain.Querier, skip, limit int) ([]*domain.Opportunity, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if skip < 0 {
		skip = 0
	}

	query := database.Rebind(r.driver, `
		SELECT `+selectColumns+`
		FROM opportunities
		WHERE deleted_at IS NULL
		ORDER BY created_at, id
		LIMIT ? OFFSET ?
	`)
	rows, err := querier.QueryContext(ctx, query, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	defer rows.Close()

	var opportunities []*domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		opportunities = append(opportunities, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate opportunities: %w", err)
	}
	return opportunities, nil
}

func (r *opportunityRepository) SoftDeleteTx(ctx context.Context, querier domain.Querier, id string) error {
	now := time.Now().UTC()
	query := database.Rebind(r.driver, `
		UPDATE opportunities
		SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`)
	res, err := querier.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete opportunity %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("opportunity %s: %w", id, domain.ErrRecordNotFound)
	}
	return nil
}
