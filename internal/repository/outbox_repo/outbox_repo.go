package outbox_repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"salesconsumer/internal/domain"
	"salesconsumer/internal/infrastructure/database"
	"salesconsumer/internal/util"
)

type outboxRepository struct {
	driver database.Driver
}

func NewOutboxRepository(driver database.Driver) OutboxRepository {
	return &outboxRepository{driver: driver}
}

func (r *outboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = util.GenerateUUID()
	}
	if msg.Status == "" {
		msg.Status = domain.OutboxStatusPending
	}
	msg.CreatedAt = time.Now().UTC()

	query := database.Rebind(r.driver, `
		INSERT INTO outbox_messages (id, message_key, payload, status, created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := querier.ExecContext(ctx, query,
		msg.ID,
		msg.Key,
		msg.Payload,
		msg.Status,
		msg.CreatedAt,
		database.NullTime(msg.SentAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return nil
}

func (r *outboxRepository) GetPendingMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error) {
	query := `
		SELECT id, message_key, payload, status, created_at, sent_at
		FROM outbox_messages
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`
	if r.driver == database.DriverPostgres {
		query += ` FOR UPDATE SKIP LOCKED`
	}
	rows, err := querier.QueryContext(ctx, database.Rebind(r.driver, query), domain.OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.OutboxMessage
	for rows.Next() {
		msg := domain.OutboxMessage{}
		var sentAt sql.NullTime
		err := rows.Scan(
			&msg.ID,
			&msg.Key,
			&msg.Payload,
			&msg.Status,
			&msg.CreatedAt,
			&sentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		msg.SentAt = database.TimePtr(sentAt)
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}

	return messages, nil
}

func (r *outboxRepository) UpdateMessageStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.OutboxMessageStatus) error {
	query := database.Rebind(r.driver, `
		UPDATE outbox_messages
		SET status = ?, sent_at = ?
		WHERE id = ?
	`)
	var sentAt sql.NullTime
	if status == domain.OutboxStatusSent {
		sentAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	res, err := querier.ExecContext(ctx, query, status, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to update outbox message status for id %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for outbox update (id %s): %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("outbox message %s: %w", id, domain.ErrRecordNotFound)
	}
	return nil
}

func (r *outboxRepository) CountByStatus(ctx context.Context, querier domain.Querier, status domain.OutboxMessageStatus) (int, error) {
	query := database.Rebind(r.driver, `SELECT COUNT(*) FROM outbox_messages WHERE status = ?`)
	var n int
	if err := querier.QueryRowContext(ctx, query, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox messages: %w", err)
	}
	return n, nil
}
