package outbox_repo

import (
	"context"

	"salesconsumer/internal/domain"
)

type OutboxRepository interface {
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) error
	// GetPendingMessages returns up to limit PENDING messages, oldest first.
	// On Postgres the rows stay locked for the caller's transaction.
	GetPendingMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	UpdateMessageStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.OutboxMessageStatus) error
	CountByStatus(ctx context.Context, querier domain.Querier, status domain.OutboxMessageStatus) (int, error)
}
