// Package outbox relays dead-letter records from the outbox_messages table to
// Kafka. Records are marked SENT only after the broker acknowledged them.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"salesconsumer/internal/domain"
	"salesconsumer/internal/infrastructure/database"
	kafka_infra "salesconsumer/internal/infrastructure/kafka"
	"salesconsumer/internal/metrics"
)

const DefaultBatchSize = 10

type OutboxRepository interface {
	GetPendingMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	UpdateMessageStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.OutboxMessageStatus) error
}

type Processor struct {
	db            *sql.DB
	outboxRepo    OutboxRepository
	kafkaProducer kafka_infra.Producer
	pollInterval  time.Duration
	pollTimeout   time.Duration
	batchSize     int
	metrics       *metrics.Metrics
	logger        *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewProcessor(
	db *sql.DB,
	outboxRepo OutboxRepository,
	kafkaProducer kafka_infra.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	batchSize int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Processor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Processor{
		db:            db,
		outboxRepo:    outboxRepo,
		kafkaProducer: kafkaProducer,
		pollInterval:  pollInterval,
		pollTimeout:   pollTimeout,
		batchSize:     batchSize,
		metrics:       m,
		logger:        logger,
	}
}

// Start launches the polling loop. It returns immediately; the loop runs until
// ctx is done or Stop is called. Calling Start twice is a no-op.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.logger.Info("Starting outbox processor...", zap.Duration("poll_interval", p.pollInterval))
	go p.loop(loopCtx, p.done)
}

// Stop ends the polling loop and waits for an in-flight batch to finish or
// for ctx to expire.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}

	p.logger.Info("Signaling outbox processor to stop...")
	cancel()
	select {
	case <-done:
		p.logger.Info("Outbox processor stopped.")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("outbox processor did not stop: %w", ctx.Err())
	}
}

func (p *Processor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("Outbox relay batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessPending relays one batch of PENDING messages in creation order and
// returns how many were marked SENT. The batch stops at the first publish
// failure; the failed message and those after it stay PENDING.
func (p *Processor) ProcessPending(ctx context.Context) (int, error) {
	p.logger.Debug("Polling for outbox messages...")

	batchCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	var (
		sent       int
		publishErr error
	)
	err := database.WithinTx(batchCtx, p.db, func(tx *sql.Tx) error {
		messages, err := p.outboxRepo.GetPendingMessages(batchCtx, tx, p.batchSize)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			p.logger.Debug("No pending outbox messages found.")
			return nil
		}
		p.logger.Info("Found pending outbox messages", zap.Int("count", len(messages)))

		for _, msg := range messages {
			if err := p.kafkaProducer.Produce(batchCtx, msg.Key, msg.Payload); err != nil {
				p.logger.Error("Failed to send outbox message to Kafka",
					zap.String("message_id", msg.ID),
					zap.Error(err))
				publishErr = fmt.Errorf("failed to publish outbox message %s: %w", msg.ID, err)
				return nil
			}
			if err := p.outboxRepo.UpdateMessageStatusTx(batchCtx, tx, msg.ID, domain.OutboxStatusSent); err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("outbox relay: %w", err)
	}

	if sent > 0 {
		p.metrics.Relayed.Add(float64(sent))
		p.logger.Info("Outbox messages relayed", zap.Int("count", sent))
	}
	return sent, publishErr
}
