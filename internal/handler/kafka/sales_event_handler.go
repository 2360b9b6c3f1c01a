package kafka

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"salesconsumer/internal/codec"
	"salesconsumer/internal/domain"
	"salesconsumer/internal/infrastructure/database"
	"salesconsumer/internal/metrics"
	"salesconsumer/internal/quarantine"
	"salesconsumer/internal/reconciler"
	"salesconsumer/internal/retry"
	"salesconsumer/internal/router"
)

const (
	tracerName = "salesconsumer"

	// DefaultStoreTimeout bounds one transactional attempt.
	DefaultStoreTimeout = 30 * time.Second
)

// SalesEventHandler decides the disposition of one stream message: persisted
// through its reconciler, or quarantined. A nil error from Handle means the
// message reached one of those two terminal states and its offset may be
// committed.
type SalesEventHandler struct {
	db           *sql.DB
	router       *router.Router
	sink         quarantine.Sink
	policy       retry.Policy
	storeTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

func NewSalesEventHandler(
	db *sql.DB,
	r *router.Router,
	sink quarantine.Sink,
	policy retry.Policy,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SalesEventHandler {
	h := &SalesEventHandler{
		db:           db,
		router:       r,
		sink:         sink,
		storeTimeout: DefaultStoreTimeout,
		metrics:      m,
		logger:       logger,
	}

	policy.RetryIf = isRetryable
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		m.Retries.Inc()
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}
	h.policy = policy
	return h
}

// isRetryable treats every store failure as transient except field errors,
// which fail identically on every attempt.
func isRetryable(err error) bool {
	return !errors.Is(err, domain.ErrInvalidField)
}

func (h *SalesEventHandler) Handle(ctx context.Context, msg kafka.Message) error {
	start := time.Now()
	defer func() {
		h.metrics.Processing.Observe(time.Since(start).Seconds())
	}()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "ProcessMessage",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	logger := h.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	rec, err := codec.Parse(msg.Value)
	if err != nil {
		reason := domain.QuarantineMalformedPayload
		if errors.Is(err, codec.ErrEmptyPayload) {
			reason = domain.QuarantineEmptyPayload
		}
		return h.quarantine(ctx, span, msg, "", reason, err.Error())
	}

	tag := rec.ObjectType()
	if tag == "" {
		return h.quarantine(ctx, span, msg, "", domain.QuarantineMissingObjectType, "object_type is missing")
	}
	span.SetAttributes(attribute.String("sales.object_type", tag))

	route := h.router.Resolve(tag)
	if !route.Routed {
		return h.quarantine(ctx, span, msg, "", domain.QuarantineUnknownObjectType, fmt.Sprintf("no reconciler for object_type %q", tag))
	}

	var outcome reconciler.Outcome
	err = retry.Do(ctx, h.policy, logger.With(zap.String("object_type", tag)), func(ctx context.Context) error {
		// The attempt must finish as a whole even if shutdown begins mid-way.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.storeTimeout)
		defer cancel()
		return database.WithinTx(storeCtx, h.db, func(tx *sql.Tx) error {
			o, err := route.Reconciler.Reconcile(storeCtx, tx, rec)
			if err != nil {
				return err
			}
			outcome = o
			return nil
		})
	})
	if errors.Is(err, domain.ErrInvalidField) {
		return h.quarantine(ctx, span, msg, tag, domain.QuarantineInvalidRecord, err.Error())
	}
	if err != nil {
		h.metrics.Messages.WithLabelValues(tag, metrics.OutcomeFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return fmt.Errorf("failed to persist %s message: %w", tag, err)
	}

	h.metrics.Messages.WithLabelValues(tag, string(outcome)).Inc()
	span.SetAttributes(attribute.String("sales.outcome", string(outcome)))
	logger.Info("Sales event persisted",
		zap.String("object_type", tag),
		zap.String("outcome", string(outcome)),
	)
	return nil
}

func (h *SalesEventHandler) quarantine(ctx context.Context, span trace.Span, msg kafka.Message, tag string, reason domain.QuarantineReason, detail string) error {
	entry := quarantine.NewEntry(reason, detail, quarantine.Source{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}, msg.Value)

	span.SetAttributes(attribute.String("sales.quarantine_reason", string(reason)))
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.storeTimeout)
	defer cancel()
	if err := h.sink.Append(sinkCtx, entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quarantine failed")
		return fmt.Errorf("failed to quarantine message: %w", err)
	}

	if tag == "" {
		tag = "unknown"
	}
	h.metrics.Messages.WithLabelValues(tag, metrics.OutcomeQuarantined).Inc()
	h.metrics.Quarantined.WithLabelValues(string(reason)).Inc()
	return nil
}
