// Package quarantine records messages the consumer could not route or
// persist. Entries are append-only.
package quarantine

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"salesconsumer/internal/codec"
	"salesconsumer/internal/domain"
	"salesconsumer/internal/repository/outbox_repo"
	"salesconsumer/internal/util"

	"go.uber.org/zap"
)

type Sink interface {
	Append(ctx context.Context, entry domain.QuarantineEntry) error
}

// Source locates the quarantined message in the stream.
type Source struct {
	Topic     string
	Partition int
	Offset    int64
}

// NewEntry builds an entry for payload. A payload that is valid JSON is kept
// as-is; anything else is stored as a JSON string.
func NewEntry(reason domain.QuarantineReason, detail string, src Source, payload []byte) domain.QuarantineEntry {
	message := json.RawMessage(bytes.TrimSpace(payload))
	if len(message) == 0 || !codec.Valid(message) {
		encoded, err := codec.Marshal(string(payload))
		if err != nil {
			encoded = []byte(`""`)
		}
		message = encoded
	}
	return domain.QuarantineEntry{
		ID:        util.GenerateULID(),
		Timestamp: time.Now().UTC(),
		Reason:    reason,
		Detail:    detail,
		Topic:     src.Topic,
		Partition: src.Partition,
		Offset:    src.Offset,
		Message:   message,
	}
}

// FileSink appends one JSON document per line to a local file.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create quarantine directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open quarantine file: %w", err)
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) Append(_ context.Context, entry domain.QuarantineEntry) error {
	line, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode quarantine entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("failed to write quarantine entry: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// OutboxSink stores entries in the outbox table, keyed by entry id, for the
// outbox processor to relay to the dead-letter topic.
type OutboxSink struct {
	db   *sql.DB
	repo outbox_repo.OutboxRepository
}

func NewOutboxSink(db *sql.DB, repo outbox_repo.OutboxRepository) *OutboxSink {
	return &OutboxSink{db: db, repo: repo}
}

func (s *OutboxSink) Append(ctx context.Context, entry domain.QuarantineEntry) error {
	value, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode quarantine entry: %w", err)
	}
	return s.repo.CreateMessageTx(ctx, s.db, &domain.OutboxMessage{Key: entry.ID, Payload: value})
}

type fanOut []Sink

// FanOut appends every entry to all sinks. Every sink is attempted even when
// an earlier one fails.
func FanOut(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return fanOut(sinks)
}

func (f fanOut) Append(ctx context.Context, entry domain.QuarantineEntry) error {
	var errs []error
	for _, s := range f {
		if err := s.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type loggingSink struct {
	next   Sink
	logger *zap.Logger
}

// WithLogging logs every entry at WARN before handing it to next.
func WithLogging(next Sink, logger *zap.Logger) Sink {
	return &loggingSink{next: next, logger: logger}
}

func (s *loggingSink) Append(ctx context.Context, entry domain.QuarantineEntry) error {
	s.logger.Warn("Message quarantined",
		zap.String("quarantine_id", entry.ID),
		zap.String("reason", string(entry.Reason)),
		zap.String("detail", entry.Detail),
		zap.String("topic", entry.Topic),
		zap.Int("partition", entry.Partition),
		zap.Int64("offset", entry.Offset),
	)
	if err := s.next.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to append quarantine entry",
			zap.String("quarantine_id", entry.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
