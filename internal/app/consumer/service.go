package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafka_infra "salesconsumer/internal/infrastructure/kafka"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var ErrAlreadyRunning = errors.New("consumer already running")

// SubscriptionError reports that the stream subscription could not be opened.
// It is fatal for Start and is not retried.
type SubscriptionError struct {
	Err error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("failed to subscribe to stream: %v", e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// MessageHandler settles one message. A nil error means the message reached
// a terminal disposition and its offset may be committed.
type MessageHandler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

const defaultCommitTimeout = 5 * time.Second

type Service struct {
	subscriber    kafka_infra.Subscriber
	handler       MessageHandler
	failureDelay  time.Duration
	commitTimeout time.Duration
	logger        *zap.Logger

	mu     sync.Mutex
	state  State
	stream kafka_infra.Stream
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService returns a stopped consumer. failureDelay is the pause after a
// message fails or a fetch errors, before the loop resumes.
func NewService(subscriber kafka_infra.Subscriber, handler MessageHandler, failureDelay time.Duration, logger *zap.Logger) *Service {
	return &Service{
		subscriber:    subscriber,
		handler:       handler,
		failureDelay:  failureDelay,
		commitTimeout: defaultCommitTimeout,
		logger:        logger,
	}
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) Running() bool {
	return s.State() == StateRunning
}

// Start opens the subscription and launches the pull loop. The loop outlives
// ctx; it ends only through Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = StateStarting
	s.mu.Unlock()

	stream, err := s.subscriber.Subscribe(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		s.logger.Error("Failed to open stream subscription", zap.Error(err))
		return &SubscriptionError{Err: err}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	s.state = StateRunning
	s.stream = stream
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(runCtx, stream, done)
	s.logger.Info("Consumer started")
	return nil
}

// Stop cancels the pull loop, waits for it to exit and closes the
// subscription. It is a no-op unless the consumer is running. If ctx expires
// before the loop exits, the subscription is closed anyway and the state stays
// Stopping until the loop has returned, so Start cannot launch a second loop.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	cancel, done, stream := s.cancel, s.done, s.stream
	s.mu.Unlock()

	s.logger.Info("Consumer stopping")
	cancel()

	var waitErr error
	exited := true
	select {
	case <-done:
	case <-ctx.Done():
		exited = false
		waitErr = fmt.Errorf("pull loop did not exit in time: %w", ctx.Err())
	}

	var closeErr error
	if err := stream.Close(); err != nil {
		closeErr = fmt.Errorf("failed to close stream: %w", err)
	}

	if exited {
		s.markStopped()
	} else {
		go func() {
			<-done
			s.markStopped()
		}()
	}
	return errors.Join(waitErr, closeErr)
}

func (s *Service) markStopped() {
	s.mu.Lock()
	s.state = StateStopped
	s.stream = nil
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	s.logger.Info("Consumer stopped")
}

func (s *Service) run(ctx context.Context, stream kafka_infra.Stream, done chan<- struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := stream.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			s.logger.Error("Failed to fetch message", zap.Error(err))
			s.pause(ctx)
			continue
		}

		if err := s.handler.Handle(ctx, msg); err != nil {
			if ctx.Err() != nil && errors.Is(err, context.Canceled) {
				s.logger.Info("Message handling interrupted by shutdown",
					zap.String("topic", msg.Topic),
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
				)
				return
			}
			s.logger.Error("Failed to process message, resuming after pause",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Duration("pause", s.failureDelay),
				zap.Error(err),
			)
			s.pause(ctx)
			continue
		}

		s.commit(ctx, stream, msg)
	}
}

// commit runs even while stopping, since the message is already settled.
func (s *Service) commit(ctx context.Context, stream kafka_infra.Stream, msg kafka.Message) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.commitTimeout)
	defer cancel()

	if err := stream.CommitMessages(commitCtx, msg); err != nil {
		s.logger.Error("Failed to commit offset",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
}

func (s *Service) pause(ctx context.Context) {
	if s.failureDelay <= 0 {
		return
	}
	t := time.NewTimer(s.failureDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
