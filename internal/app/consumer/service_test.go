package consumer

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"salesconsumer/internal/codec"
	"salesconsumer/internal/domain"
	kafka_handler "salesconsumer/internal/handler/kafka"
	"salesconsumer/internal/infrastructure/database/dbtest"
	kafka_infra "salesconsumer/internal/infrastructure/kafka"
	"salesconsumer/internal/metrics"
	"salesconsumer/internal/reconciler"
	"salesconsumer/internal/repository/project_repo"
	"salesconsumer/internal/retry"
	"salesconsumer/internal/router"
)

type fakeStream struct {
	msgs chan kafka.Message

	mu       sync.Mutex
	commits  []int64
	closed   bool
	fetchErr error
}

func newFakeStream() *fakeStream {
	return &fakeStream{msgs: make(chan kafka.Message, 16)}
}

func (s *fakeStream) FetchMessage(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	err := s.fetchErr
	s.fetchErr = nil
	s.mu.Unlock()
	if err != nil {
		return kafka.Message{}, err
	}

	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m, ok := <-s.msgs:
		if !ok {
			return kafka.Message{}, io.EOF
		}
		return m, nil
	}
}

func (s *fakeStream) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.commits = append(s.commits, m.Offset)
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) committed() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.commits...)
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeSubscriber struct {
	stream kafka_infra.Stream
	err    error
}

func (f *fakeSubscriber) Subscribe(context.Context) (kafka_infra.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type handlerFunc func(ctx context.Context, msg kafka.Message) error

func (f handlerFunc) Handle(ctx context.Context, msg kafka.Message) error { return f(ctx, msg) }

func msgAt(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "sales-events", Offset: offset, Value: []byte(value)}
}

func TestService_ProcessesInOrderAndCommits(t *testing.T) {
	stream := newFakeStream()
	var (
		mu   sync.Mutex
		seen []int64
	)
	h := handlerFunc(func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, msg.Offset)
		return nil
	})

	svc := NewService(&fakeSubscriber{stream: stream}, h, time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, StateRunning, svc.State())
	assert.True(t, svc.Running())

	for i := int64(1); i <= 5; i++ {
		stream.msgs <- msgAt(i, `{}`)
	}
	require.Eventually(t, func() bool { return len(stream.committed()) == 5 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Stop(context.Background()))
	assert.Equal(t, StateStopped, svc.State())
	assert.True(t, stream.isClosed())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seen)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, stream.committed())
}

func TestService_StartTwice(t *testing.T) {
	svc := NewService(&fakeSubscriber{stream: newFakeStream()}, handlerFunc(func(context.Context, kafka.Message) error { return nil }), 0, zap.NewNop())

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(context.Background())

	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyRunning)
}

func TestService_SubscriptionFailure(t *testing.T) {
	errBroker := errors.New("broker unreachable")
	sub := &fakeSubscriber{err: errBroker}
	svc := NewService(sub, handlerFunc(func(context.Context, kafka.Message) error { return nil }), 0, zap.NewNop())

	err := svc.Start(context.Background())

	var subErr *SubscriptionError
	require.ErrorAs(t, err, &subErr)
	assert.ErrorIs(t, err, errBroker)
	assert.Equal(t, StateStopped, svc.State())

	sub.err = nil
	sub.stream = newFakeStream()
	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))
}

func TestService_StopIsIdempotent(t *testing.T) {
	stream := newFakeStream()
	svc := NewService(&fakeSubscriber{stream: stream}, handlerFunc(func(context.Context, kafka.Message) error { return nil }), 0, zap.NewNop())

	require.NoError(t, svc.Stop(context.Background()))

	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))
	assert.True(t, stream.isClosed())
}

func TestService_FailedMessageIsNotCommitted(t *testing.T) {
	stream := newFakeStream()
	h := handlerFunc(func(_ context.Context, msg kafka.Message) error {
		if msg.Offset == 2 {
			return errors.New("store unavailable")
		}
		return nil
	})

	svc := NewService(&fakeSubscriber{stream: stream}, h, time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, svc.Start(context.Background()))

	for i := int64(1); i <= 3; i++ {
		stream.msgs <- msgAt(i, `{}`)
	}
	require.Eventually(t, func() bool { return len(stream.committed()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, svc.Stop(context.Background()))

	assert.Equal(t, []int64{1, 3}, stream.committed())
}

func TestService_FetchErrorResumes(t *testing.T) {
	stream := newFakeStream()
	stream.fetchErr = errors.New("coordinator not available")

	svc := NewService(&fakeSubscriber{stream: stream}, handlerFunc(func(context.Context, kafka.Message) error { return nil }), time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, svc.Start(context.Background()))

	stream.msgs <- msgAt(1, `{}`)
	require.Eventually(t, func() bool { return len(stream.committed()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, svc.Stop(context.Background()))
}

func TestService_StopWhileHandlerBlocked(t *testing.T) {
	stream := newFakeStream()
	entered := make(chan struct{})
	h := handlerFunc(func(ctx context.Context, _ kafka.Message) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	})

	svc := NewService(&fakeSubscriber{stream: stream}, h, time.Hour, zaptest.NewLogger(t))
	require.NoError(t, svc.Start(context.Background()))

	stream.msgs <- msgAt(1, `{}`)
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))

	assert.Empty(t, stream.committed())
	assert.True(t, stream.isClosed())
	assert.Equal(t, StateStopped, svc.State())
}

func TestService_StopTimesOut(t *testing.T) {
	stream := newFakeStream()
	entered := make(chan struct{})
	release := make(chan struct{})
	h := handlerFunc(func(context.Context, kafka.Message) error {
		close(entered)
		<-release
		return nil
	})

	svc := NewService(&fakeSubscriber{stream: stream}, h, 0, zap.NewNop())
	require.NoError(t, svc.Start(context.Background()))
	stream.msgs <- msgAt(1, `{}`)
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := svc.Stop(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, stream.isClosed())

	// The old loop is still inside the handler; a second loop must not start.
	assert.Equal(t, StateStopping, svc.State())
	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyRunning)
	assert.NoError(t, svc.Stop(context.Background()))

	close(release)
	require.Eventually(t, func() bool { return svc.State() == StateStopped }, time.Second, 5*time.Millisecond)
	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))
}

// gatedReconciler blocks inside the store transaction until released.
type gatedReconciler struct {
	reconciler.Reconciler
	entered chan struct{}
	release chan struct{}
}

func (g *gatedReconciler) Reconcile(ctx context.Context, q domain.Querier, rec codec.Record) (reconciler.Outcome, error) {
	outcome, err := g.Reconciler.Reconcile(ctx, q, rec)
	close(g.entered)
	<-g.release
	return outcome, err
}

func TestService_InFlightMessageCommitsDuringShutdown(t *testing.T) {
	db := dbtest.NewSQLite(t)
	repo := project_repo.NewProjectRepository(db.Driver)
	gate := &gatedReconciler{
		Reconciler: reconciler.NewProjectReconciler(repo, zap.NewNop()),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	r, err := router.New(gate)
	require.NoError(t, err)

	sink := quarantineDiscard{}
	h := kafka_handler.NewSalesEventHandler(db.DB, r, sink,
		retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, metrics.New(), zap.NewNop())

	stream := newFakeStream()
	svc := NewService(&fakeSubscriber{stream: stream}, h, time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, svc.Start(context.Background()))

	stream.msgs <- msgAt(7, `{"object_type":"Project","event_id":"P1","name":"in flight"}`)
	<-gate.entered

	stopped := make(chan error, 1)
	go func() { stopped <- svc.Stop(context.Background()) }()
	require.Eventually(t, func() bool { return svc.State() == StateStopping }, 2*time.Second, time.Millisecond)

	close(gate.release)
	require.NoError(t, <-stopped)

	p, found, err := repo.FindByEventIDTx(context.Background(), db, "P1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "in flight", *p.Name)
	assert.Equal(t, []int64{7}, stream.committed())
	assert.True(t, stream.isClosed())
}

type quarantineDiscard struct{}

func (quarantineDiscard) Append(context.Context, domain.QuarantineEntry) error { return nil }

func TestState_String(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "State(9)", State(9).String())
}
