package notification

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rdss/casework/internal/shared/metrics"
)

// Service is a bounded worker pool delivering notifications through the
// configured providers. Enqueue never blocks: when the queue is full the
// notification is dropped and logged, keeping the producing mutation fast.
type Service struct {
	providers []Provider
	queue     chan Notification
	logger    *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewService creates a notification service with the given worker pool
// size and queue capacity.
func NewService(providers []Provider, workers, bufferSize int, logger *zap.Logger) *Service {
	if workers <= 0 {
		workers = 1
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		providers: providers,
		queue:     make(chan Notification, bufferSize),
		logger:    logger,
		cancel:    cancel,
	}

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	return s
}

// Enqueue hands a notification to the pool. Returns false when the queue is
// full and the notification was dropped.
func (s *Service) Enqueue(n Notification) bool {
	select {
	case s.queue <- n:
		return true
	default:
		s.logger.Warn("notification queue full, dropping",
			zap.String("event_type", n.EventType),
			zap.String("case_id", n.CaseID.String()))
		metrics.RecordNotificationFailure("queue")
		return false
	}
}

// Close stops the workers after draining the queue
func (s *Service) Close() {
	close(s.queue)
	s.wg.Wait()
	s.cancel()
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for n := range s.queue {
		s.deliver(ctx, n)
	}
}

func (s *Service) deliver(ctx context.Context, n Notification) {
	for _, p := range s.providers {
		if err := p.Send(ctx, n); err != nil {
			s.logger.Warn("notification delivery failed",
				zap.String("provider", p.Name()),
				zap.String("event_type", n.EventType),
				zap.String("case_id", n.CaseID.String()),
				zap.Error(err))
			metrics.RecordNotificationFailure(p.Name())
		}
	}
}
