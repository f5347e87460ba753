package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/lqe/internal/domain"
	"github.com/Harshitk-cp/lqe/internal/metrics"
	"go.uber.org/zap"
)

const (
	defaultExpirerInterval = 1 * time.Hour
	defaultSignalRetention = 30 * 24 * time.Hour
)

// ExpirerService deletes signals that have gone without observations for
// longer than the retention period.
type ExpirerService struct {
	store   domain.SignalStore
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewExpirerService(s domain.SignalStore, m *metrics.Metrics, logger *zap.Logger) *ExpirerService {
	return &ExpirerService{
		store:     s,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		interval:  defaultExpirerInterval,
		retention: defaultSignalRetention,
		stopCh:    make(chan struct{}),
	}
}

func (s *ExpirerService) SetInterval(d time.Duration) {
	s.interval = d
}

// SetRetention sets the idle period after which a signal expires.
// Zero disables expiry.
func (s *ExpirerService) SetRetention(d time.Duration) {
	s.retention = d
}

// Start runs the expirer on a periodic schedule in a background goroutine.
func (s *ExpirerService) Start() {
	if s.retention <= 0 {
		s.logger.Info("signal expirer disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("signal expirer started",
			zap.Duration("interval", s.interval),
			zap.Duration("retention", s.retention))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger.Error("failed to delete stale signals", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				s.logger.Info("signal expirer stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the expirer. It is safe to call more than once.
func (s *ExpirerService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// RunOnce deletes every signal idle for longer than the retention and
// returns how many were removed.
func (s *ExpirerService) RunOnce(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.store.DeleteStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.metrics.Expired(deleted)
		s.logger.Info("deleted stale signals",
			zap.Int64("count", deleted),
			zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}
