package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Harshitk-cp/lqe"
	"github.com/Harshitk-cp/lqe/internal/domain"
	"github.com/Harshitk-cp/lqe/internal/metrics"
	"github.com/Harshitk-cp/lqe/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMaxBatch = 1000

	// Attempts at a compare-and-swap belief write before giving up.
	maxUpdateAttempts = 3
)

var (
	ErrSignalNotFound      = errors.New("signal not found")
	ErrSignalConflict      = errors.New("signal with this external_id already exists")
	ErrSignalExternalID    = errors.New("external_id is required")
	ErrSignalName          = errors.New("name is required")
	ErrInvalidBelief       = errors.New("invalid belief")
	ErrInvalidObservation  = errors.New("invalid observation")
	ErrNoObservations      = errors.New("at least one observation is required")
	ErrTooManyObservations = errors.New("too many observations in one request")
	ErrConcurrentUpdate    = errors.New("signal was updated concurrently, retry")
)

type SignalService struct {
	store   domain.SignalStore
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	MaxBatch               int
	RejectNegativeVariance bool
}

func NewSignalService(s domain.SignalStore, m *metrics.Metrics, logger *zap.Logger) *SignalService {
	return &SignalService{
		store:                  s,
		metrics:                m,
		logger:                 logger,
		now:                    time.Now,
		MaxBatch:               DefaultMaxBatch,
		RejectNegativeVariance: true,
	}
}

func (s *SignalService) Create(ctx context.Context, sig *domain.Signal) error {
	if sig.ExternalID == "" {
		return ErrSignalExternalID
	}
	if sig.Name == "" {
		return ErrSignalName
	}
	if err := s.checkBelief(sig.Belief()); err != nil {
		return err
	}

	if err := s.store.Create(ctx, sig); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrSignalConflict
		}
		return err
	}

	s.logger.Debug("signal created",
		zap.String("signal_id", sig.ID.String()),
		zap.String("external_id", sig.ExternalID),
		zap.Stringer("belief", sig.Belief()))
	return nil
}

func (s *SignalService) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Signal, error) {
	sig, err := s.store.GetByID(ctx, id, tenantID)
	if err != nil {
		return nil, notFound(err)
	}
	return sig, nil
}

func (s *SignalService) List(ctx context.Context, tenantID uuid.UUID, opts domain.ListOpts) ([]domain.Signal, error) {
	if opts.Limit <= 0 || opts.Limit > 500 {
		opts.Limit = 50
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return s.store.List(ctx, tenantID, opts)
}

func (s *SignalService) Delete(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	return notFound(s.store.Delete(ctx, id, tenantID))
}

// Observe folds the observations, in order, into the signal's belief and
// persists the posterior. Concurrent writers, resets included, are detected
// through the signal's version; the losing write is recomputed from the
// fresh belief.
func (s *SignalService) Observe(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, obs ...lqe.Observation) (*domain.Signal, error) {
	if err := s.checkBatch(obs); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		sig, err := s.store.GetByID(ctx, id, tenantID)
		if err != nil {
			return nil, notFound(err)
		}

		prior := sig.Belief()
		posterior := lqe.Run(prior, obs...)
		if err := checkPosterior(posterior); err != nil {
			return nil, err
		}

		observedAt := s.now().UTC().Truncate(time.Millisecond)
		update := domain.BeliefUpdate{
			ExpectedVersion: sig.Version,
			NewCount:        sig.ObservationCount + int64(len(obs)),
			Belief:          posterior,
			ObservedAt:      observedAt,
		}

		err = s.store.UpdateBelief(ctx, id, tenantID, update)
		if errors.Is(err, store.ErrConflict) {
			s.metrics.Conflict()
			s.logger.Debug("belief update lost race, retrying",
				zap.String("signal_id", id.String()),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, notFound(err)
		}

		sig.SetBelief(posterior)
		sig.ObservationCount = update.NewCount
		sig.Version++
		sig.LastObservedAt = &observedAt
		sig.UpdatedAt = observedAt

		s.metrics.ObserveStep(len(obs), posterior.Variance)
		s.logger.Debug("observations applied",
			zap.String("signal_id", id.String()),
			zap.Int("count", len(obs)),
			zap.Stringer("prior", prior),
			zap.Stringer("posterior", posterior))
		return sig, nil
	}

	return nil, ErrConcurrentUpdate
}

// Reset replaces the signal's belief and clears its observation count.
func (s *SignalService) Reset(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, b lqe.Belief) (*domain.Signal, error) {
	if err := s.checkBelief(b); err != nil {
		return nil, err
	}
	if err := s.store.ResetBelief(ctx, id, tenantID, b); err != nil {
		return nil, notFound(err)
	}
	s.logger.Info("signal belief reset",
		zap.String("signal_id", id.String()),
		zap.Stringer("belief", b))
	return s.GetByID(ctx, id, tenantID)
}

// PreviewFuse returns what fusing the observation with the stored belief
// would give, without persisting anything.
func (s *SignalService) PreviewFuse(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, o lqe.Observation) (lqe.Belief, error) {
	return s.preview(ctx, id, tenantID, o, func(b lqe.Belief) lqe.Belief {
		return lqe.New(b.Fuse(o.Measurement, o.Variance))
	})
}

func (s *SignalService) PreviewEvolve(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, o lqe.Observation) (lqe.Belief, error) {
	return s.preview(ctx, id, tenantID, o, func(b lqe.Belief) lqe.Belief {
		return lqe.New(b.Evolve(o.Measurement, o.Variance))
	})
}

func (s *SignalService) PreviewStep(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, o lqe.Observation) (lqe.Belief, error) {
	return s.preview(ctx, id, tenantID, o, func(b lqe.Belief) lqe.Belief {
		return b.Step(o.Measurement, o.Variance)
	})
}

func (s *SignalService) preview(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, o lqe.Observation, f func(lqe.Belief) lqe.Belief) (lqe.Belief, error) {
	if err := s.checkObservation(o); err != nil {
		return lqe.Belief{}, err
	}
	sig, err := s.GetByID(ctx, id, tenantID)
	if err != nil {
		return lqe.Belief{}, err
	}
	b := f(sig.Belief())
	if err := checkPosterior(b); err != nil {
		return lqe.Belief{}, err
	}
	return b, nil
}

// Smooth runs the observations through a fresh estimator seeded with
// initial and returns every posterior. Nothing is stored.
func (s *SignalService) Smooth(initial lqe.Belief, obs []lqe.Observation) ([]lqe.Belief, error) {
	if err := s.checkBelief(initial); err != nil {
		return nil, err
	}
	if err := s.checkBatch(obs); err != nil {
		return nil, err
	}
	traj := lqe.Trajectory(initial, obs...)
	for i, b := range traj {
		if err := checkPosterior(b); err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
	}
	return traj, nil
}

func (s *SignalService) checkBatch(obs []lqe.Observation) error {
	if len(obs) == 0 {
		return ErrNoObservations
	}
	if s.MaxBatch > 0 && len(obs) > s.MaxBatch {
		return fmt.Errorf("%w: %d > %d", ErrTooManyObservations, len(obs), s.MaxBatch)
	}
	for i, o := range obs {
		if err := s.checkObservation(o); err != nil {
			return fmt.Errorf("observation %d: %w", i, err)
		}
	}
	return nil
}

func (s *SignalService) checkObservation(o lqe.Observation) error {
	if !finite(o.Measurement) || !finite(o.Variance) {
		return fmt.Errorf("%w: measurement and variance must be finite", ErrInvalidObservation)
	}
	if s.RejectNegativeVariance && o.Variance < 0 {
		return fmt.Errorf("%w: variance must not be negative", ErrInvalidObservation)
	}
	return nil
}

func (s *SignalService) checkBelief(b lqe.Belief) error {
	if !finite(b.Estimate) || !finite(b.Variance) {
		return fmt.Errorf("%w: estimate and variance must be finite", ErrInvalidBelief)
	}
	if s.RejectNegativeVariance && b.Variance < 0 {
		return fmt.Errorf("%w: variance must not be negative", ErrInvalidBelief)
	}
	return nil
}

// checkPosterior rejects results that cannot be stored or encoded, such as
// fusing two zero variances.
func checkPosterior(b lqe.Belief) error {
	if !finite(b.Estimate) || !finite(b.Variance) {
		return fmt.Errorf("%w: posterior %v is not finite", ErrInvalidObservation, b)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrSignalNotFound
	}
	return err
}
