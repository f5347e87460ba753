package domain

import (
	"context"
	"time"

	"github.com/Harshitk-cp/lqe"
	"github.com/google/uuid"
)

type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*Tenant, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}

// BeliefUpdate is a compare-and-swap write of a signal's belief. It only
// applies while the stored version equals ExpectedVersion. Every belief
// write, resets included, bumps the version.
type BeliefUpdate struct {
	ExpectedVersion int64
	NewCount        int64
	Belief          lqe.Belief
	ObservedAt      time.Time
}

type SignalStore interface {
	Create(ctx context.Context, s *Signal) error
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*Signal, error)
	GetByExternalID(ctx context.Context, externalID string, tenantID uuid.UUID) (*Signal, error)
	List(ctx context.Context, tenantID uuid.UUID, opts ListOpts) ([]Signal, error)
	UpdateBelief(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, u BeliefUpdate) error
	ResetBelief(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, b lqe.Belief) error
	Delete(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
	// DeleteStale removes signals whose last activity is before the cutoff.
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
