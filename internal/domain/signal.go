package domain

import (
	"time"

	"github.com/Harshitk-cp/lqe"
	"github.com/google/uuid"
)

// Signal is a named, persisted estimator. Its belief is the posterior after
// ObservationCount observations; no history is kept.
type Signal struct {
	ID               uuid.UUID      `json:"id"`
	TenantID         uuid.UUID      `json:"tenant_id,omitempty"`
	ExternalID       string         `json:"external_id"`
	Name             string         `json:"name"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Estimate         float64        `json:"estimate"`
	Variance         float64        `json:"variance"`
	ObservationCount int64          `json:"observation_count"`
	Version          int64          `json:"version"`
	LastObservedAt   *time.Time     `json:"last_observed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (s *Signal) Belief() lqe.Belief {
	return lqe.Belief{Estimate: s.Estimate, Variance: s.Variance}
}

func (s *Signal) SetBelief(b lqe.Belief) {
	s.Estimate, s.Variance = b.Result()
}

// LastActivity is the last observation time, or creation time for a signal
// that has never been observed.
func (s *Signal) LastActivity() time.Time {
	if s.LastObservedAt != nil {
		return *s.LastObservedAt
	}
	return s.CreatedAt
}
