package store

import (
	"context"
	"errors"
	"time"

	"github.com/Harshitk-cp/lqe"
	"github.com/Harshitk-cp/lqe/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const signalColumns = `id, tenant_id, external_id, name, metadata, estimate, variance,
	observation_count, version, last_observed_at, created_at, updated_at`

type SignalStore struct {
	db *pgxpool.Pool
}

func NewSignalStore(db *pgxpool.Pool) *SignalStore {
	return &SignalStore{db: db}
}

func (s *SignalStore) Create(ctx context.Context, sig *domain.Signal) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO signals (tenant_id, external_id, name, metadata, estimate, variance)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, observation_count, version, created_at, updated_at`,
		sig.TenantID, sig.ExternalID, sig.Name, sig.Metadata, sig.Estimate, sig.Variance,
	).Scan(&sig.ID, &sig.ObservationCount, &sig.Version, &sig.CreatedAt, &sig.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *SignalStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Signal, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	return scanSignal(row)
}

func (s *SignalStore) GetByExternalID(ctx context.Context, externalID string, tenantID uuid.UUID) (*domain.Signal, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE external_id = $1 AND tenant_id = $2`,
		externalID, tenantID,
	)
	return scanSignal(row)
}

func (s *SignalStore) List(ctx context.Context, tenantID uuid.UUID, opts domain.ListOpts) ([]domain.Signal, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+signalColumns+` FROM signals
		 WHERE tenant_id = $1
		 ORDER BY created_at, id
		 LIMIT $2 OFFSET $3`,
		tenantID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, *sig)
	}
	return signals, rows.Err()
}

// UpdateBelief writes the new belief only if nobody else has written the
// signal's belief since the caller read it.
func (s *SignalStore) UpdateBelief(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, u domain.BeliefUpdate) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE signals
		 SET estimate = $1, variance = $2, observation_count = $3, last_observed_at = $4,
		     version = version + 1, updated_at = NOW()
		 WHERE id = $5 AND tenant_id = $6 AND version = $7`,
		u.Belief.Estimate, u.Belief.Variance, u.NewCount, u.ObservedAt, id, tenantID, u.ExpectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrStale(ctx, id, tenantID)
	}
	return nil
}

func (s *SignalStore) ResetBelief(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, b lqe.Belief) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE signals
		 SET estimate = $1, variance = $2, observation_count = 0, last_observed_at = NULL,
		     version = version + 1, updated_at = NOW()
		 WHERE id = $3 AND tenant_id = $4`,
		b.Estimate, b.Variance, id, tenantID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SignalStore) Delete(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM signals WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SignalStore) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM signals WHERE COALESCE(last_observed_at, created_at) < $1`,
		before,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *SignalStore) missingOrStale(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM signals WHERE id = $1 AND tenant_id = $2)`,
		id, tenantID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func scanSignal(row pgx.Row) (*domain.Signal, error) {
	sig := &domain.Signal{}
	err := row.Scan(&sig.ID, &sig.TenantID, &sig.ExternalID, &sig.Name, &sig.Metadata,
		&sig.Estimate, &sig.Variance, &sig.ObservationCount, &sig.Version, &sig.LastObservedAt,
		&sig.CreatedAt, &sig.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sig, nil
}
