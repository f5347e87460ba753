package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/Harshitk-cp/lqe"
	"github.com/Harshitk-cp/lqe/internal/domain"
	"github.com/Harshitk-cp/lqe/internal/store"
	"github.com/google/uuid"
)

const signalColumns = `id, tenant_id, external_id, name, metadata, estimate, variance,
	observation_count, version, last_observed_at, created_at, updated_at`

type SignalStore struct {
	db *sql.DB
}

func (s *SignalStore) Create(ctx context.Context, sig *domain.Signal) error {
	meta, err := encodeMetadata(sig.Metadata)
	if err != nil {
		return err
	}
	id := uuid.New()
	now := time.Now().UTC().Truncate(time.Millisecond)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO signals (id, tenant_id, external_id, name, metadata, estimate, variance, observation_count, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		id.String(), sig.TenantID.String(), sig.ExternalID, sig.Name, meta,
		sig.Estimate, sig.Variance, toMillis(now), toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	sig.ID = id
	sig.ObservationCount = 0
	sig.Version = 0
	sig.CreatedAt = now
	sig.UpdatedAt = now
	return nil
}

func (s *SignalStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Signal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE id = ? AND tenant_id = ?`,
		id.String(), tenantID.String(),
	)
	return scanSignal(row)
}

func (s *SignalStore) GetByExternalID(ctx context.Context, externalID string, tenantID uuid.UUID) (*domain.Signal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE external_id = ? AND tenant_id = ?`,
		externalID, tenantID.String(),
	)
	return scanSignal(row)
}

func (s *SignalStore) List(ctx context.Context, tenantID uuid.UUID, opts domain.ListOpts) ([]domain.Signal, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+signalColumns+` FROM signals
		 WHERE tenant_id = ?
		 ORDER BY created_at, id
		 LIMIT ? OFFSET ?`,
		tenantID.String(), opts.Limit, opts.Offset,
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

func (s *SignalStore) UpdateBelief(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, u domain.BeliefUpdate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE signals
		 SET estimate = ?, variance = ?, observation_count = ?, last_observed_at = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND tenant_id = ? AND version = ?`,
		u.Belief.Estimate, u.Belief.Variance, u.NewCount, toMillis(u.ObservedAt), toMillis(time.Now()),
		id.String(), tenantID.String(), u.ExpectedVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetByID(ctx, id, tenantID); err != nil {
			return err
		}
		return store.ErrConflict
	}
	return nil
}

func (s *SignalStore) ResetBelief(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, b lqe.Belief) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE signals
		 SET estimate = ?, variance = ?, observation_count = 0, last_observed_at = NULL,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND tenant_id = ?`,
		b.Estimate, b.Variance, toMillis(time.Now()), id.String(), tenantID.String(),
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SignalStore) Delete(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM signals WHERE id = ? AND tenant_id = ?`,
		id.String(), tenantID.String(),
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SignalStore) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM signals WHERE COALESCE(last_observed_at, created_at) < ?`,
		toMillis(before),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (*domain.Signal, error) {
	var (
		sig                  domain.Signal
		id, tenantID         string
		meta                 sql.NullString
		lastObserved         sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&id, &tenantID, &sig.ExternalID, &sig.Name, &meta,
		&sig.Estimate, &sig.Variance, &sig.ObservationCount, &sig.Version, &lastObserved,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if sig.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if sig.TenantID, err = uuid.Parse(tenantID); err != nil {
		return nil, err
	}
	if sig.Metadata, err = decodeMetadata(meta); err != nil {
		return nil, err
	}
	if lastObserved.Valid {
		t := fromMillis(lastObserved.Int64)
		sig.LastObservedAt = &t
	}
	sig.CreatedAt = fromMillis(createdAt)
	sig.UpdatedAt = fromMillis(updatedAt)
	return &sig, nil
}
