package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/Harshitk-cp/lqe/internal/domain"
	"github.com/Harshitk-cp/lqe/internal/store"
	"github.com/google/uuid"
)

type TenantStore struct {
	db *sql.DB
}

func (s *TenantStore) Create(ctx context.Context, t *domain.Tenant) error {
	id := uuid.New()
	now := time.Now().UTC().Truncate(time.Millisecond)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, api_key_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), t.Name, t.APIKeyHash, toMillis(now), toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

func (s *TenantStore) GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*domain.Tenant, error) {
	var (
		t                    domain.Tenant
		id                   string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key_hash, created_at, updated_at FROM tenants WHERE api_key_hash = ?`,
		apiKeyHash,
	).Scan(&id, &t.Name, &t.APIKeyHash, &createdAt, &updatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return &t, nil
}
