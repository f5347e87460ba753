package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/Harshitk-cp/lqe"
	"github.com/Harshitk-cp/lqe/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, false},
		{"plain error", errors.New("duplicate key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

// openTestPool connects to LQE_TEST_DATABASE_URL and applies the schema.
// Tests are skipped when it is unset.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("LQE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LQE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	files, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*.sql"))
	require.NoError(t, err)
	sort.Strings(files)
	for _, f := range files {
		sql, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err, f)
	}
	return pool
}

func createTestTenant(t *testing.T, pool *pgxpool.Pool) *domain.Tenant {
	t.Helper()
	tenant := &domain.Tenant{Name: "acme", APIKeyHash: uuid.NewString()}
	require.NoError(t, NewTenantStore(pool).Create(context.Background(), tenant))
	return tenant
}

func TestTenantStore_Postgres(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	ts := NewTenantStore(pool)

	tenant := createTestTenant(t, pool)

	got, err := ts.GetByAPIKeyHash(ctx, tenant.APIKeyHash)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)

	_, err = ts.GetByAPIKeyHash(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	err = ts.Create(ctx, &domain.Tenant{Name: "dup", APIKeyHash: tenant.APIKeyHash})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSignalStore_PostgresCompareAndSwap(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	tenant := createTestTenant(t, pool)
	ss := NewSignalStore(pool)

	sig := &domain.Signal{TenantID: tenant.ID, ExternalID: "s", Name: "s", Metadata: map[string]any{"unit": "C"}, Estimate: 3.0, Variance: 2.0}
	require.NoError(t, ss.Create(ctx, sig))
	assert.ErrorIs(t, ss.Create(ctx, &domain.Signal{TenantID: tenant.ID, ExternalID: "s", Name: "dup"}), ErrConflict)

	read, err := ss.GetByID(ctx, sig.ID, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "C", read.Metadata["unit"])

	observedAt := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, ss.UpdateBelief(ctx, sig.ID, tenant.ID, domain.BeliefUpdate{
		ExpectedVersion: read.Version, NewCount: 1, Belief: read.Belief().Step(5.0, 3.0), ObservedAt: observedAt,
	}))

	got, err := ss.GetByID(ctx, sig.ID, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, lqe.New(6.125, 3.0), got.Belief())
	assert.Equal(t, read.Version+1, got.Version)

	// stale version on an existing row
	err = ss.UpdateBelief(ctx, sig.ID, tenant.ID, domain.BeliefUpdate{ExpectedVersion: read.Version, NewCount: 1})
	assert.ErrorIs(t, err, ErrConflict)

	// missing row
	err = ss.UpdateBelief(ctx, uuid.New(), tenant.ID, domain.BeliefUpdate{NewCount: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	// other tenant
	err = ss.UpdateBelief(ctx, sig.ID, uuid.New(), domain.BeliefUpdate{ExpectedVersion: got.Version, NewCount: 2})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSignalStore_PostgresStaleUpdateAfterResetConflicts(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	tenant := createTestTenant(t, pool)
	ss := NewSignalStore(pool)

	sig := &domain.Signal{TenantID: tenant.ID, ExternalID: "s", Name: "s", Estimate: 3.0, Variance: 2.0}
	require.NoError(t, ss.Create(ctx, sig))

	read, err := ss.GetByID(ctx, sig.ID, tenant.ID)
	require.NoError(t, err)
	require.NoError(t, ss.ResetBelief(ctx, sig.ID, tenant.ID, lqe.New(100, 1)))

	err = ss.UpdateBelief(ctx, sig.ID, tenant.ID, domain.BeliefUpdate{
		ExpectedVersion: read.Version, NewCount: 1, Belief: read.Belief().Step(5.0, 3.0), ObservedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := ss.GetByID(ctx, sig.ID, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, lqe.New(100, 1), got.Belief())

	assert.ErrorIs(t, ss.ResetBelief(ctx, uuid.New(), tenant.ID, lqe.New(0, 1)), ErrNotFound)
	require.NoError(t, ss.Delete(ctx, sig.ID, tenant.ID))
	assert.ErrorIs(t, ss.Delete(ctx, sig.ID, tenant.ID), ErrNotFound)
}

func TestSignalStore_PostgresDeleteStale(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	tenant := createTestTenant(t, pool)
	ss := NewSignalStore(pool)

	old := &domain.Signal{TenantID: tenant.ID, ExternalID: "old", Name: "old", Variance: 1}
	fresh := &domain.Signal{TenantID: tenant.ID, ExternalID: "fresh", Name: "fresh", Variance: 1}
	require.NoError(t, ss.Create(ctx, old))
	require.NoError(t, ss.Create(ctx, fresh))
	_, err := pool.Exec(ctx, `UPDATE signals SET created_at = NOW() - INTERVAL '10 days' WHERE id = $1`, old.ID)
	require.NoError(t, err)

	n, err := ss.DeleteStale(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	_, err = ss.GetByID(ctx, old.ID, tenant.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = ss.GetByID(ctx, fresh.ID, tenant.ID)
	assert.NoError(t, err)
}
