package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Harshitk-cp/lqe/internal/domain"
	"github.com/Harshitk-cp/lqe/internal/metrics"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExpirerService_RunOnce(t *testing.T) {
	fs := newFakeSignalStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tenantID := uuid.New()

	stale := &domain.Signal{TenantID: tenantID, ExternalID: "stale", Name: "stale", Variance: 1}
	idle := &domain.Signal{TenantID: tenantID, ExternalID: "idle", Name: "idle", Variance: 1}
	active := &domain.Signal{TenantID: tenantID, ExternalID: "active", Name: "active", Variance: 1}
	for _, s := range []*domain.Signal{stale, idle, active} {
		require.NoError(t, fs.Create(ctx, s))
	}
	observed := now.Add(-time.Hour)
	fs.signals[stale.ID].CreatedAt = now.Add(-48 * time.Hour)
	fs.signals[idle.ID].CreatedAt = now.Add(-72 * time.Hour)
	fs.signals[idle.ID].LastObservedAt = &observed
	fs.signals[active.ID].CreatedAt = now.Add(-time.Minute)

	m, err := metrics.NewDefault()
	require.NoError(t, err)

	svc := NewExpirerService(fs, m, zap.NewNop())
	svc.now = func() time.Time { return now }
	svc.SetRetention(24 * time.Hour)

	deleted, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = fs.GetByID(ctx, stale.ID, tenantID)
	assert.Error(t, err, "never-observed signal past retention is removed")
	_, err = fs.GetByID(ctx, idle.ID, tenantID)
	assert.NoError(t, err, "recent observation keeps an old signal alive")
	_, err = fs.GetByID(ctx, active.ID, tenantID)
	assert.NoError(t, err)
}

func TestExpirerService_DisabledRetention(t *testing.T) {
	ms := new(MockSignalStore)
	svc := NewExpirerService(ms, nil, zap.NewNop())
	svc.SetRetention(0)

	deleted, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)

	// Start is a no-op and Stop must not block.
	svc.Start()
	svc.Stop()
	ms.AssertNotCalled(t, "DeleteStale")
}

func TestExpirerService_PropagatesStoreErrors(t *testing.T) {
	ms := new(MockSignalStore)
	ctx := context.Background()
	boom := errors.New("db down")
	ms.On("DeleteStale", ctx, mock.AnythingOfType("time.Time")).Return(int64(0), boom)

	svc := NewExpirerService(ms, nil, zap.NewNop())
	_, err := svc.RunOnce(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestExpirerService_StartStop(t *testing.T) {
	fs := newFakeSignalStore()
	svc := NewExpirerService(fs, nil, zap.NewNop())
	svc.SetInterval(5 * time.Millisecond)
	svc.SetRetention(time.Hour)

	svc.Start()
	time.Sleep(20 * time.Millisecond)
	svc.Stop()
	svc.Stop()
}
