package plans

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

func validRequest() *CreatePlanRequest {
	return &CreatePlanRequest{
		Name:           "pro-monthly",
		Asset:          "usdc",
		Price:          10,
		Interval:       30 * 24 * time.Hour,
		MaxSubscribers: 2,
	}
}

func TestCreatePlanValidation(t *testing.T) {
	svc := NewMemoryService(nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreatePlanRequest)
	}{
		{"empty name", func(r *CreatePlanRequest) { r.Name = "" }},
		{"unsupported asset", func(r *CreatePlanRequest) { r.Asset = "doge" }},
		{"zero price", func(r *CreatePlanRequest) { r.Price = 0 }},
		{"negative price", func(r *CreatePlanRequest) { r.Price = -5 }},
		{"zero interval", func(r *CreatePlanRequest) { r.Interval = 0 }},
		{"zero capacity", func(r *CreatePlanRequest) { r.MaxSubscribers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			_, err := svc.CreatePlan(ctx, req)
			require.Error(t, err)
			assert.True(t, errdefs.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestCreatePlanAssignsSequentialIDs(t *testing.T) {
	svc := NewMemoryService(nil)
	ctx := context.Background()

	first, err := svc.CreatePlan(ctx, validRequest())
	require.NoError(t, err)
	second, err := svc.CreatePlan(ctx, validRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.True(t, first.Active)
	assert.Equal(t, 0, first.CurrentSubscribers)
}

func TestGetPlanNotFound(t *testing.T) {
	svc := NewMemoryService(nil)
	_, err := svc.GetPlan(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestPauseResume(t *testing.T) {
	svc := NewMemoryService(nil)
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Pause(ctx, plan.ID))
	got, err := svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// A paused plan rejects new slots
	err = svc.AcquireSlot(ctx, plan.ID)
	require.Error(t, err)
	assert.True(t, errdefs.IsConflict(err))

	require.NoError(t, svc.Resume(ctx, plan.ID))
	require.NoError(t, svc.AcquireSlot(ctx, plan.ID))
}

func TestAcquireSlotCapacity(t *testing.T) {
	svc := NewMemoryService(nil)
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, validRequest()) // capacity 2
	require.NoError(t, err)

	require.NoError(t, svc.AcquireSlot(ctx, plan.ID))
	require.NoError(t, svc.AcquireSlot(ctx, plan.ID))

	err = svc.AcquireSlot(ctx, plan.ID)
	require.Error(t, err)
	assert.True(t, errdefs.IsConflict(err))

	got, err := svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentSubscribers)

	require.NoError(t, svc.ReleaseSlot(ctx, plan.ID))
	require.NoError(t, svc.AcquireSlot(ctx, plan.ID))
}

func TestAcquireSlotConcurrentNeverOversubscribes(t *testing.T) {
	svc := NewMemoryService(nil)
	ctx := context.Background()

	req := validRequest()
	req.MaxSubscribers = 10
	plan, err := svc.CreatePlan(ctx, req)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.AcquireSlot(ctx, plan.ID); err == nil {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, acquired)
	got, err := svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.CurrentSubscribers)
}

func TestReleaseSlotUnderflow(t *testing.T) {
	svc := NewMemoryService(nil)
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, validRequest())
	require.NoError(t, err)

	err = svc.ReleaseSlot(ctx, plan.ID)
	require.Error(t, err)
	assert.True(t, errdefs.IsConflict(err))
}

func TestListPlansOrderedByID(t *testing.T) {
	svc := NewMemoryService(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreatePlan(ctx, validRequest())
		require.NoError(t, err)
	}

	listed, err := svc.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, p := range listed {
		assert.Equal(t, int64(i+1), p.ID)
	}
}
