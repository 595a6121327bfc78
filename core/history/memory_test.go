package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgrande/ladevakt/core/model"
)

func TestMemoryStoreQueryAndLatest(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveSnapshot(ctx, model.Status{
			VehicleID:      "a",
			BatteryPercent: float64(50 + i),
			CapturedAt:     base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.SaveSnapshot(ctx, model.Status{
		VehicleID: "b", BatteryPercent: 80, CapturedAt: base,
	}))

	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	// Newest first.
	assert.Equal(t, 52.0, all[0].BatteryPercent)

	onlyA, err := s.Query(ctx, Query{VehicleID: "a"})
	require.NoError(t, err)
	assert.Len(t, onlyA, 3)

	recent, err := s.Query(ctx, Query{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	latest, ok, err := s.Latest(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 52.0, latest.BatteryPercent)

	_, ok, err = s.Latest(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveSnapshot(ctx, model.Status{VehicleID: "a", CapturedAt: base}))
	require.NoError(t, s.SaveSnapshot(ctx, model.Status{VehicleID: "a", CapturedAt: base.Add(48 * time.Hour)}))
	require.NoError(t, s.SaveRecommendation(ctx, model.Recommendation{VehicleID: "a", CreatedAt: base}))
	require.NoError(t, s.SaveRecommendation(ctx, model.Recommendation{VehicleID: "a", CreatedAt: base.Add(48 * time.Hour)}))

	require.NoError(t, s.DeleteOlderThan(ctx, base.Add(24*time.Hour)))

	remaining, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
	assert.Len(t, s.Recommendations(), 1)
}

func TestMemoryStoreErrors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.SaveError(ctx, "tesla", "auth_error", "token expired"))
	errs := s.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "tesla", errs[0].Source)
	assert.Equal(t, "auth_error", errs[0].Kind)
}
