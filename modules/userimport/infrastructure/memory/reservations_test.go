package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReservations_ClaimReleaseExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewReservations(time.Minute)
	r.now = func() time.Time { return now }

	ok, err := r.Reserve(ctx, "Ana@x.io", "batch-1")
	require.NoError(t, err)
	require.True(t, ok)

	reserved, err := r.IsReserved(ctx, "ana@x.io")
	require.NoError(t, err)
	require.True(t, reserved)

	ok, err = r.Reserve(ctx, "ana@x.io", "batch-2")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, r.Release(ctx, "ana@x.io", "batch-2"))
	require.Equal(t, 1, r.Len())

	require.NoError(t, r.Release(ctx, "ana@x.io", "batch-1"))
	require.Zero(t, r.Len())

	_, err = r.Reserve(ctx, "bo@x.io", "batch-1")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	reserved, err = r.IsReserved(ctx, "bo@x.io")
	require.NoError(t, err)
	require.False(t, reserved)

	ok, err = r.Reserve(ctx, "bo@x.io", "batch-2")
	require.NoError(t, err)
	require.True(t, ok)
}
