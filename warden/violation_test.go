package warden

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddViolationReturnsAllTimeCount(t *testing.T) {
	t.Parallel()
	store := testViolationStore(t)
	ctx := context.Background()

	rule, ok := DefaultRuleSet().Get("6")
	require.True(t, ok)

	count, err := store.AddViolation(ctx, "guild-1", "user-1", rule, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.AddViolation(ctx, "guild-1", "user-1", rule, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Another user in the same guild starts from zero.
	count, err = store.AddViolation(ctx, "guild-1", "user-2", rule, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Same user in a different guild also starts from zero.
	count, err = store.AddViolation(ctx, "guild-2", "user-1", rule, "chan-9")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAddViolationRequiresIDs(t *testing.T) {
	t.Parallel()
	store := testViolationStore(t)
	rule, _ := DefaultRuleSet().Get("1")

	_, err := store.AddViolation(context.Background(), "", "user", rule, "c")
	assert.Error(t, err)
	_, err = store.AddViolation(context.Background(), "guild", "", rule, "c")
	assert.Error(t, err)
}

func TestRecentViolationsWindowBoundary(t *testing.T) {
	t.Parallel()
	store := testViolationStore(t)
	ctx := context.Background()

	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	window := 30 * 24 * time.Hour

	rule, _ := DefaultRuleSet().Get("2")

	// Record three violations at different ages by shifting the store's
	// clock: well inside the window, exactly on the boundary, and past it.
	for _, age := range []time.Duration{
		time.Hour,
		window,
		window + time.Hour,
	} {
		violationTime := now.Add(-age)
		store.nowFunc = func() time.Time { return violationTime }
		_, err := store.AddViolation(ctx, "guild-1", "user-1", rule, "chan-1")
		require.NoError(t, err)
	}

	store.nowFunc = func() time.Time { return now }
	recent, err := store.RecentViolations(ctx, "guild-1", "user-1", window)
	require.NoError(t, err)

	// A violation exactly `window` old is excluded.
	require.Len(t, recent, 1)
	assert.Equal(t, now.Add(-time.Hour).UnixMilli(), recent[0].Timestamp)

	// The all-time count still sees all three.
	count, err := store.Count(ctx, "guild-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRecentViolationsOrderedNewestFirst(t *testing.T) {
	t.Parallel()
	store := testViolationStore(t)
	ctx := context.Background()
	rule, _ := DefaultRuleSet().Get("3")

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		store.nowFunc = func() time.Time { return ts }
		_, err := store.AddViolation(ctx, "g", "u", rule, "c")
		require.NoError(t, err)
	}
	store.nowFunc = func() time.Time { return base.Add(24 * time.Hour) }

	recent, err := store.RecentViolations(ctx, "g", "u", 48*time.Hour)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.True(t, recent[0].Timestamp > recent[1].Timestamp)
	assert.True(t, recent[1].Timestamp > recent[2].Timestamp)
}

func TestResetViolations(t *testing.T) {
	t.Parallel()
	store := testViolationStore(t)
	ctx := context.Background()
	rule, _ := DefaultRuleSet().Get("4")

	// Resetting a user with no violations reports nothing deleted.
	reset, err := store.ResetViolations(ctx, "guild-1", "user-1")
	require.NoError(t, err)
	assert.False(t, reset)

	_, err = store.AddViolation(ctx, "guild-1", "user-1", rule, "c")
	require.NoError(t, err)
	_, err = store.AddViolation(ctx, "guild-1", "user-2", rule, "c")
	require.NoError(t, err)

	reset, err = store.ResetViolations(ctx, "guild-1", "user-1")
	require.NoError(t, err)
	assert.True(t, reset)

	count, err := store.Count(ctx, "guild-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// The other user's records are untouched.
	count, err = store.Count(ctx, "guild-1", "user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestWarningCounts(t *testing.T) {
	t.Parallel()
	store := testViolationStore(t)
	ctx := context.Background()

	count, err := store.WarningCountFor(ctx, "g", "u")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	for i := 1; i <= 3; i++ {
		count, err = store.IncrementWarning(ctx, "g", "u")
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	// Warning counts are per guild/user pair.
	count, err = store.IncrementWarning(ctx, "g2", "u")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	reset, err := store.ResetWarnings(ctx, "g", "u")
	require.NoError(t, err)
	assert.True(t, reset)

	count, err = store.WarningCountFor(ctx, "g", "u")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Resetting an already-zero counter is a no-op.
	reset, err = store.ResetWarnings(ctx, "g", "u")
	require.NoError(t, err)
	assert.False(t, reset)
}

func TestViolationTime(t *testing.T) {
	t.Parallel()
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	v := Violation{Timestamp: ts.UnixMilli()}
	assert.Equal(t, ts, v.Time())
}
