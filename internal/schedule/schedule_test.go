package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- IsDue ----------

func TestIsDue_NeverSucceeded(t *testing.T) {
	due, err := IsDue("0 2 * * *", time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), time.Time{})
	require.NoError(t, err)
	assert.True(t, due)
}

func TestIsDue_BoundaryCrossed(t *testing.T) {
	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lastSuccess := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	due, err := IsDue("0 2 * * *", ref, lastSuccess)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestIsDue_NoBoundarySinceSuccess(t *testing.T) {
	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lastSuccess := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	due, err := IsDue("0 2 * * *", ref, lastSuccess)
	require.NoError(t, err)
	assert.False(t, due)
}

// A down system that missed a trigger is still due on the next evaluation:
// the decision depends on boundaries crossed, not elapsed minutes.
func TestIsDue_MissedTriggerCaughtUp(t *testing.T) {
	ref := time.Date(2026, 3, 12, 23, 0, 0, 0, time.UTC)
	lastSuccess := time.Date(2026, 3, 9, 2, 0, 0, 0, time.UTC)

	due, err := IsDue("0 2 * * *", ref, lastSuccess)
	require.NoError(t, err)
	assert.True(t, due)
}

// Two last-success times with no trigger boundary between them yield the same
// verdict.
func TestIsDue_MonotonicBetweenBoundaries(t *testing.T) {
	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	t1 := time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)
	t2 := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)

	due1, err := IsDue("0 2 * * *", ref, t1)
	require.NoError(t, err)
	due2, err := IsDue("0 2 * * *", ref, t2)
	require.NoError(t, err)
	assert.Equal(t, due1, due2)
}

func TestIsDue_InvalidExpression(t *testing.T) {
	_, err := IsDue("not a schedule", time.Now(), time.Time{})
	require.Error(t, err)
}

// ---------- PrevTrigger ----------

func TestPrevTrigger_Daily(t *testing.T) {
	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	prev, err := PrevTrigger("0 2 * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), prev)
}

func TestPrevTrigger_BeforeTodaysBoundary(t *testing.T) {
	ref := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)

	prev, err := PrevTrigger("0 2 * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 9, 2, 0, 0, 0, time.UTC), prev)
}

func TestPrevTrigger_ExactBoundary(t *testing.T) {
	ref := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)

	prev, err := PrevTrigger("0 2 * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, ref, prev)
}

func TestPrevTrigger_Monthly(t *testing.T) {
	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	prev, err := PrevTrigger("0 0 1 * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), prev)
}

func TestPrevTrigger_Weekly(t *testing.T) {
	// 2026-03-10 is a Tuesday; the previous Sunday 04:00 is 2026-03-08.
	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	prev, err := PrevTrigger("0 4 * * 0", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 8, 4, 0, 0, 0, time.UTC), prev)
}

func TestPrevTrigger_ImpossibleDate(t *testing.T) {
	prev, err := PrevTrigger("0 0 31 2 *", time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, prev.IsZero())
}

// ---------- MinAcceptable ----------

func TestMinAcceptable_SubtractsTolerance(t *testing.T) {
	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	min, err := MinAcceptable("0 0 * * *", ref, 2)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), min)
}

func TestMinAcceptable_ImpossibleDate(t *testing.T) {
	min, err := MinAcceptable("0 0 31 2 *", time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), 2)
	require.NoError(t, err)
	assert.True(t, min.IsZero())
}
