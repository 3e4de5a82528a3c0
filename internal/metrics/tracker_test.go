package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerCountsSuccessesAndFailures(t *testing.T) {
	tr := NewTracker()
	tr.Record("m1", 100*time.Millisecond, true)
	tr.Record("m1", 300*time.Millisecond, false)
	tr.Record("m2", 50*time.Millisecond, true)

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, int64(2), snap["m1"].TotalRequests)
	assert.Equal(t, int64(1), snap["m1"].Errors)
	assert.InDelta(t, 200.0, snap["m1"].AvgLatencyMs, 0.01)
	assert.Equal(t, int64(0), snap["m2"].Errors)
}

func TestTrackerEntriesAreLazy(t *testing.T) {
	tr := NewTracker()
	assert.Empty(t, tr.Snapshot())

	tr.Record("m1", time.Millisecond, true)
	assert.Len(t, tr.Snapshot(), 1)
}

func TestSnapshotIsACopy(t *testing.T) {
	tr := NewTracker()
	tr.Record("m1", time.Millisecond, true)

	snap := tr.Snapshot()
	snap["m1"] = Snapshot{TotalRequests: 999}

	assert.Equal(t, int64(1), tr.Snapshot()["m1"].TotalRequests)
}
