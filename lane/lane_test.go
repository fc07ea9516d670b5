package lane_test

import (
	"testing"

	"github.com/delaneyj/fiberparty/lane"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBandsPartitionAllLanes(t *testing.T) {
	all := lane.SyncLane | lane.InputDiscreteLanes | lane.InputContinuousLanes |
		lane.DefaultLanes | lane.TransitionLanes | lane.RetryLanes |
		lane.IdleLanes | lane.OffscreenLane
	assert.Equal(t, lane.Lanes(1<<lane.TotalLanes-1), all)
	assert.Equal(t, lane.Lanes(0), lane.NonIdleLanes&(lane.IdleLanes|lane.OffscreenLane))
}

func TestHighestPriorityLanesPicksSingleBand(t *testing.T) {
	defaults := lane.DefaultLanes
	transition := lane.PickArbitraryLane(lane.TransitionLanes)

	assert.Equal(t, defaults, lane.HighestPriorityLanes(defaults|transition))
	assert.Equal(t, lane.SyncLane, lane.HighestPriorityLanes(lane.SyncLane|defaults|lane.IdleLanes))
	assert.Equal(t, lane.IdleLanes, lane.HighestPriorityLanes(lane.IdleLanes|lane.OffscreenLane))
	assert.Equal(t, lane.NoLanes, lane.HighestPriorityLanes(lane.NoLanes))

	assert.Equal(t, lane.TransitionPriority, lane.PriorityOf(transition))
	assert.Equal(t, lane.NoPriority, lane.PriorityOf(lane.NoLanes))
}

func TestEqualOrHigherPriorityLanes(t *testing.T) {
	mask := lane.EqualOrHigherPriorityLanes(lane.PickArbitraryLane(lane.DefaultLanes))
	assert.True(t, lane.IsSubsetOfLanes(mask, lane.SyncLane|lane.InputDiscreteLanes|lane.InputContinuousLanes|lane.DefaultLanes))
	assert.False(t, lane.IncludesSomeLane(mask, lane.TransitionLanes))

	// The least urgent lane decides the ceiling.
	mixed := lane.SyncLane | lane.PickArbitraryLane(lane.RetryLanes)
	assert.True(t, lane.IsSubsetOfLanes(lane.EqualOrHigherPriorityLanes(mixed), lane.TransitionLanes))
	assert.False(t, lane.IncludesSomeLane(lane.EqualOrHigherPriorityLanes(mixed), lane.IdleLanes))
}

func TestLaneIndexRoundTrip(t *testing.T) {
	for i := 0; i < lane.TotalLanes; i++ {
		require.Equal(t, i, lane.LaneToIndex(lane.IndexToLane(i)))
	}
	assert.Equal(t, -1, lane.PickArbitraryLaneIndex(lane.NoLanes))
}

func TestFindUpdateLaneSkipsWorkInProgress(t *testing.T) {
	first := lane.FindUpdateLane(lane.DefaultPriority, lane.NoLanes)
	second := lane.FindUpdateLane(lane.DefaultPriority, first)
	assert.NotEqual(t, first, second)
	assert.True(t, lane.IncludesSomeLane(lane.DefaultLanes, second))

	// A full band falls through to transitions.
	spill := lane.FindUpdateLane(lane.DefaultPriority, lane.DefaultLanes)
	assert.True(t, lane.IncludesSomeLane(lane.TransitionLanes, spill))

	assert.Equal(t, lane.SyncLane, lane.FindUpdateLane(lane.SyncPriority, lane.SyncLane))
	assert.Panics(t, func() { lane.FindUpdateLane(lane.NoPriority, lane.NoLanes) })
}

func TestFindTransitionLaneAvoidsPending(t *testing.T) {
	a := lane.FindTransitionLane(lane.NoLanes, lane.NoLanes)
	b := lane.FindTransitionLane(lane.NoLanes, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, lane.PickArbitraryLane(lane.TransitionLanes),
		lane.FindTransitionLane(lane.TransitionLanes, lane.NoLanes))
}
