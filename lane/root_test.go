package lane_test

import (
	"testing"

	"github.com/delaneyj/fiberparty/lane"
	"github.com/stretchr/testify/assert"
)

var (
	defaultLane    = lane.PickArbitraryLane(lane.DefaultLanes)
	transitionLane = lane.PickArbitraryLane(lane.TransitionLanes)
	idleLane       = lane.PickArbitraryLane(lane.IdleLanes)
)

func TestMarkRootUpdatedUnblocksLowerPriority(t *testing.T) {
	root := lane.NewRootLanes()
	lane.MarkRootUpdated(&root, transitionLane, 10)
	lane.MarkRootSuspended(&root, transitionLane|lane.SyncLane)
	lane.MarkRootPinged(&root, transitionLane)

	lane.MarkRootUpdated(&root, defaultLane, 20)

	assert.Equal(t, defaultLane|transitionLane, root.Pending)
	// The sync lane is more urgent than the update and stays suspended.
	assert.Equal(t, lane.SyncLane, root.Suspended)
	assert.Equal(t, lane.NoLanes, root.Pinged)
	assert.Equal(t, lane.Timestamp(20), root.EventTimes[lane.LaneToIndex(defaultLane)])
	assert.Equal(t, lane.Timestamp(10), root.EventTimes[lane.LaneToIndex(transitionLane)])
}

func TestGetNextLanesPrefersUrgentBand(t *testing.T) {
	root := lane.NewRootLanes()
	lane.MarkRootUpdated(&root, transitionLane, 0)
	lane.MarkRootUpdated(&root, defaultLane, 0)

	next, p := lane.GetNextLanes(&root, lane.NoLanes)
	assert.Equal(t, defaultLane, next)
	assert.Equal(t, lane.DefaultPriority, p)
}

func TestGetNextLanesSkipsSuspendedThenPinged(t *testing.T) {
	root := lane.NewRootLanes()
	lane.MarkRootUpdated(&root, defaultLane, 0)
	lane.MarkRootSuspended(&root, defaultLane)

	next, _ := lane.GetNextLanes(&root, lane.NoLanes)
	assert.Equal(t, lane.NoLanes, next)

	lane.MarkRootPinged(&root, defaultLane)
	next, _ = lane.GetNextLanes(&root, lane.NoLanes)
	assert.Equal(t, defaultLane, next)
}

func TestGetNextLanesFallsBackToIdle(t *testing.T) {
	root := lane.NewRootLanes()
	lane.MarkRootUpdated(&root, idleLane, 0)
	next, p := lane.GetNextLanes(&root, lane.NoLanes)
	assert.Equal(t, idleLane, next)
	assert.Equal(t, lane.IdlePriority, p)
}

func TestGetNextLanesWidensToEqualOrHigherPending(t *testing.T) {
	root := lane.NewRootLanes()
	lane.MarkRootUpdated(&root, lane.SyncLane, 0)
	lane.MarkRootUpdated(&root, defaultLane, 0)
	lane.MarkRootSuspended(&root, lane.SyncLane)

	// Sync is suspended, default is picked, and the widening pulls the
	// pending sync lane back in.
	next, _ := lane.GetNextLanes(&root, lane.NoLanes)
	assert.Equal(t, lane.SyncLane|defaultLane, next)
}

func TestGetNextLanesKeepsInProgressAtEqualPriority(t *testing.T) {
	root := lane.NewRootLanes()
	other := lane.PickArbitraryLane(lane.DefaultLanes &^ defaultLane)
	lane.MarkRootUpdated(&root, defaultLane, 0)

	next, _ := lane.GetNextLanes(&root, defaultLane)
	assert.Equal(t, defaultLane, next)

	lane.MarkRootUpdated(&root, other, 0)
	next, _ = lane.GetNextLanes(&root, defaultLane)
	assert.Equal(t, defaultLane, next, "equal priority must not restart the render")
}

func TestGetNextLanesInterruptsForSync(t *testing.T) {
	root := lane.NewRootLanes()
	lane.MarkRootUpdated(&root, defaultLane, 0)
	lane.MarkRootUpdated(&root, lane.SyncLane, 0)

	next, p := lane.GetNextLanes(&root, defaultLane)
	assert.Equal(t, lane.SyncLane, next)
	assert.Equal(t, lane.SyncPriority, p)
}

func TestGetNextLanesIncludesEntangled(t *testing.T) {
	root := lane.NewRootLanes()
	lane.MarkRootUpdated(&root, defaultLane, 0)
	lane.MarkRootUpdated(&root, transitionLane, 0)
	lane.MarkRootEntangled(&root, defaultLane|transitionLane)

	next, _ := lane.GetNextLanes(&root, lane.NoLanes)
	assert.Equal(t, defaultLane|transitionLane, next)
}

func TestStarvedLaneIsForcedToSync(t *testing.T) {
	root := lane.NewRootLanes()
	lane.MarkRootUpdated(&root, transitionLane, 0)

	lane.MarkStarvedLanesAsExpired(&root, 0)
	assert.Equal(t, lane.Timestamp(5000), root.ExpirationTimes[lane.LaneToIndex(transitionLane)])
	assert.Equal(t, lane.NoLanes, root.Expired)

	lane.MarkStarvedLanesAsExpired(&root, 6000)
	assert.Equal(t, transitionLane, root.Expired)

	next, p := lane.GetNextLanes(&root, lane.NoLanes)
	assert.Equal(t, transitionLane, next)
	assert.Equal(t, lane.SyncPriority, p)
}

func TestSuspendedLaneGetsNoDeadlineUntilPinged(t *testing.T) {
	root := lane.NewRootLanes()
	lane.MarkRootUpdated(&root, defaultLane, 0)
	lane.MarkRootSuspended(&root, defaultLane)
	lane.MarkStarvedLanesAsExpired(&root, 0)
	assert.Equal(t, lane.NoTimestamp, root.ExpirationTimes[lane.LaneToIndex(defaultLane)])

	lane.MarkRootPinged(&root, defaultLane)
	lane.MarkStarvedLanesAsExpired(&root, 100)
	assert.Equal(t, lane.Timestamp(5000), root.ExpirationTimes[lane.LaneToIndex(defaultLane)])
}

func TestMarkRootFinishedClearsBookkeeping(t *testing.T) {
	root := lane.NewRootLanes()
	lane.MarkRootUpdated(&root, defaultLane, 5)
	lane.MarkRootUpdated(&root, transitionLane, 6)
	lane.MarkRootEntangled(&root, defaultLane|transitionLane)
	lane.MarkStarvedLanesAsExpired(&root, 10)

	lane.MarkRootFinished(&root, transitionLane)

	assert.Equal(t, transitionLane, root.Pending)
	i := lane.LaneToIndex(defaultLane)
	assert.Equal(t, lane.NoTimestamp, root.EventTimes[i])
	assert.Equal(t, lane.NoTimestamp, root.ExpirationTimes[i])
	assert.Equal(t, lane.NoLanes, root.Entanglements[i])
	assert.Equal(t, transitionLane, root.Entangled)
}

func TestRetryOnErrorIncludesAllButOffscreen(t *testing.T) {
	root := lane.NewRootLanes()
	lane.MarkRootUpdated(&root, lane.OffscreenLane, 0)
	assert.Equal(t, lane.OffscreenLane, lane.GetLanesToRetrySynchronouslyOnError(&root))

	lane.MarkRootUpdated(&root, defaultLane, 0)
	lane.MarkRootUpdated(&root, idleLane, 0)
	assert.Equal(t, defaultLane|idleLane, lane.GetLanesToRetrySynchronouslyOnError(&root))
}
