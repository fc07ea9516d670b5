// Package lane implements the 31-bit priority bitset used to schedule
// updates. Adjacent bits are grouped into bands; lower bits are higher
// priority. Lanes in the same band are parallel: working on one does not
// imply working on another.
package lane

import (
	"fmt"
	"math/bits"
)

type Lanes uint32

func (l Lanes) String() string {
	return fmt.Sprintf("%031b", uint32(l))
}

// Lane is a Lanes value with exactly one bit set.
type Lane = Lanes

const TotalLanes = 31

const (
	NoLanes Lanes = /*              */ 0b0000000000000000000000000000000
	NoLane  Lane  = /*              */ 0b0000000000000000000000000000000

	SyncLane Lane = /*              */ 0b0000000000000000000000000000001

	InputDiscreteLanes Lanes = /*   */ 0b0000000000000000000000000000110
	InputContinuousLanes Lanes = /* */ 0b0000000000000000000000000011000

	DefaultLanes Lanes = /*         */ 0b0000000000000000000000011100000

	TransitionLanes Lanes = /*      */ 0b0000000000111111111111100000000
	RetryLanes Lanes = /*           */ 0b0000011111000000000000000000000
	SomeRetryLane Lane = /*         */ 0b0000000001000000000000000000000

	NonIdleLanes Lanes = /*         */ 0b0000011111111111111111111111111

	IdleLanes Lanes = /*            */ 0b0111100000000000000000000000000
	OffscreenLane Lane = /*         */ 0b1000000000000000000000000000000
)

// Priority orders bands. A larger value is a more urgent band.
type Priority uint8

const (
	NoPriority Priority = iota
	OffscreenPriority
	IdlePriority
	RetryPriority
	TransitionPriority
	DefaultPriority
	InputContinuousPriority
	InputDiscretePriority
	SyncPriority
)

func (p Priority) String() string {
	switch p {
	case SyncPriority:
		return "sync"
	case InputDiscretePriority:
		return "input-discrete"
	case InputContinuousPriority:
		return "input-continuous"
	case DefaultPriority:
		return "default"
	case TransitionPriority:
		return "transition"
	case RetryPriority:
		return "retry"
	case IdlePriority:
		return "idle"
	case OffscreenPriority:
		return "offscreen"
	default:
		return "none"
	}
}

type band struct {
	mask     Lanes
	priority Priority
}

// bands in fixed priority order, highest first.
var bands = [...]band{
	{SyncLane, SyncPriority},
	{InputDiscreteLanes, InputDiscretePriority},
	{InputContinuousLanes, InputContinuousPriority},
	{DefaultLanes, DefaultPriority},
	{TransitionLanes, TransitionPriority},
	{RetryLanes, RetryPriority},
	{IdleLanes, IdlePriority},
	{OffscreenLane, OffscreenPriority},
}

var (
	// laneBand maps a lane index to its position in bands.
	laneBand [TotalLanes]uint8
	// bandCeiling[i] admits band i and every band above it.
	bandCeiling [len(bands)]Lanes
)

func init() {
	var ceiling Lanes
	for i, b := range bands {
		for l := b.mask; l != 0; l &= l - 1 {
			laneBand[bits.TrailingZeros32(uint32(l))] = uint8(i)
		}
		ceiling |= b.mask
		bandCeiling[i] = ceiling
	}
}

func MergeLanes(a, b Lanes) Lanes {
	return a | b
}

func IncludesSomeLane(a, b Lanes) bool {
	return a&b != NoLanes
}

func IsSubsetOfLanes(set, subset Lanes) bool {
	return set&subset == subset
}

func RemoveLanes(set, subset Lanes) Lanes {
	return set &^ subset
}

func IncludesNonIdleWork(lanes Lanes) bool {
	return lanes&NonIdleLanes != NoLanes
}

func IncludesOnlyRetries(lanes Lanes) bool {
	return lanes&RetryLanes == lanes
}

func IncludesOnlyTransitions(lanes Lanes) bool {
	return lanes&TransitionLanes == lanes
}

// HighestPriorityLane isolates the lowest set bit.
func HighestPriorityLane(lanes Lanes) Lane {
	return lanes & -lanes
}

// PickArbitraryLane returns one lane of lanes. Callers must not depend on
// which one.
func PickArbitraryLane(lanes Lanes) Lane {
	return HighestPriorityLane(lanes)
}

// PickArbitraryLaneIndex returns the index of the highest set bit, or -1.
func PickArbitraryLaneIndex(lanes Lanes) int {
	return bits.Len32(uint32(lanes)) - 1
}

func LaneToIndex(l Lane) int {
	return PickArbitraryLaneIndex(l)
}

func IndexToLane(i int) Lane {
	return Lane(1) << uint(i)
}

// HighestPriorityLanes returns the subset of lanes that belongs to the
// single most urgent non-empty band.
func HighestPriorityLanes(lanes Lanes) Lanes {
	l, _ := highestPriorityLanes(lanes)
	return l
}

// PriorityOf reports the band priority of the most urgent lane in lanes.
func PriorityOf(lanes Lanes) Priority {
	_, p := highestPriorityLanes(lanes)
	return p
}

func highestPriorityLanes(lanes Lanes) (Lanes, Priority) {
	if lanes == NoLanes {
		return NoLanes, NoPriority
	}
	b := bands[laneBand[bits.TrailingZeros32(uint32(lanes))]]
	return lanes & b.mask, b.priority
}

// EqualOrHigherPriorityLanes returns a mask admitting the band of the
// least urgent lane in lanes and every band above it.
func EqualOrHigherPriorityLanes(lanes Lanes) Lanes {
	if lanes == NoLanes {
		return NoLanes
	}
	return bandCeiling[laneBand[PickArbitraryLaneIndex(lanes)]]
}

// LanesOfPriority returns every lane in the band with priority p.
func LanesOfPriority(p Priority) Lanes {
	for _, b := range bands {
		if b.priority == p {
			return b.mask
		}
	}
	return NoLanes
}

// FindUpdateLane picks a lane for a new update at priority p, avoiding
// lanes that are already part of the work-in-progress render when the band
// has a free one.
func FindUpdateLane(p Priority, wipLanes Lanes) Lane {
	switch p {
	case NoPriority:
	case SyncPriority:
		return SyncLane
	case InputDiscretePriority, InputContinuousPriority:
		if l := PickArbitraryLane(LanesOfPriority(p) &^ wipLanes); l != NoLane {
			return l
		}
		// Shift to the next priority level.
		return FindUpdateLane(p-1, wipLanes)
	case DefaultPriority:
		if l := PickArbitraryLane(DefaultLanes &^ wipLanes); l != NoLane {
			return l
		}
		if l := PickArbitraryLane(TransitionLanes &^ wipLanes); l != NoLane {
			return l
		}
		return PickArbitraryLane(DefaultLanes)
	case TransitionPriority, RetryPriority:
	case IdlePriority:
		if l := PickArbitraryLane(IdleLanes &^ wipLanes); l != NoLane {
			return l
		}
		return PickArbitraryLane(IdleLanes)
	}
	panic("lane: invalid update priority " + p.String())
}

// FindTransitionLane prefers a transition lane that is neither rendering
// nor pending, so unrelated transitions stay parallel.
func FindTransitionLane(wipLanes, pendingLanes Lanes) Lane {
	if l := PickArbitraryLane(TransitionLanes &^ (wipLanes | pendingLanes)); l != NoLane {
		return l
	}
	if l := PickArbitraryLane(TransitionLanes &^ wipLanes); l != NoLane {
		return l
	}
	return PickArbitraryLane(TransitionLanes)
}

func FindRetryLane(wipLanes Lanes) Lane {
	if l := PickArbitraryLane(RetryLanes &^ wipLanes); l != NoLane {
		return l
	}
	return PickArbitraryLane(RetryLanes)
}
