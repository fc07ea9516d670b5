package lane

// Timestamp is a scheduler time in milliseconds.
type Timestamp int64

const NoTimestamp Timestamp = -1

// LaneMap holds one value per lane index.
type LaneMap[T any] [TotalLanes]T

func NewLaneMap[T any](initial T) LaneMap[T] {
	var m LaneMap[T]
	for i := range m {
		m[i] = initial
	}
	return m
}

// RootLanes is the per-root lane bookkeeping. It is created once per root
// and mutated in place for the root's lifetime.
type RootLanes struct {
	Pending   Lanes
	Suspended Lanes
	Pinged    Lanes
	Expired   Lanes
	Entangled Lanes

	EventTimes      LaneMap[Timestamp]
	ExpirationTimes LaneMap[Timestamp]
	Entanglements   LaneMap[Lanes]
}

func NewRootLanes() RootLanes {
	return RootLanes{
		EventTimes:      NewLaneMap(NoTimestamp),
		ExpirationTimes: NewLaneMap(NoTimestamp),
	}
}

// MarkRootUpdated records a pending update on updateLane. Suspended and
// pinged lanes at equal or lower priority are unblocked so they get retried
// together with the new update.
func MarkRootUpdated(root *RootLanes, updateLane Lane, eventTime Timestamp) {
	root.Pending |= updateLane

	// 0b1000 becomes 0b0111
	higherPriorityLanes := updateLane - 1
	root.Suspended &= higherPriorityLanes
	root.Pinged &= higherPriorityLanes

	root.EventTimes[LaneToIndex(updateLane)] = eventTime
}

func MarkRootSuspended(root *RootLanes, suspended Lanes) {
	root.Suspended |= suspended
	root.Pinged &^= suspended

	for lanes := suspended; lanes > 0; {
		i := PickArbitraryLaneIndex(lanes)
		root.ExpirationTimes[i] = NoTimestamp
		lanes &^= IndexToLane(i)
	}
}

func MarkRootPinged(root *RootLanes, pinged Lanes) {
	root.Pinged |= root.Suspended & pinged
}

func MarkRootExpired(root *RootLanes, expired Lanes) {
	root.Expired |= expired & root.Pending
}

// MarkRootEntangled binds lanes together so that GetNextLanes never picks
// one of them without the others.
func MarkRootEntangled(root *RootLanes, entangled Lanes) {
	root.Entangled |= entangled
	for lanes := entangled; lanes > 0; {
		i := PickArbitraryLaneIndex(lanes)
		root.Entanglements[i] |= entangled
		lanes &^= IndexToLane(i)
	}
}

// MarkRootFinished clears bookkeeping for every lane that is no longer
// pending after a commit.
func MarkRootFinished(root *RootLanes, remaining Lanes) {
	noLongerPending := root.Pending &^ remaining

	root.Pending = remaining
	root.Suspended = NoLanes
	root.Pinged = NoLanes
	root.Expired &= remaining
	root.Entangled &= remaining

	for lanes := noLongerPending; lanes > 0; {
		i := PickArbitraryLaneIndex(lanes)
		root.EventTimes[i] = NoTimestamp
		root.ExpirationTimes[i] = NoTimestamp
		root.Entanglements[i] = NoLanes
		lanes &^= IndexToLane(i)
	}
}

// ComputeExpirationTime returns when a lane updated at t becomes starved.
func ComputeExpirationTime(l Lane, t Timestamp) Timestamp {
	switch PriorityOf(l) {
	case SyncPriority, InputDiscretePriority:
		return t + 250
	case InputContinuousPriority, DefaultPriority, TransitionPriority:
		return t + 5000
	default:
		// Retries, idle and offscreen work never expire.
		return NoTimestamp
	}
}

// MarkStarvedLanesAsExpired assigns deadlines to newly pending lanes and
// moves lanes whose deadline has passed into the expired set.
func MarkStarvedLanesAsExpired(root *RootLanes, now Timestamp) {
	for lanes := root.Pending; lanes > 0; {
		i := PickArbitraryLaneIndex(lanes)
		l := IndexToLane(i)

		expirationTime := root.ExpirationTimes[i]
		if expirationTime == NoTimestamp {
			// Suspended lanes only get a deadline once pinged.
			if l&root.Suspended == NoLanes || l&root.Pinged != NoLanes {
				start := root.EventTimes[i]
				if start == NoTimestamp {
					start = now
				}
				root.ExpirationTimes[i] = ComputeExpirationTime(l, start)
			}
		} else if expirationTime <= now {
			root.Expired |= l
		}

		lanes &^= l
	}
}

// GetNextLanes decides which lanes the next render attempt should work on
// and at which band priority. wipLanes are the lanes of a render already
// in progress, or NoLanes.
func GetNextLanes(root *RootLanes, wipLanes Lanes) (Lanes, Priority) {
	pending := root.Pending
	if pending == NoLanes {
		return NoLanes, NoPriority
	}

	var (
		next     Lanes
		priority Priority
	)
	if root.Expired != NoLanes {
		// Starvation guard: treat everything expired as sync work.
		next, priority = root.Expired, SyncPriority
	} else if nonIdle := pending & NonIdleLanes; nonIdle != NoLanes {
		if unblocked := nonIdle &^ root.Suspended; unblocked != NoLanes {
			next, priority = highestPriorityLanes(unblocked)
		} else if pinged := nonIdle & root.Pinged; pinged != NoLanes {
			next, priority = highestPriorityLanes(pinged)
		}
	} else {
		if unblocked := pending &^ root.Suspended; unblocked != NoLanes {
			next, priority = highestPriorityLanes(unblocked)
		} else if root.Pinged != NoLanes {
			next, priority = highestPriorityLanes(root.Pinged)
		}
	}
	if next == NoLanes {
		return NoLanes, NoPriority
	}

	// Never render a lower priority subset than what is actually ready.
	next = pending & EqualOrHigherPriorityLanes(next)

	// Keep working on an in-progress render unless the new lanes are more
	// urgent; switching would throw away the partial tree.
	if wipLanes != NoLanes && wipLanes != next && wipLanes&root.Suspended == NoLanes {
		if _, wipPriority := highestPriorityLanes(wipLanes); priority <= wipPriority {
			return wipLanes, wipPriority
		}
	}

	if root.Entangled != NoLanes {
		for lanes := next & root.Entangled; lanes > 0; {
			i := PickArbitraryLaneIndex(lanes)
			next |= root.Entanglements[i]
			lanes &^= IndexToLane(i)
		}
	}

	return next, priority
}

// GetLanesToRetrySynchronouslyOnError returns every pending lane except
// offscreen work, which is only retried when nothing else is pending.
func GetLanesToRetrySynchronouslyOnError(root *RootLanes) Lanes {
	if lanes := root.Pending &^ OffscreenLane; lanes != NoLanes {
		return lanes
	}
	if root.Pending&OffscreenLane != NoLanes {
		return OffscreenLane
	}
	return NoLanes
}
