package fiber

// Flags mark the side effects a fiber carries into the commit.
type Flags uint32

const (
	NoFlags Flags = 0
	// PerformedWork is bookkeeping only and never puts a fiber on the
	// effect list by itself.
	PerformedWork Flags = 1 << (iota - 1)
	Placement
	Update
	Deletion
	ContentReset
	Callback
	DidCapture
	RefEffect
	Snapshot
	Passive

	Incomplete
	ShouldCapture
)

const (
	PlacementAndUpdate = Placement | Update

	// HostEffectMask keeps the flags that survive an unwind.
	HostEffectMask = Incomplete - 1
)

// Mode bits are inherited by every descendant.
type Mode uint8

const (
	NoMode     Mode = 0
	ModeStrict Mode = 1 << (iota - 1)
	ModeBlocking
	ModeConcurrent
)
