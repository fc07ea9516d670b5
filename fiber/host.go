package fiber

import (
	"github.com/delaneyj/fiberparty/lane"
	"github.com/delaneyj/fiberparty/scheduler"
)

// HostConfig applies committed mutations to a concrete host tree. Handles
// (instances, text instances, containers) are opaque to the reconciler.
// Host contexts must be comparable.
type HostConfig interface {
	GetRootHostContext(container any) any
	GetChildHostContext(parent any, typ string) any

	// ShouldSetTextContent reports whether the host element renders its
	// text children itself, so no text child fibers are created.
	ShouldSetTextContent(typ string, props Props) bool

	CreateInstance(typ string, props Props, container any, hostContext any) (any, error)
	CreateTextInstance(text string, container any, hostContext any) (any, error)
	AppendInitialChild(parent, child any)
	// FinalizeInitialChildren returns true when CommitMount must run for
	// the instance once it is attached.
	FinalizeInitialChildren(instance any, typ string, props Props, hostContext any) bool
	// PrepareUpdate returns nil when oldProps and newProps render the same.
	PrepareUpdate(instance any, typ string, oldProps, newProps Props, hostContext any) any
	GetPublicInstance(instance any) any

	PrepareForCommit(container any)
	ResetAfterCommit(container any)

	CommitMount(instance any, typ string, props Props)
	CommitUpdate(instance any, payload any, typ string, oldProps, newProps Props)
	CommitTextUpdate(textInstance any, oldText, newText string)
	ResetTextContent(instance any)

	AppendChild(parent, child any)
	AppendChildToContainer(container, child any)
	InsertBefore(parent, child, before any)
	InsertInContainerBefore(container, child, before any)
	RemoveChild(parent, child any)
	RemoveChildFromContainer(container, child any)
	ClearContainer(container any)

	HideInstance(instance any)
	HideTextInstance(textInstance any)
	UnhideInstance(instance any, props Props)
	UnhideTextInstance(textInstance any, text string)
}

// TaskScheduler runs the reconciler's work. *scheduler.Scheduler
// implements it. All methods are called from the goroutine driving the
// scheduler.
type TaskScheduler interface {
	Now() lane.Timestamp
	CurrentPriority() scheduler.Priority
	RunWithPriority(p scheduler.Priority, fn func())
	ScheduleCallback(p scheduler.Priority, cb scheduler.Callback) *scheduler.Task
	CancelCallback(t *scheduler.Task)
	ShouldYield() bool
	ScheduleSyncCallback(cb scheduler.SyncCallback)
	FlushSyncCallbackQueue() error
}

var _ TaskScheduler = (*scheduler.Scheduler)(nil)

func schedulerPriorityToLanePriority(p scheduler.Priority) lane.Priority {
	switch p {
	case scheduler.ImmediatePriority:
		return lane.SyncPriority
	case scheduler.UserBlockingPriority:
		return lane.InputContinuousPriority
	case scheduler.NormalPriority, scheduler.LowPriority:
		return lane.DefaultPriority
	case scheduler.IdlePriority:
		return lane.IdlePriority
	default:
		return lane.NoPriority
	}
}

func lanePriorityToSchedulerPriority(p lane.Priority) scheduler.Priority {
	switch p {
	case lane.SyncPriority:
		return scheduler.ImmediatePriority
	case lane.InputDiscretePriority, lane.InputContinuousPriority:
		return scheduler.UserBlockingPriority
	case lane.DefaultPriority, lane.TransitionPriority, lane.RetryPriority:
		return scheduler.NormalPriority
	case lane.IdlePriority, lane.OffscreenPriority:
		return scheduler.IdlePriority
	default:
		return scheduler.NoPriority
	}
}
