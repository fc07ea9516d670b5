package fiber

import (
	"github.com/delaneyj/fiberparty/lane"
	"github.com/pkg/errors"
)

// CreateRoot creates a root rendering into container. Roots are
// concurrent unless Legacy is given.
func (r *Reconciler) CreateRoot(container any, opts ...RootOption) *Root {
	cfg := rootConfig{tag: ConcurrentRoot}
	for _, opt := range opts {
		opt(&cfg)
	}
	r.log.WithField("root", cfg.tag).Debug("creating root")
	return newRoot(r, container, cfg.tag)
}

// UpdateContainer schedules el as the new content of root and returns the
// lane the update was given. callback runs once the update is committed.
func (r *Reconciler) UpdateContainer(el any, root *Root, callback func() error) (lane.Lane, error) {
	if root.unmounted {
		return lane.NoLane, errors.WithStack(ErrUnmountedRoot)
	}
	current := root.current
	eventTime := r.requestEventTime()
	l := r.requestUpdateLane(current)

	u := createUpdate(eventTime, l)
	u.Payload = map[string]any{rootElementKey: el}
	u.Callback = callback
	enqueueUpdate(current, u)
	return l, r.scheduleUpdateOnFiber(current, l, eventTime)
}

// Unmount removes everything rendered into the root. A legacy root is
// emptied before Unmount returns; a concurrent one when its work runs.
// The root cannot be rendered into afterwards.
func (root *Root) Unmount() error {
	if root.unmounted {
		return errors.WithStack(ErrUnmountedRoot)
	}
	r := root.r
	empty := func() error {
		_, err := r.UpdateContainer(nil, root, nil)
		return err
	}
	var err error
	if root.tag == LegacyRoot {
		err = r.UnbatchedUpdates(empty)
	} else {
		err = empty()
	}
	root.unmounted = true
	return err
}
