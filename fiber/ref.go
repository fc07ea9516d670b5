package fiber

import "github.com/pkg/errors"

// Ref receives the public instance of a host node or class component
// after it is attached, and nil when it is detached.
type Ref interface {
	attach(v any) error
}

// RefObject holds the attached instance in Current.
type RefObject struct {
	Current any
}

func (o *RefObject) attach(v any) error {
	o.Current = v
	return nil
}

// RefFunc is called with the instance on attach and with nil on detach.
type RefFunc func(v any) error

func (fn RefFunc) attach(v any) error {
	return fn(v)
}

// sameRef reports whether two refs are the same binding. RefFuncs are
// never the same, so they are detached and attached on every update.
func sameRef(a, b Ref) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ao, ok := a.(*RefObject)
	if !ok {
		return false
	}
	bo, ok := b.(*RefObject)
	return ok && ao == bo
}

// coerceRef validates the ref an element asks for against the fiber it
// will be bound to.
func coerceRef(f *Fiber, el *Element) (Ref, error) {
	if el.Ref == nil {
		return nil, nil
	}
	switch f.Kind {
	case KindHostComponent, KindClass:
		return el.Ref, nil
	}
	return nil, errors.Wrapf(ErrInvalidRef, "%s cannot be given a ref", f.Kind)
}

func markRef(current, wip *Fiber) {
	if (current == nil && wip.Ref != nil) || (current != nil && !sameRef(current.Ref, wip.Ref)) {
		wip.Flags |= RefEffect
	}
}

func (r *Reconciler) publicInstance(f *Fiber) any {
	if f.Kind == KindHostComponent {
		return r.host.GetPublicInstance(f.StateNode)
	}
	return f.StateNode
}

func (r *Reconciler) commitAttachRef(f *Fiber) error {
	ref := f.Ref
	if ref == nil {
		return nil
	}
	inst := r.publicInstance(f)
	return callSafely(func() error { return ref.attach(inst) })
}

func commitDetachRef(current *Fiber) error {
	ref := current.Ref
	if ref == nil {
		return nil
	}
	return callSafely(func() error { return ref.attach(nil) })
}
