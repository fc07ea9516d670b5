package fiber

import (
	"github.com/delaneyj/fiberparty/lane"
	"github.com/pkg/errors"
)

// childReconciler diffs a children description against the current
// children of a fiber. With track unset it builds a fresh subtree and
// records no placements or deletions, leaving the single Placement of the
// subtree root to its parent.
type childReconciler struct {
	r     *Reconciler
	track bool
}

func (r *Reconciler) reconcileChildFibers(wip, currentFirst *Fiber, children any, lanes lane.Lanes) (*Fiber, error) {
	c := childReconciler{r: r, track: true}
	return c.reconcile(wip, currentFirst, children, lanes)
}

func (r *Reconciler) mountChildFibers(wip *Fiber, children any, lanes lane.Lanes) (*Fiber, error) {
	c := childReconciler{r: r}
	return c.reconcile(wip, nil, children, lanes)
}

// reconcileChildren sets wip.Child from children.
func (r *Reconciler) reconcileChildren(current, wip *Fiber, children any, lanes lane.Lanes) (err error) {
	if current == nil {
		wip.Child, err = r.mountChildFibers(wip, children, lanes)
	} else {
		wip.Child, err = r.reconcileChildFibers(wip, current.Child, children, lanes)
	}
	return err
}

func (c *childReconciler) reconcile(parent, currentFirst *Fiber, children any, lanes lane.Lanes) (*Fiber, error) {
	// A top level unkeyed fragment is treated as its children.
	if el, ok := children.(*Element); ok && el != nil && el.Type == fragmentType && el.Key == "" {
		children = el.Props.Children()
	}

	if isEmptyChild(children) {
		c.deleteRemainingChildren(parent, currentFirst)
		return nil, nil
	}
	switch v := children.(type) {
	case *Element:
		f, err := c.reconcileSingleElement(parent, currentFirst, v, lanes)
		if err != nil {
			return nil, err
		}
		return c.placeSingleChild(f), nil
	case *Portal:
		return c.placeSingleChild(c.reconcileSinglePortal(parent, currentFirst, v, lanes)), nil
	}
	if text, ok := textOf(children); ok {
		return c.placeSingleChild(c.reconcileSingleText(parent, currentFirst, text, lanes)), nil
	}
	if list, ok := flattenIterable(children); ok {
		return c.reconcileChildrenArray(parent, currentFirst, list, lanes)
	}
	return nil, errors.Wrapf(ErrInvalidChild, "cannot render %T as a child of %s", children, parent.Kind)
}

func (c *childReconciler) deleteChild(parent, child *Fiber) {
	if !c.track {
		return
	}
	// Deletions go first in the parent's effect list so they are committed
	// before any insertion below the parent.
	if last := parent.LastEffect; last != nil {
		last.NextEffect = child
		parent.LastEffect = child
	} else {
		parent.FirstEffect = child
		parent.LastEffect = child
	}
	child.NextEffect = nil
	child.Flags = Deletion
}

func (c *childReconciler) deleteRemainingChildren(parent, first *Fiber) {
	if !c.track {
		return
	}
	for child := first; child != nil; child = child.Sibling {
		c.deleteChild(parent, child)
	}
}

// useFiber returns the alternate of f, ready to take f's position.
func useFiber(f *Fiber, props Props) *Fiber {
	clone := createWorkInProgress(f, props)
	clone.Index = 0
	clone.Sibling = nil
	return clone
}

// placeChild marks newFiber as moved or inserted and returns the new
// lastPlacedIndex. A reused fiber whose old index is below lastPlacedIndex
// moved left of a sibling that stayed put.
func (c *childReconciler) placeChild(newFiber *Fiber, lastPlacedIndex, newIndex int) int {
	newFiber.Index = newIndex
	if !c.track {
		return lastPlacedIndex
	}
	if current := newFiber.Alternate; current != nil {
		if oldIndex := current.Index; oldIndex < lastPlacedIndex {
			newFiber.Flags |= Placement
			return lastPlacedIndex
		} else {
			return oldIndex
		}
	}
	newFiber.Flags |= Placement
	return lastPlacedIndex
}

func (c *childReconciler) placeSingleChild(f *Fiber) *Fiber {
	if c.track && f.Alternate == nil {
		f.Flags |= Placement
	}
	return f
}

func isSameElementType(f *Fiber, el *Element) bool {
	if el.Type == fragmentType {
		return f.Kind == KindFragment
	}
	return sameValue(f.ElementType, el.Type)
}

func (c *childReconciler) reconcileSingleElement(parent, currentFirst *Fiber, el *Element, lanes lane.Lanes) (*Fiber, error) {
	for child := currentFirst; child != nil; child = child.Sibling {
		if child.Key != el.Key {
			c.deleteChild(parent, child)
			continue
		}
		if isSameElementType(child, el) {
			c.deleteRemainingChildren(parent, child.Sibling)
			existing := useFiber(child, el.Props)
			ref, err := coerceRef(existing, el)
			if err != nil {
				return nil, err
			}
			existing.Ref = ref
			existing.Return = parent
			return existing, nil
		}
		// Same key, different type: nothing below can match either.
		c.deleteRemainingChildren(parent, child)
		break
	}
	return c.createElement(parent, el, lanes)
}

func (c *childReconciler) createElement(parent *Fiber, el *Element, lanes lane.Lanes) (*Fiber, error) {
	created, err := createFiberFromElement(el, parent.Mode, lanes)
	if err != nil {
		return nil, err
	}
	if created.Ref, err = coerceRef(created, el); err != nil {
		return nil, err
	}
	created.Return = parent
	return created, nil
}

func samePortal(f *Fiber, p *Portal) bool {
	if f.Kind != KindHostPortal {
		return false
	}
	ps, ok := f.StateNode.(*portalState)
	return ok && sameValue(ps.container, p.Container)
}

func (c *childReconciler) reconcileSinglePortal(parent, currentFirst *Fiber, p *Portal, lanes lane.Lanes) *Fiber {
	for child := currentFirst; child != nil; child = child.Sibling {
		if child.Key != p.Key {
			c.deleteChild(parent, child)
			continue
		}
		if samePortal(child, p) {
			c.deleteRemainingChildren(parent, child.Sibling)
			existing := useFiber(child, Props{childrenProp: p.Children})
			existing.Return = parent
			return existing
		}
		c.deleteRemainingChildren(parent, child)
		break
	}
	created := createFiberFromPortal(p, parent.Mode, lanes)
	created.Return = parent
	return created
}

func (c *childReconciler) reconcileSingleText(parent, currentFirst *Fiber, text string, lanes lane.Lanes) *Fiber {
	// Text has no key, so only an existing first text child can be reused.
	if currentFirst != nil && currentFirst.Kind == KindHostText {
		c.deleteRemainingChildren(parent, currentFirst.Sibling)
		existing := useFiber(currentFirst, Props{textProp: text})
		existing.Return = parent
		return existing
	}
	c.deleteRemainingChildren(parent, currentFirst)
	created := createFiberFromText(text, parent.Mode, lanes)
	created.Return = parent
	return created
}

func (c *childReconciler) updateText(parent, current *Fiber, text string, lanes lane.Lanes) *Fiber {
	if current == nil || current.Kind != KindHostText {
		created := createFiberFromText(text, parent.Mode, lanes)
		created.Return = parent
		return created
	}
	existing := useFiber(current, Props{textProp: text})
	existing.Return = parent
	return existing
}

func (c *childReconciler) updateElement(parent, current *Fiber, el *Element, lanes lane.Lanes) (*Fiber, error) {
	if current == nil || !isSameElementType(current, el) {
		return c.createElement(parent, el, lanes)
	}
	existing := useFiber(current, el.Props)
	ref, err := coerceRef(existing, el)
	if err != nil {
		return nil, err
	}
	existing.Ref = ref
	existing.Return = parent
	return existing, nil
}

func (c *childReconciler) updatePortal(parent, current *Fiber, p *Portal, lanes lane.Lanes) *Fiber {
	if current == nil || !samePortal(current, p) {
		created := createFiberFromPortal(p, parent.Mode, lanes)
		created.Return = parent
		return created
	}
	existing := useFiber(current, Props{childrenProp: p.Children})
	existing.Return = parent
	return existing
}

// updateFragment handles a nested list, which renders as an implicit
// fragment.
func (c *childReconciler) updateFragment(parent, current *Fiber, children any, lanes lane.Lanes, key string) *Fiber {
	if current == nil || current.Kind != KindFragment {
		created := createFiberFromFragment(children, parent.Mode, lanes, key)
		created.Return = parent
		return created
	}
	existing := useFiber(current, Props{childrenProp: children})
	existing.Return = parent
	return existing
}

func (c *childReconciler) createChild(parent *Fiber, child any, lanes lane.Lanes) (*Fiber, error) {
	if isEmptyChild(child) {
		return nil, nil
	}
	switch v := child.(type) {
	case *Element:
		return c.createElement(parent, v, lanes)
	case *Portal:
		created := createFiberFromPortal(v, parent.Mode, lanes)
		created.Return = parent
		return created, nil
	}
	if text, ok := textOf(child); ok {
		created := createFiberFromText(text, parent.Mode, lanes)
		created.Return = parent
		return created, nil
	}
	if list, ok := flattenIterable(child); ok {
		created := createFiberFromFragment(list, parent.Mode, lanes, "")
		created.Return = parent
		return created, nil
	}
	return nil, errors.Wrapf(ErrInvalidChild, "cannot render %T as a child of %s", child, parent.Kind)
}

// updateSlot reuses old for child when their keys match. A nil fiber
// without error means the keys differ.
func (c *childReconciler) updateSlot(parent, old *Fiber, child any, lanes lane.Lanes) (*Fiber, error) {
	key := ""
	if old != nil {
		key = old.Key
	}
	if isEmptyChild(child) {
		return nil, nil
	}
	switch v := child.(type) {
	case *Element:
		if v.Key != key {
			return nil, nil
		}
		return c.updateElement(parent, old, v, lanes)
	case *Portal:
		if v.Key != key {
			return nil, nil
		}
		return c.updatePortal(parent, old, v, lanes), nil
	}
	if text, ok := textOf(child); ok {
		if key != "" {
			return nil, nil
		}
		return c.updateText(parent, old, text, lanes), nil
	}
	if list, ok := flattenIterable(child); ok {
		if key != "" {
			return nil, nil
		}
		return c.updateFragment(parent, old, list, lanes, ""), nil
	}
	return nil, errors.Wrapf(ErrInvalidChild, "cannot render %T as a child of %s", child, parent.Kind)
}

// slotKey identifies an old child by explicit key, or by index when it
// has none.
type slotKey struct {
	key   string
	index int
}

func slotKeyOf(key string, index int) slotKey {
	if key != "" {
		return slotKey{key: key, index: -1}
	}
	return slotKey{index: index}
}

func (c *childReconciler) updateFromMap(existing map[slotKey]*Fiber, parent *Fiber, newIdx int, child any, lanes lane.Lanes) (*Fiber, error) {
	if isEmptyChild(child) {
		return nil, nil
	}
	switch v := child.(type) {
	case *Element:
		return c.updateElement(parent, existing[slotKeyOf(v.Key, newIdx)], v, lanes)
	case *Portal:
		return c.updatePortal(parent, existing[slotKeyOf(v.Key, newIdx)], v, lanes), nil
	}
	if text, ok := textOf(child); ok {
		return c.updateText(parent, existing[slotKeyOf("", newIdx)], text, lanes), nil
	}
	if list, ok := flattenIterable(child); ok {
		return c.updateFragment(parent, existing[slotKeyOf("", newIdx)], list, lanes, ""), nil
	}
	return nil, errors.Wrapf(ErrInvalidChild, "cannot render %T as a child of %s", child, parent.Kind)
}

func (c *childReconciler) reconcileChildrenArray(parent, currentFirst *Fiber, children []any, lanes lane.Lanes) (*Fiber, error) {
	var (
		first, prev     *Fiber
		oldFiber        = currentFirst
		lastPlacedIndex int
		newIdx          int
		nextOldFiber    *Fiber
	)
	link := func(f *Fiber) {
		if prev == nil {
			first = f
		} else {
			prev.Sibling = f
		}
		prev = f
	}

	// Pass 1: walk both lists in step while the keys line up.
	for ; oldFiber != nil && newIdx < len(children); newIdx++ {
		if oldFiber.Index > newIdx {
			// The old list had an empty slot here.
			nextOldFiber = oldFiber
			oldFiber = nil
		} else {
			nextOldFiber = oldFiber.Sibling
		}
		newFiber, err := c.updateSlot(parent, oldFiber, children[newIdx], lanes)
		if err != nil {
			return nil, err
		}
		if newFiber == nil {
			if oldFiber == nil {
				oldFiber = nextOldFiber
			}
			break
		}
		if c.track && oldFiber != nil && newFiber.Alternate == nil {
			// Matched the slot but could not reuse the fiber.
			c.deleteChild(parent, oldFiber)
		}
		lastPlacedIndex = c.placeChild(newFiber, lastPlacedIndex, newIdx)
		link(newFiber)
		oldFiber = nextOldFiber
	}

	if newIdx == len(children) {
		c.deleteRemainingChildren(parent, oldFiber)
		return first, nil
	}

	if oldFiber == nil {
		// Only insertions remain.
		for ; newIdx < len(children); newIdx++ {
			newFiber, err := c.createChild(parent, children[newIdx], lanes)
			if err != nil {
				return nil, err
			}
			if newFiber == nil {
				continue
			}
			lastPlacedIndex = c.placeChild(newFiber, lastPlacedIndex, newIdx)
			link(newFiber)
		}
		return first, nil
	}

	// Pass 2: look up the remaining old children by key or index.
	remaining := oldFiber
	existing := make(map[slotKey]*Fiber)
	for f := remaining; f != nil; f = f.Sibling {
		k := slotKeyOf(f.Key, f.Index)
		if _, dup := existing[k]; !dup {
			existing[k] = f
		}
	}
	claimed := make(map[*Fiber]bool)

	for ; newIdx < len(children); newIdx++ {
		newFiber, err := c.updateFromMap(existing, parent, newIdx, children[newIdx], lanes)
		if err != nil {
			return nil, err
		}
		if newFiber == nil {
			continue
		}
		if old := newFiber.Alternate; old != nil {
			claimed[old] = true
			delete(existing, slotKeyOf(old.Key, old.Index))
		}
		lastPlacedIndex = c.placeChild(newFiber, lastPlacedIndex, newIdx)
		link(newFiber)
	}

	if c.track {
		for f := remaining; f != nil; f = f.Sibling {
			if !claimed[f] {
				c.deleteChild(parent, f)
			}
		}
	}
	return first, nil
}
