package fiber

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/fiberparty/lane"
	"github.com/pkg/errors"
)

type Kind uint8

const (
	KindFunction Kind = iota
	KindClass
	KindHostRoot
	KindHostPortal
	KindHostComponent
	KindHostText
	KindFragment
	KindMode
	KindContextProvider
	KindContextConsumer
	KindSuspense
	KindOffscreen
	kindCount
)

var kindNames = [kindCount]string{
	KindFunction:        "FunctionComponent",
	KindClass:           "ClassComponent",
	KindHostRoot:        "HostRoot",
	KindHostPortal:      "HostPortal",
	KindHostComponent:   "HostComponent",
	KindHostText:        "HostText",
	KindFragment:        "Fragment",
	KindMode:            "Mode",
	KindContextProvider: "ContextProvider",
	KindContextConsumer: "ContextConsumer",
	KindSuspense:        "SuspenseComponent",
	KindOffscreen:       "OffscreenComponent",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "Unknown"
}

// Fiber is the unit of reconciliation: one per positioned element. Every
// tree position has at most two fibers, the committed one reachable from
// Root.Current and the work-in-progress one, linked through Alternate.
type Fiber struct {
	Kind        Kind
	Key         string
	ElementType any
	Type        any
	// StateNode is the host handle, class instance, *Root or portal
	// container bound to this fiber.
	StateNode any

	Return  *Fiber
	Child   *Fiber
	Sibling *Fiber
	Index   int

	Ref Ref

	PendingProps  Props
	MemoizedProps Props
	MemoizedState any

	Mode  Mode
	Flags Flags

	// Effect list, built in completion order.
	NextEffect  *Fiber
	FirstEffect *Fiber
	LastEffect  *Fiber

	Lanes      lane.Lanes
	ChildLanes lane.Lanes

	Alternate *Fiber

	updateQueue   *UpdateQueue
	hookEffects   []*hookEffect
	updatePayload any
	dependencies  *dependencies
	// wakeables a suspense boundary must retry on once they settle.
	wakeables mapset.Set[Wakeable]
}

const textProp = "text"

func newFiber(kind Kind, pendingProps Props, key string, mode Mode) *Fiber {
	return &Fiber{
		Kind:         kind,
		Key:          key,
		PendingProps: pendingProps,
		Mode:         mode,
	}
}

// Text returns the text of a HostText fiber.
func (f *Fiber) Text() string {
	s, _ := f.MemoizedProps[textProp].(string)
	return s
}

func (f *Fiber) pendingText() string {
	s, _ := f.PendingProps[textProp].(string)
	return s
}

func (f *Fiber) hostType() string {
	s, _ := f.Type.(string)
	return s
}

// createWorkInProgress returns the alternate of current prepared for a new
// render, reusing the alternate object when one already exists.
func createWorkInProgress(current *Fiber, pendingProps Props) *Fiber {
	wip := current.Alternate
	if wip == nil {
		wip = newFiber(current.Kind, pendingProps, current.Key, current.Mode)
		wip.ElementType = current.ElementType
		wip.Type = current.Type
		wip.StateNode = current.StateNode

		wip.Alternate = current
		current.Alternate = wip
	} else {
		wip.PendingProps = pendingProps
		wip.Type = current.Type

		// The effect list is no longer valid.
		wip.Flags = NoFlags
		wip.NextEffect = nil
		wip.FirstEffect = nil
		wip.LastEffect = nil
	}

	wip.ChildLanes = current.ChildLanes
	wip.Lanes = current.Lanes

	wip.Child = current.Child
	wip.MemoizedProps = current.MemoizedProps
	wip.MemoizedState = current.MemoizedState
	wip.updateQueue = current.updateQueue
	wip.hookEffects = current.hookEffects
	wip.wakeables = current.wakeables
	wip.updatePayload = nil

	if deps := current.dependencies; deps != nil {
		wip.dependencies = &dependencies{lanes: deps.lanes, contexts: deps.contexts}
	} else {
		wip.dependencies = nil
	}

	wip.Sibling = current.Sibling
	wip.Index = current.Index
	wip.Ref = current.Ref

	return wip
}

func createHostRootFiber(tag RootTag) *Fiber {
	mode := NoMode
	if tag == ConcurrentRoot {
		mode = ModeConcurrent | ModeBlocking | ModeStrict
	}
	return newFiber(KindHostRoot, nil, "", mode)
}

func createFiberFromElement(el *Element, mode Mode, lanes lane.Lanes) (*Fiber, error) {
	f, err := createFiberFromTypeAndProps(el.Type, el.Key, el.Props, mode)
	if err != nil {
		return nil, err
	}
	f.Lanes = lanes
	return f, nil
}

func createFiberFromTypeAndProps(typ any, key string, props Props, mode Mode) (*Fiber, error) {
	var kind Kind
	switch t := typ.(type) {
	case string:
		kind = KindHostComponent
	case *Func:
		kind = KindFunction
	case *Class:
		kind = KindClass
	case *providerType:
		kind = KindContextProvider
	case *consumerType:
		kind = KindContextConsumer
	case *specialType:
		switch t {
		case fragmentType:
			kind = KindFragment
		case strictModeType:
			kind = KindMode
			mode |= ModeStrict
		case concurrentType:
			kind = KindMode
			mode |= ModeConcurrent | ModeBlocking | ModeStrict
		case suspenseType:
			kind = KindSuspense
		case offscreenType:
			kind = KindOffscreen
		default:
			return nil, errors.Wrapf(ErrInvalidChild, "unknown element type %v", t)
		}
	default:
		return nil, errors.Wrapf(ErrInvalidChild, "element type is invalid: got %T", typ)
	}

	f := newFiber(kind, props, key, mode)
	f.ElementType = typ
	f.Type = typ
	return f, nil
}

func createFiberFromFragment(children any, mode Mode, lanes lane.Lanes, key string) *Fiber {
	f := newFiber(KindFragment, Props{childrenProp: children}, key, mode)
	f.ElementType = fragmentType
	f.Type = fragmentType
	f.Lanes = lanes
	return f
}

func createFiberFromText(text string, mode Mode, lanes lane.Lanes) *Fiber {
	f := newFiber(KindHostText, Props{textProp: text}, "", mode)
	f.Lanes = lanes
	return f
}

func createFiberFromOffscreen(props Props, mode Mode, lanes lane.Lanes, key string) *Fiber {
	f := newFiber(KindOffscreen, props, key, mode)
	f.ElementType = offscreenType
	f.Type = offscreenType
	f.Lanes = lanes
	return f
}

type portalState struct {
	container any
}

func createFiberFromPortal(p *Portal, mode Mode, lanes lane.Lanes) *Fiber {
	f := newFiber(KindHostPortal, Props{childrenProp: p.Children}, p.Key, mode)
	f.Lanes = lanes
	f.StateNode = &portalState{container: p.Container}
	return f
}

// isHostParent reports fibers whose host node can contain children.
func (f *Fiber) isHostParent() bool {
	return f.Kind == KindHostComponent || f.Kind == KindHostRoot || f.Kind == KindHostPortal
}
