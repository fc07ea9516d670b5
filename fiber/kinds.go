package fiber

import "github.com/delaneyj/fiberparty/lane"

type workFunc func(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error)

type commitFunc func(r *Reconciler, current, finished *Fiber) error

// kindBehavior is what the work loop and the commit driver do with a
// fiber of one kind. Nil entries do nothing.
type kindBehavior struct {
	// begin renders the fiber and returns its first child.
	begin workFunc
	// bailout restores what begin would have pushed when the fiber has no
	// work of its own. Without one the children are cloned as they are.
	bailout workFunc
	// complete runs once every child has completed. A non-nil result is
	// begun again.
	complete workFunc
	// pop undoes the pushes of begin when the fiber is unwound.
	pop func(r *Reconciler, f *Fiber)
	// captures marks boundaries that may catch what their subtree threw.
	captures bool

	commitSnapshot commitFunc
	commitUpdate   commitFunc
	commitLayout   commitFunc
	commitUnmount  func(r *Reconciler, current *Fiber) error
}

var kinds [kindCount]kindBehavior

func init() {
	kinds[KindFunction] = kindBehavior{
		begin:         beginFunctionComponent,
		commitUpdate:  commitFunctionUpdate,
		commitLayout:  commitFunctionLayout,
		commitUnmount: commitFunctionUnmount,
	}
	kinds[KindClass] = kindBehavior{
		begin:          beginClassComponent,
		bailout:        bailoutClassComponent,
		complete:       completeClassComponent,
		pop:            popClassComponent,
		captures:       true,
		commitSnapshot: commitClassSnapshot,
		commitLayout:   commitClassLayout,
		commitUnmount:  commitClassUnmount,
	}
	kinds[KindHostRoot] = kindBehavior{
		begin:          beginHostRoot,
		bailout:        bailoutHostRoot,
		complete:       completeHostRoot,
		pop:            popHostRoot,
		commitSnapshot: commitHostRootSnapshot,
		commitLayout:   commitHostRootLayout,
	}
	kinds[KindHostPortal] = kindBehavior{
		begin:         beginHostPortal,
		bailout:       bailoutHostPortal,
		complete:      completeHostPortal,
		pop:           popHostPortal,
		commitUnmount: commitHostPortalUnmount,
	}
	kinds[KindHostComponent] = kindBehavior{
		begin:         beginHostComponent,
		bailout:       bailoutHostComponent,
		complete:      completeHostComponent,
		pop:           popHostComponent,
		commitUpdate:  commitHostComponentUpdate,
		commitLayout:  commitHostComponentLayout,
		commitUnmount: commitHostComponentUnmount,
	}
	kinds[KindHostText] = kindBehavior{
		begin:        beginHostText,
		complete:     completeHostText,
		commitUpdate: commitHostTextUpdate,
	}
	kinds[KindFragment] = kindBehavior{
		begin: beginFragment,
	}
	kinds[KindMode] = kindBehavior{
		begin: beginFragment,
	}
	kinds[KindContextProvider] = kindBehavior{
		begin:    beginContextProvider,
		bailout:  bailoutContextProvider,
		complete: completeContextProvider,
		pop:      popContextProvider,
	}
	kinds[KindContextConsumer] = kindBehavior{
		begin: beginContextConsumer,
	}
	kinds[KindSuspense] = kindBehavior{
		begin:        beginSuspense,
		bailout:      bailoutSuspense,
		complete:     completeSuspense,
		captures:     true,
		commitUpdate: commitSuspenseUpdate,
	}
	kinds[KindOffscreen] = kindBehavior{
		begin:        beginOffscreen,
		bailout:      beginOffscreen,
		complete:     completeOffscreen,
		pop:          popOffscreen,
		commitUpdate: commitOffscreenUpdate,
	}
}

func popHostRoot(r *Reconciler, f *Fiber) {
	r.popHostContainer(f)
	r.popTopLevelLegacyContext(f)
}

func popHostPortal(r *Reconciler, f *Fiber) {
	r.popHostContainer(f)
}

func popHostComponent(r *Reconciler, f *Fiber) {
	r.popHostContext(f)
}

func popClassComponent(r *Reconciler, f *Fiber) {
	if isLegacyContextProvider(f) {
		r.popLegacyContext(f)
	}
}

func popContextProvider(r *Reconciler, f *Fiber) {
	r.popProvider(f)
}

func popOffscreen(r *Reconciler, f *Fiber) {
	r.popRenderLanes(f)
}
