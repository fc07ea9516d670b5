package fiber

import (
	"fmt"
	"iter"
)

// Props are the inputs of an element. The "children" entry holds the
// element's children description.
type Props map[string]any

const (
	childrenProp = "children"
	keyProp      = "key"
	refProp      = "ref"
	fallbackProp = "fallback"
	modeProp     = "mode"
)

func (p Props) Children() any {
	if p == nil {
		return nil
	}
	return p[childrenProp]
}

// State is the state of a class component or of the host root.
type State = any

// Element describes one positioned node of the tree. Type is a host tag
// (string), a *Func, a *Class, or one of the structural types created by
// the constructors in this file.
type Element struct {
	Type  any
	Key   string
	Ref   Ref
	Props Props
}

// Portal renders Children into a different host container.
type Portal struct {
	Key       string
	Container any
	Children  any
}

// H builds an element. "key" and "ref" entries of props are lifted into
// the element; children after props become the "children" prop.
func H(typ any, props Props, children ...any) *Element {
	el := &Element{Type: typ, Props: make(Props, len(props)+1)}
	for k, v := range props {
		switch k {
		case keyProp:
			if v != nil {
				el.Key = fmt.Sprint(v)
			}
		case refProp:
			if r, ok := v.(Ref); ok {
				el.Ref = r
			}
		default:
			el.Props[k] = v
		}
	}
	switch len(children) {
	case 0:
	case 1:
		el.Props[childrenProp] = children[0]
	default:
		el.Props[childrenProp] = children
	}
	return el
}

// Keyed returns a copy of el carrying key.
func Keyed(key any, el *Element) *Element {
	clone := *el
	clone.Key = fmt.Sprint(key)
	return &clone
}

// CreatePortal describes children rendered into container.
func CreatePortal(children any, container any, key string) *Portal {
	return &Portal{Key: key, Container: container, Children: children}
}

// RenderFunc is the body of a function component.
type RenderFunc func(h *Hooks, props Props) (any, error)

type Func struct {
	Name   string
	Render RenderFunc
}

func Component(name string, render RenderFunc) *Func {
	return &Func{Name: name, Render: render}
}

// Class describes a class component. A class that sets
// DerivedStateFromError, or whose instances implement ErrorCatcher, is an
// error boundary.
type Class struct {
	Name string
	New  func(props Props) Instance
	// ContextType is read into Base.Context on every render.
	ContextType           *Context
	InitialState          func(props Props) State
	DerivedStateFromProps func(props Props, state State) State
	DerivedStateFromError func(err error) State
}

type specialType struct {
	name string
}

func (s *specialType) String() string { return s.name }

var (
	fragmentType   = &specialType{"Fragment"}
	strictModeType = &specialType{"StrictMode"}
	concurrentType = &specialType{"ConcurrentMode"}
	suspenseType   = &specialType{"Suspense"}
	offscreenType  = &specialType{"Offscreen"}
)

func Fragment(children ...any) *Element {
	return H(fragmentType, nil, children...)
}

func StrictMode(children ...any) *Element {
	return H(strictModeType, nil, children...)
}

// ConcurrentMode opts a subtree of a legacy root into concurrent updates.
func ConcurrentMode(children ...any) *Element {
	return H(concurrentType, nil, children...)
}

// Suspense shows fallback while anything in children is suspended.
func Suspense(fallback any, children ...any) *Element {
	return H(suspenseType, Props{fallbackProp: fallback}, children...)
}

type OffscreenMode string

const (
	OffscreenVisible OffscreenMode = "visible"
	OffscreenHidden  OffscreenMode = "hidden"
)

// Offscreen renders children; when hidden, their work is deferred to the
// offscreen lane and their host nodes are hidden.
func Offscreen(mode OffscreenMode, children ...any) *Element {
	return H(offscreenType, Props{modeProp: mode}, children...)
}

func offscreenModeOf(p Props) OffscreenMode {
	if m, ok := p[modeProp].(OffscreenMode); ok {
		return m
	}
	return OffscreenVisible
}

// flattenIterable turns supported iterable children descriptions into a
// slice.
func flattenIterable(children any) ([]any, bool) {
	switch c := children.(type) {
	case []any:
		return c, true
	case []*Element:
		out := make([]any, len(c))
		for i, el := range c {
			out[i] = el
		}
		return out, true
	case []string:
		out := make([]any, len(c))
		for i, s := range c {
			out[i] = s
		}
		return out, true
	case iter.Seq[any]:
		var out []any
		for v := range c {
			out = append(out, v)
		}
		return out, true
	case iter.Seq[*Element]:
		var out []any
		for v := range c {
			out = append(out, v)
		}
		return out, true
	}
	return nil, false
}

// textOf reports whether child renders as a text leaf.
func textOf(child any) (string, bool) {
	switch v := child.(type) {
	case string:
		return v, true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v), true
	case fmt.Stringer:
		return v.String(), true
	}
	return "", false
}

// isEmptyChild reports descriptions that render nothing.
func isEmptyChild(child any) bool {
	switch v := child.(type) {
	case nil:
		return true
	case bool:
		return true
	case *Element:
		return v == nil
	case *Portal:
		return v == nil
	}
	return false
}
