// Package memhost is an in-memory host for the fiber reconciler. It keeps
// a plain node tree and records every mutation the reconciler commits, so
// tests and benchmarks can check both the result and the work done.
package memhost

import (
	"reflect"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/fiberparty/fiber"
	"github.com/sirupsen/logrus"
)

type OpKind string

const (
	OpCreate        OpKind = "create"
	OpCreateText    OpKind = "create-text"
	OpAppendInitial OpKind = "append-initial"
	OpAppend        OpKind = "append"
	OpInsert        OpKind = "insert"
	OpRemove        OpKind = "remove"
	OpUpdate        OpKind = "update"
	OpUpdateText    OpKind = "update-text"
	OpResetText     OpKind = "reset-text"
	OpMount         OpKind = "mount"
	OpHide          OpKind = "hide"
	OpUnhide        OpKind = "unhide"
	OpClear         OpKind = "clear"
)

// Op is one recorded host operation.
type Op struct {
	Kind   OpKind
	Node   *Node
	Parent *Node
	Before *Node
}

// Change is one attribute difference computed by PrepareUpdate. Removed
// changes delete the attribute.
type Change struct {
	Key     string
	Value   any
	Removed bool
}

// Host implements fiber.HostConfig over Nodes. It is not safe for
// concurrent use.
type Host struct {
	log     logrus.FieldLogger
	nextID  int
	ops     []Op
	commits int
}

var _ fiber.HostConfig = (*Host)(nil)

type Option func(*Host)

func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Host) {
		h.log = l
	}
}

func New(opts ...Option) *Host {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	h := &Host{log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Host) newNode(typ string) *Node {
	h.nextID++
	return &Node{ID: h.nextID, Type: typ}
}

// NewContainer returns an empty container to render a root into.
func (h *Host) NewContainer() *Node {
	n := h.newNode(containerType)
	n.Namespace = HTML
	return n
}

// Ops returns the operations recorded since the last ResetOps.
func (h *Host) Ops() []Op {
	return h.ops
}

// OpsOf returns the recorded operations of the given kinds.
func (h *Host) OpsOf(kinds ...OpKind) []Op {
	var out []Op
	for _, op := range h.ops {
		for _, k := range kinds {
			if op.Kind == k {
				out = append(out, op)
				break
			}
		}
	}
	return out
}

func (h *Host) ResetOps() {
	h.ops = nil
}

// Commits returns how many commits touched the host.
func (h *Host) Commits() int {
	return h.commits
}

func (h *Host) record(op Op) {
	h.ops = append(h.ops, op)
	h.log.WithFields(logrus.Fields{
		"op":   op.Kind,
		"node": op.Node,
	}).Trace("host op")
}

func (h *Host) GetRootHostContext(container any) any {
	if n, ok := container.(*Node); ok && n.Namespace != "" {
		return n.Namespace
	}
	return HTML
}

func (h *Host) GetChildHostContext(parent any, typ string) any {
	ns, _ := parent.(Namespace)
	switch {
	case typ == "svg":
		return SVG
	case ns == SVG && typ == "foreignObject":
		return HTML
	}
	return ns
}

func (h *Host) ShouldSetTextContent(typ string, props fiber.Props) bool {
	if typ == "textarea" {
		return true
	}
	_, ok := textChild(props)
	return ok
}

func (h *Host) CreateInstance(typ string, props fiber.Props, _ any, hostContext any) (any, error) {
	n := h.newNode(typ)
	n.Namespace, _ = hostContext.(Namespace)
	if typ == "svg" {
		n.Namespace = SVG
	}
	n.Attrs = attrsOf(props)
	n.Text, _ = textChild(props)
	h.record(Op{Kind: OpCreate, Node: n})
	return n, nil
}

func (h *Host) CreateTextInstance(text string, _ any, hostContext any) (any, error) {
	n := h.newNode("")
	n.Namespace, _ = hostContext.(Namespace)
	n.Text = text
	h.record(Op{Kind: OpCreateText, Node: n})
	return n, nil
}

func (h *Host) AppendInitialChild(parent, child any) {
	p, c := parent.(*Node), child.(*Node)
	p.append(c)
	h.record(Op{Kind: OpAppendInitial, Node: c, Parent: p})
}

// FinalizeInitialChildren asks for a CommitMount for autoFocus elements.
func (h *Host) FinalizeInitialChildren(_ any, _ string, props fiber.Props, _ any) bool {
	focus, _ := props["autoFocus"].(bool)
	return focus
}

// PrepareUpdate diffs the attributes of oldProps and newProps. It returns
// nil when nothing the host renders changed.
func (h *Host) PrepareUpdate(_ any, typ string, oldProps, newProps fiber.Props, _ any) any {
	keys := mapset.NewThreadUnsafeSet[string]()
	for k := range oldProps {
		keys.Add(k)
	}
	for k := range newProps {
		keys.Add(k)
	}
	keys.Remove(childrenKey)

	var changes []Change
	for _, k := range keys.ToSlice() {
		next, inNext := newProps[k]
		prev, inPrev := oldProps[k]
		switch {
		case !inNext:
			changes = append(changes, Change{Key: k, Removed: true})
		case !inPrev || !reflect.DeepEqual(prev, next):
			changes = append(changes, Change{Key: k, Value: next})
		}
	}

	prevText, prevOK := textChild(oldProps)
	nextText, nextOK := textChild(newProps)
	if nextOK && (!prevOK || prevText != nextText) {
		changes = append(changes, Change{Key: childrenKey, Value: nextText})
	}

	if len(changes) == 0 {
		return nil
	}
	return changes
}

func (h *Host) GetPublicInstance(instance any) any {
	return instance
}

func (h *Host) PrepareForCommit(any) {
	h.commits++
}

func (h *Host) ResetAfterCommit(any) {}

func (h *Host) CommitMount(instance any, _ string, _ fiber.Props) {
	n := instance.(*Node)
	n.Mounted = true
	h.record(Op{Kind: OpMount, Node: n})
}

func (h *Host) CommitUpdate(instance any, payload any, _ string, _, _ fiber.Props) {
	n := instance.(*Node)
	for _, c := range payload.([]Change) {
		switch {
		case c.Key == childrenKey:
			n.Text, _ = c.Value.(string)
		case c.Removed:
			delete(n.Attrs, c.Key)
		default:
			if n.Attrs == nil {
				n.Attrs = map[string]any{}
			}
			n.Attrs[c.Key] = c.Value
		}
	}
	h.record(Op{Kind: OpUpdate, Node: n})
}

func (h *Host) CommitTextUpdate(textInstance any, _, newText string) {
	n := textInstance.(*Node)
	n.Text = newText
	h.record(Op{Kind: OpUpdateText, Node: n})
}

func (h *Host) ResetTextContent(instance any) {
	n := instance.(*Node)
	n.Text = ""
	h.record(Op{Kind: OpResetText, Node: n})
}

func (h *Host) AppendChild(parent, child any) {
	p, c := parent.(*Node), child.(*Node)
	p.append(c)
	h.record(Op{Kind: OpAppend, Node: c, Parent: p})
}

func (h *Host) AppendChildToContainer(container, child any) {
	h.AppendChild(container, child)
}

func (h *Host) InsertBefore(parent, child, before any) {
	p, c, b := parent.(*Node), child.(*Node), before.(*Node)
	p.insertBefore(c, b)
	h.record(Op{Kind: OpInsert, Node: c, Parent: p, Before: b})
}

func (h *Host) InsertInContainerBefore(container, child, before any) {
	h.InsertBefore(container, child, before)
}

func (h *Host) RemoveChild(parent, child any) {
	p, c := parent.(*Node), child.(*Node)
	p.detach(c)
	h.record(Op{Kind: OpRemove, Node: c, Parent: p})
}

func (h *Host) RemoveChildFromContainer(container, child any) {
	h.RemoveChild(container, child)
}

func (h *Host) ClearContainer(container any) {
	n := container.(*Node)
	if len(n.Children) == 0 {
		return
	}
	for _, c := range n.Children {
		c.Parent = nil
	}
	n.Children = nil
	h.record(Op{Kind: OpClear, Node: n})
}

func (h *Host) HideInstance(instance any) {
	n := instance.(*Node)
	n.Hidden = true
	h.record(Op{Kind: OpHide, Node: n})
}

func (h *Host) HideTextInstance(textInstance any) {
	h.HideInstance(textInstance)
}

func (h *Host) UnhideInstance(instance any, _ fiber.Props) {
	n := instance.(*Node)
	n.Hidden = false
	h.record(Op{Kind: OpUnhide, Node: n})
}

func (h *Host) UnhideTextInstance(textInstance any, text string) {
	n := textInstance.(*Node)
	n.Text = text
	h.UnhideInstance(n, nil)
}
