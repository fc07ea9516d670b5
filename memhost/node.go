package memhost

import (
	"fmt"
	"reflect"
	"slices"
	"sort"

	"github.com/delaneyj/fiberparty/fiber"
)

type Namespace string

const (
	HTML Namespace = "html"
	SVG  Namespace = "svg"
)

const (
	containerType = "#container"
	childrenKey   = "children"
)

// Node is an element, a text node or a container of the in-memory tree.
type Node struct {
	ID        int
	Type      string
	Namespace Namespace
	// Text is the content of a text node, or the text an element renders
	// itself.
	Text     string
	Attrs    map[string]any
	Hidden   bool
	Mounted  bool
	Parent   *Node
	Children []*Node
}

func (n *Node) IsText() bool {
	return n.Type == ""
}

func (n *Node) IsContainer() bool {
	return n.Type == containerType
}

func (n *Node) String() string {
	switch {
	case n.IsText():
		return fmt.Sprintf("#text%d(%q)", n.ID, n.Text)
	case n.IsContainer():
		return fmt.Sprintf("#container%d", n.ID)
	default:
		return fmt.Sprintf("%s%d", n.Type, n.ID)
	}
}

// TextContent concatenates the visible text below n.
func (n *Node) TextContent() string {
	if n.IsText() {
		if n.Hidden {
			return ""
		}
		return n.Text
	}
	s := n.Text
	for _, c := range n.Children {
		s += c.TextContent()
	}
	return s
}

// Attr is one rendered attribute.
type Attr struct {
	Key   string
	Value string
}

// SortedAttrs lists the attributes that render as markup, sorted by key.
// Functions do not render.
func (n *Node) SortedAttrs() []Attr {
	keys := make([]string, 0, len(n.Attrs))
	for k, v := range n.Attrs {
		if v == nil || reflect.TypeOf(v).Kind() == reflect.Func {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]Attr, len(keys))
	for i, k := range keys {
		attrs[i] = Attr{Key: k, Value: fmt.Sprint(n.Attrs[k])}
	}
	return attrs
}

func (n *Node) indexOf(child *Node) int {
	return slices.Index(n.Children, child)
}

func (n *Node) detach(child *Node) {
	if i := n.indexOf(child); i >= 0 {
		n.Children = slices.Delete(n.Children, i, i+1)
	}
	child.Parent = nil
}

func (n *Node) append(child *Node) {
	if p := child.Parent; p != nil {
		p.detach(child)
	}
	n.Children = append(n.Children, child)
	child.Parent = n
}

func (n *Node) insertBefore(child, before *Node) {
	if p := child.Parent; p != nil {
		p.detach(child)
	}
	i := n.indexOf(before)
	if i < 0 {
		n.Children = append(n.Children, child)
	} else {
		n.Children = slices.Insert(n.Children, i, child)
	}
	child.Parent = n
}

// attrsOf copies the attributes of props, leaving children out.
func attrsOf(props fiber.Props) map[string]any {
	attrs := make(map[string]any, len(props))
	for k, v := range props {
		if k == childrenKey {
			continue
		}
		attrs[k] = v
	}
	return attrs
}

// textChild returns the text an element renders itself.
func textChild(props fiber.Props) (string, bool) {
	switch v := props.Children().(type) {
	case string:
		return v, true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v), true
	}
	return "", false
}
