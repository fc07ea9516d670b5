package memhost_test

import (
	"testing"

	"github.com/delaneyj/fiberparty/fiber"
	"github.com/delaneyj/fiberparty/memhost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// should build, reorder and remove nodes like a document
func TestHostMutations(t *testing.T) {
	h := memhost.New()
	c := h.NewContainer()

	a, err := h.CreateInstance("li", fiber.Props{"id": "a"}, c, memhost.HTML)
	require.NoError(t, err)
	b, err := h.CreateInstance("li", fiber.Props{"id": "b"}, c, memhost.HTML)
	require.NoError(t, err)

	h.AppendChildToContainer(c, a)
	h.AppendChildToContainer(c, b)
	assert.Equal(t, `<li id="a"></li><li id="b"></li>`, memhost.Markup(c))

	h.InsertInContainerBefore(c, b, a)
	assert.Equal(t, `<li id="b"></li><li id="a"></li>`, memhost.Markup(c))

	h.RemoveChildFromContainer(c, b)
	assert.Equal(t, `<li id="a"></li>`, memhost.Markup(c))
	assert.Len(t, h.OpsOf(memhost.OpCreate), 2)
	assert.Len(t, h.OpsOf(memhost.OpAppend, memhost.OpInsert), 3)
	assert.Len(t, h.OpsOf(memhost.OpRemove), 1)
}

// should diff attributes and text content
func TestPrepareUpdate(t *testing.T) {
	h := memhost.New()
	old := fiber.Props{"class": "x", "title": "t", "children": "hi"}

	assert.Nil(t, h.PrepareUpdate(nil, "p", old, fiber.Props{"class": "x", "title": "t", "children": "hi"}, memhost.HTML))

	payload := h.PrepareUpdate(nil, "p", old, fiber.Props{"class": "y", "children": "bye"}, memhost.HTML)
	require.NotNil(t, payload)
	changes := payload.([]memhost.Change)
	assert.ElementsMatch(t, []memhost.Change{
		{Key: "class", Value: "y"},
		{Key: "title", Removed: true},
		{Key: "children", Value: "bye"},
	}, changes)

	inst, err := h.CreateInstance("p", old, nil, memhost.HTML)
	require.NoError(t, err)
	h.CommitUpdate(inst, payload, "p", old, nil)
	n := inst.(*memhost.Node)
	assert.Equal(t, map[string]any{"class": "y"}, n.Attrs)
	assert.Equal(t, "bye", n.Text)
}

// should switch to the svg namespace below svg and back in foreignObject
func TestHostContext(t *testing.T) {
	h := memhost.New()
	root := h.GetRootHostContext(h.NewContainer())
	assert.Equal(t, memhost.HTML, root)

	svg := h.GetChildHostContext(root, "svg")
	assert.Equal(t, memhost.SVG, svg)
	assert.Equal(t, memhost.SVG, h.GetChildHostContext(svg, "circle"))
	assert.Equal(t, memhost.HTML, h.GetChildHostContext(svg, "foreignObject"))

	inst, err := h.CreateInstance("svg", nil, nil, root)
	require.NoError(t, err)
	assert.Equal(t, memhost.SVG, inst.(*memhost.Node).Namespace)
}

// should hide elements and blank hidden text in the markup
func TestHideAndDigest(t *testing.T) {
	h := memhost.New()
	c := h.NewContainer()
	div, _ := h.CreateInstance("div", nil, c, memhost.HTML)
	txt, _ := h.CreateTextInstance("hello", c, memhost.HTML)
	h.AppendChildToContainer(c, div)
	h.AppendChildToContainer(c, txt)

	before := memhost.Digest(c)
	assert.Equal(t, `<div></div>hello`, memhost.Markup(c))

	h.HideInstance(div)
	h.HideTextInstance(txt)
	assert.Equal(t, `<div hidden></div>`, memhost.Markup(c))
	assert.NotEqual(t, before, memhost.Digest(c))

	h.UnhideInstance(div, nil)
	h.UnhideTextInstance(txt, "hello")
	assert.Equal(t, before, memhost.Digest(c))
}

// should escape text and attribute values
func TestMarkupEscapes(t *testing.T) {
	h := memhost.New()
	c := h.NewContainer()
	a, _ := h.CreateInstance("a", fiber.Props{"href": `"x"`, "onClick": func() {}}, c, memhost.HTML)
	txt, _ := h.CreateTextInstance("<b>", c, memhost.HTML)
	h.AppendInitialChild(a, txt)
	h.AppendChildToContainer(c, a)
	assert.Equal(t, `<a href="&quot;x&quot;">&lt;b&gt;</a>`, memhost.Markup(c))
}
