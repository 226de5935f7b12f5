package model

import (
	"strings"
)

// Node is a mutable scene-graph element: an interned kind, a tag set, an
// insertion-ordered attribute map, and sibling-linked children. A node has
// at most one parent.
//
// Attribute storage is copy-on-write: Copy shares the attribute map between
// the original and the copy, and the first mutation on either side clones it.
type Node struct {
	kind        string
	tags        []string
	tagSet      map[string]struct{}
	attrs       *attrMap
	parent      *Node
	firstChild  *Node
	lastChild   *Node
	nextSibling *Node
}

// attrMap is an insertion-ordered attribute mapping with a shared flag used
// to implement copy-on-write.
type attrMap struct {
	names  []string
	values map[string]Vector
	shared bool
}

func newAttrMap() *attrMap {
	return &attrMap{values: make(map[string]Vector)}
}

func (m *attrMap) clone() *attrMap {
	names := make([]string, len(m.names))
	copy(names, m.names)
	values := make(map[string]Vector, len(m.values))
	for k, v := range m.values {
		values[k] = v
	}
	return &attrMap{names: names, values: values}
}

// NewNode returns a parentless node of the given kind with optional tags.
func NewNode(kind string, tags ...string) *Node {
	n := &Node{kind: kind, attrs: newAttrMap()}
	for _, tag := range tags {
		n.AddTag(tag)
	}
	return n
}

// Kind returns the node kind.
func (n *Node) Kind() string {
	return n.kind
}

// Parent returns the owning node, nil for detached nodes and the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// FirstChild returns the first child, nil if the node has none.
func (n *Node) FirstChild() *Node {
	return n.firstChild
}

// NextSibling returns the next sibling under the same parent.
func (n *Node) NextSibling() *Node {
	return n.nextSibling
}

// Children collects the child nodes in document order.
func (n *Node) Children() []*Node {
	var children []*Node
	for child := n.firstChild; child != nil; child = child.nextSibling {
		children = append(children, child)
	}
	return children
}

// AddTag adds a tag; adding an existing tag is a no-op.
func (n *Node) AddTag(tag string) {
	if n.tagSet == nil {
		n.tagSet = make(map[string]struct{})
	}
	if _, ok := n.tagSet[tag]; ok {
		return
	}
	n.tagSet[tag] = struct{}{}
	n.tags = append(n.tags, tag)
}

// HasTag reports whether the node carries the tag.
func (n *Node) HasTag(tag string) bool {
	_, ok := n.tagSet[tag]
	return ok
}

// Tags returns the tags in insertion order. Callers must not mutate the
// returned slice.
func (n *Node) Tags() []string {
	return n.tags
}

// SetAttribute sets name to value, cloning a shared attribute map first.
// Setting null removes the attribute.
func (n *Node) SetAttribute(name string, value Vector) {
	if n.attrs.shared {
		n.attrs = n.attrs.clone()
	}
	if value.IsNull() {
		if _, ok := n.attrs.values[name]; ok {
			delete(n.attrs.values, name)
			for i, existing := range n.attrs.names {
				if existing == name {
					n.attrs.names = append(n.attrs.names[:i], n.attrs.names[i+1:]...)
					break
				}
			}
		}
		return
	}
	if _, ok := n.attrs.values[name]; !ok {
		n.attrs.names = append(n.attrs.names, name)
	}
	n.attrs.values[name] = value
}

// Attribute returns the value bound to name, null if absent.
func (n *Node) Attribute(name string) Vector {
	return n.attrs.values[name]
}

// HasAttribute reports whether name is bound on the node.
func (n *Node) HasAttribute(name string) bool {
	_, ok := n.attrs.values[name]
	return ok
}

// AttributeNames returns the attribute names in insertion order.
func (n *Node) AttributeNames() []string {
	return n.attrs.names
}

// Append attaches child as the last child. A child that already has a
// parent is attached as a deep copy instead, leaving the original in place.
func (n *Node) Append(child *Node) {
	if child.parent != nil {
		child = child.Copy()
	}
	child.parent = n
	if n.lastChild != nil {
		n.lastChild.nextSibling = child
		n.lastChild = child
	} else {
		n.firstChild = child
		n.lastChild = child
	}
}

// AppendIfUnattached attaches child only when it has no parent, reporting
// whether it was attached. Used by AppendRoot, which silently skips nodes
// already placed in the tree.
func (n *Node) AppendIfUnattached(child *Node) bool {
	if child.parent != nil {
		return false
	}
	n.Append(child)
	return true
}

// Insert attaches child as the first child, copying it if already attached.
func (n *Node) Insert(child *Node) {
	if child.parent != nil {
		child = child.Copy()
	}
	child.parent = n
	child.nextSibling = n.firstChild
	n.firstChild = child
	if n.lastChild == nil {
		n.lastChild = child
	}
}

// Remove detaches child from the node; removing a non-child is a no-op.
func (n *Node) Remove(child *Node) {
	if child.parent != n {
		return
	}
	var prev *Node
	for cur := n.firstChild; cur != nil; cur = cur.nextSibling {
		if cur == child {
			if prev == nil {
				n.firstChild = cur.nextSibling
			} else {
				prev.nextSibling = cur.nextSibling
			}
			if n.lastChild == cur {
				n.lastChild = prev
			}
			child.parent = nil
			child.nextSibling = nil
			return
		}
		prev = cur
	}
}

// Copy returns a deep, parentless copy. The attribute map is shared with
// the original until either side mutates it.
func (n *Node) Copy() *Node {
	dup := &Node{kind: n.kind, attrs: n.attrs}
	n.attrs.shared = true
	if n.tags != nil {
		dup.tags = make([]string, len(n.tags))
		copy(dup.tags, n.tags)
		dup.tagSet = make(map[string]struct{}, len(n.tagSet))
		for tag := range n.tagSet {
			dup.tagSet[tag] = struct{}{}
		}
	}
	for child := n.firstChild; child != nil; child = child.nextSibling {
		dup.Append(child.Copy())
	}
	return dup
}

// Equal reports structural equality: kind, tags, attributes and children,
// ignoring node identity.
func (n *Node) Equal(other *Node) bool {
	if n == other {
		return true
	}
	if n == nil || other == nil {
		return false
	}
	if n.kind != other.kind || len(n.tags) != len(other.tags) {
		return false
	}
	for _, tag := range n.tags {
		if !other.HasTag(tag) {
			return false
		}
	}
	if len(n.attrs.names) != len(other.attrs.names) {
		return false
	}
	for _, name := range n.attrs.names {
		if !n.attrs.values[name].Equal(other.attrs.values[name]) {
			return false
		}
	}
	a, b := n.firstChild, other.firstChild
	for a != nil && b != nil {
		if !a.Equal(b) {
			return false
		}
		a, b = a.nextSibling, b.nextSibling
	}
	return a == nil && b == nil
}

// Repr returns the node and its subtree in source-like indented form.
func (n *Node) Repr() string {
	var b strings.Builder
	n.repr(&b, 0)
	return b.String()
}

func (n *Node) repr(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat(" ", depth*2))
	b.WriteByte('!')
	b.WriteString(n.kind)
	for _, tag := range n.tags {
		b.WriteByte(' ')
		b.WriteByte('#')
		b.WriteString(tag)
	}
	for _, name := range n.attrs.names {
		b.WriteByte(' ')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(n.attrs.values[name].Repr())
	}
	b.WriteByte('\n')
	for child := n.firstChild; child != nil; child = child.nextSibling {
		child.repr(b, depth+1)
	}
}

func (n *Node) String() string {
	return "!" + n.kind
}
