package core

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestTreeAdoptKeepsInsertionOrder(t *testing.T) {
	tree, a := treeActions(t, 4)
	root, b, c, d := a[0], a[1], a[2], a[3]

	assert.Equal(t, nil, tree.Adopt(root, b))
	assert.Equal(t, nil, tree.Adopt(root, c))
	assert.Equal(t, nil, tree.Adopt(root, b))
	assert.Equal(t, []ActionID{b.ID(), c.ID()}, ids(tree.Children(root)))
	assert.Equal(t, true, root == tree.Before(c))

	// moving c under b detaches it from root
	assert.Equal(t, nil, tree.Lead(root, c))
	assert.Equal(t, nil, tree.Adopt(b, c))
	assert.Equal(t, []ActionID{b.ID()}, ids(tree.Children(root)))
	assert.Equal(t, true, tree.After(root) == nil)
	assert.Equal(t, true, b == tree.Before(c))

	assert.Equal(t, 4, tree.Len())
	got, ok := tree.Get(d.ID())
	assert.Equal(t, true, ok)
	assert.Equal(t, true, d == got)
}

func TestTreeForeignAndUnknownActions(t *testing.T) {
	tree, a := treeActions(t, 1)
	_, other := treeActions(t, 1)

	assert.Equal(t, ErrForeignAction, tree.Adopt(a[0], other[0]))
	assert.Equal(t, ErrUnknownAction, tree.Adopt(a[0], nil))
	assert.Equal(t, false, tree.Contains(other[0]))
	assert.Equal(t, true, tree.Before(other[0]) == nil)
}

func TestTreeAbandonPromotesGrandchild(t *testing.T) {
	tree, a := treeActions(t, 3)
	parent, child, grandchild := a[0], a[1], a[2]
	assert.Equal(t, nil, tree.Point(parent, child))
	assert.Equal(t, nil, tree.Point(child, grandchild))

	assert.Equal(t, nil, tree.Abandon(parent, child))
	assert.Equal(t, true, grandchild == tree.After(parent))
	assert.Equal(t, true, parent == tree.Before(grandchild))
	assert.Equal(t, []ActionID{grandchild.ID()}, ids(tree.Children(parent)))
	assert.Equal(t, true, tree.Before(child) == nil)
	assert.Equal(t, 0, len(tree.Children(child)))
}

func TestTreeAbandonNotOwnedChangesNothing(t *testing.T) {
	tree, a := treeActions(t, 3)
	parent, child, stranger := a[0], a[1], a[2]
	assert.Equal(t, nil, tree.Point(parent, child))

	assert.Equal(t, ErrNotOwned, tree.Abandon(parent, stranger))
	assert.Equal(t, true, child == tree.After(parent))
	assert.Equal(t, []ActionID{child.ID()}, ids(tree.Children(parent)))
}

func TestTreeLeadNilClears(t *testing.T) {
	tree, a := treeActions(t, 2)
	assert.Equal(t, nil, tree.Lead(a[0], a[1]))
	assert.Equal(t, nil, tree.Lead(a[0], nil))
	assert.Equal(t, true, tree.After(a[0]) == nil)
	assert.Equal(t, 1, len(tree.Children(a[0])))
}

func TestTreeRemoveSplicesChildren(t *testing.T) {
	tree, a := treeActions(t, 5)
	root, mid, next, side, tail := a[0], a[1], a[2], a[3], a[4]
	assert.Equal(t, nil, tree.Adopt(root, tail))
	assert.Equal(t, nil, tree.Lead(root, mid))
	assert.Equal(t, nil, tree.Lead(mid, next))
	assert.Equal(t, nil, tree.Adopt(mid, side))

	base, err := tree.Remove(mid)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, next == base)
	assert.Equal(t, []ActionID{tail.ID(), next.ID(), side.ID()}, ids(tree.Children(root)))
	assert.Equal(t, true, next == tree.After(root))
	assert.Equal(t, true, root == tree.Before(side))
	assert.Equal(t, false, tree.Contains(mid))

	// without a lead the parent is the reconnection point
	base, err = tree.Remove(side)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, root == base)

	_, err = tree.Remove(mid)
	assert.Equal(t, ErrUnknownAction, err)
}

func TestTreePrune(t *testing.T) {
	tree, a := treeActions(t, 3)
	root, mid, leaf := a[0], a[1], a[2]
	assert.Equal(t, nil, tree.Point(root, mid))
	assert.Equal(t, nil, tree.Point(mid, leaf))

	assert.Equal(t, nil, tree.Prune(leaf))
	assert.Equal(t, 0, len(tree.Children(root)))
	assert.Equal(t, true, tree.After(root) == nil)
	assert.Equal(t, true, tree.Before(mid) == nil)
	assert.Equal(t, true, mid == tree.Before(leaf))

	assert.Equal(t, ErrDisconnected, tree.Prune(mid))
}

func TestTreeSelectRelaysLeads(t *testing.T) {
	tree, a := treeActions(t, 4)
	root, left, right, leaf := a[0], a[1], a[2], a[3]
	assert.Equal(t, nil, tree.Point(root, left))
	assert.Equal(t, nil, tree.Adopt(root, right))
	assert.Equal(t, nil, tree.Adopt(right, leaf))

	path, err := tree.Select(leaf)
	assert.Equal(t, nil, err)
	assert.Equal(t, []ActionID{root.ID(), right.ID(), leaf.ID()}, ids(path))
	assert.Equal(t, []ActionID{root.ID(), right.ID(), leaf.ID()}, ids(tree.Walk(root)))
}

func TestTreeToJSONNests(t *testing.T) {
	tree, a := treeActions(t, 3)
	root, b, c := a[0], a[1], a[2]
	assert.Equal(t, nil, tree.Point(root, b))
	assert.Equal(t, nil, tree.Adopt(root, c))
	b.Resolve("ok")

	node := tree.ToJSON(root)
	assert.Equal(t, string(root.ID()), node.ID)
	assert.Equal(t, string(b.ID()), node.Next)
	assert.Equal(t, 2, len(node.Children))
	assert.Equal(t, "ok", node.Children[0].Payload)
	assert.Equal(t, "echo", node.Children[0].Type)
	assert.Equal(t, 0, len(node.Children[1].Children))

	assert.Equal(t, true, tree.ToJSON(nil) == nil)
}
