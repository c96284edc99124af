package core

import (
	"slices"
	"sync"

	"microcosm/pkg/domain"
)

type treeNode struct {
	action   *Action
	parent   ActionID
	lead     ActionID
	children []ActionID
}

// Tree is the arena that owns action linkage. Each record stores its parent,
// its lead child (the next action along the active branch) and its children
// in insertion order, all by id.
type Tree struct {
	mu    sync.RWMutex
	nodes map[ActionID]*treeNode
}

// NewTree returns an empty arena.
func NewTree() *Tree {
	return &Tree{nodes: make(map[ActionID]*treeNode)}
}

func (t *Tree) insert(a *Action) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[a.id]; !ok {
		t.nodes[a.id] = &treeNode{action: a}
	}
}

// Len returns the number of actions in the arena.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Contains reports whether a lives in this arena.
func (t *Tree) Contains(a *Action) bool {
	if a == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[a.id]
	return ok && n.action == a
}

// Get looks an action up by id.
func (t *Tree) Get(id ActionID) (*Action, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return nil, false
	}
	return n.action, true
}

func (t *Tree) actionLocked(id ActionID) *Action {
	if id == "" {
		return nil
	}
	if n, ok := t.nodes[id]; ok {
		return n.action
	}
	return nil
}

func (t *Tree) nodeLocked(a *Action) (*treeNode, error) {
	if a == nil {
		return nil, ErrUnknownAction
	}
	n, ok := t.nodes[a.id]
	if !ok || n.action != a {
		if a.tree != nil && a.tree != t {
			return nil, ErrForeignAction
		}
		return nil, ErrUnknownAction
	}
	return n, nil
}

// Before returns the parent of a.
func (t *Tree) Before(a *Action) *Action {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.nodeLocked(a)
	if err != nil {
		return nil
	}
	return t.actionLocked(n.parent)
}

// After returns the lead child of a.
func (t *Tree) After(a *Action) *Action {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.nodeLocked(a)
	if err != nil {
		return nil
	}
	return t.actionLocked(n.lead)
}

// Children returns the children of a in insertion order.
func (t *Tree) Children(a *Action) []*Action {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.nodeLocked(a)
	if err != nil {
		return nil
	}
	out := make([]*Action, 0, len(n.children))
	for _, id := range n.children {
		if c := t.actionLocked(id); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Point makes node the lead child of before.
func (t *Tree) Point(before, node *Action) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leadLocked(before, node)
}

// Adopt appends child to parent's children, detaching it from any previous
// parent. Adopting an existing child keeps its position.
func (t *Tree) Adopt(parent, child *Action) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.adoptLocked(parent, child)
}

func (t *Tree) adoptLocked(parent, child *Action) error {
	pn, err := t.nodeLocked(parent)
	if err != nil {
		return err
	}
	cn, err := t.nodeLocked(child)
	if err != nil {
		return err
	}
	if cn.parent != "" && cn.parent != parent.id {
		if old, ok := t.nodes[cn.parent]; ok {
			old.children = slices.DeleteFunc(old.children, func(id ActionID) bool { return id == child.id })
			if old.lead == child.id {
				old.lead = ""
			}
		}
	}
	if !slices.Contains(pn.children, child.id) {
		pn.children = append(pn.children, child.id)
	}
	cn.parent = parent.id
	return nil
}

// Lead sets parent's lead child, adopting it. A nil child clears the lead.
func (t *Tree) Lead(parent, child *Action) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leadLocked(parent, child)
}

func (t *Tree) leadLocked(parent, child *Action) error {
	pn, err := t.nodeLocked(parent)
	if err != nil {
		return err
	}
	if child == nil {
		pn.lead = ""
		return nil
	}
	if err := t.adoptLocked(parent, child); err != nil {
		return err
	}
	pn.lead = child.id
	return nil
}

// Abandon detaches child from parent. When child was the lead, its own lead
// takes its place. Abandoning an action that is not a child of parent
// returns ErrNotOwned and changes nothing.
func (t *Tree) Abandon(parent, child *Action) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	pn, err := t.nodeLocked(parent)
	if err != nil {
		return err
	}
	cn, err := t.nodeLocked(child)
	if err != nil {
		return err
	}
	idx := slices.Index(pn.children, child.id)
	if idx < 0 {
		return ErrNotOwned
	}
	pn.children = slices.Delete(pn.children, idx, idx+1)
	cn.parent = ""
	if pn.lead == child.id {
		pn.lead = ""
		if next := t.actionLocked(cn.lead); next != nil {
			return t.leadLocked(parent, next)
		}
	}
	return nil
}

// Prune cuts off everything above a by detaching its parent from the
// grandparent.
func (t *Tree) Prune(a *Action) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.nodeLocked(a)
	if err != nil {
		return err
	}
	pn, ok := t.nodes[n.parent]
	if !ok {
		return ErrDisconnected
	}
	if gp, ok := t.nodes[pn.parent]; ok {
		gp.children = slices.DeleteFunc(gp.children, func(id ActionID) bool { return id == n.parent })
		if gp.lead == n.parent {
			gp.lead = ""
		}
	}
	pn.parent = ""
	return nil
}

// Remove excises a from the arena. Its children move into its slot under
// its parent, in order, and its lead becomes the parent's lead if a was the
// lead. The result is the reconnection point: a's lead, or its parent when
// it had none.
func (t *Tree) Remove(a *Action) (*Action, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.nodeLocked(a)
	if err != nil {
		return nil, err
	}
	before, after := n.parent, n.lead

	if pn, ok := t.nodes[before]; ok {
		idx := slices.Index(pn.children, a.id)
		if idx >= 0 {
			pn.children = slices.Replace(pn.children, idx, idx+1, n.children...)
		} else {
			pn.children = append(pn.children, n.children...)
		}
		if pn.lead == a.id {
			pn.lead = after
		}
	} else {
		before = ""
	}
	for _, id := range n.children {
		if cn, ok := t.nodes[id]; ok {
			cn.parent = before
		}
	}
	delete(t.nodes, a.id)

	if next := t.actionLocked(after); next != nil {
		return next, nil
	}
	return t.actionLocked(before), nil
}

// Select lays lead pointers along the path from the root to a and returns
// that path, root first.
func (t *Tree) Select(a *Action) ([]*Action, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.nodeLocked(a)
	if err != nil {
		return nil, err
	}
	path := []*Action{a}
	seen := map[ActionID]bool{a.id: true}
	for n.parent != "" && !seen[n.parent] {
		pn, ok := t.nodes[n.parent]
		if !ok {
			break
		}
		pn.lead = n.action.id
		seen[n.parent] = true
		path = append(path, pn.action)
		n = pn
	}
	slices.Reverse(path)
	return path, nil
}

// Walk follows lead pointers from a, including a itself.
func (t *Tree) Walk(a *Action) []*Action {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.walkLocked(a, "")
}

func (t *Tree) walkLocked(a *Action, stop ActionID) []*Action {
	n, err := t.nodeLocked(a)
	if err != nil {
		return nil
	}
	var out []*Action
	seen := make(map[ActionID]bool)
	for n != nil && !seen[n.action.id] {
		seen[n.action.id] = true
		out = append(out, n.action)
		if n.action.id == stop {
			break
		}
		n = t.nodes[n.lead]
	}
	return out
}

func (t *Tree) linkage(a *Action) (children []string, next string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[a.id]
	if !ok || n.action != a {
		return []string{}, ""
	}
	children = make([]string, len(n.children))
	for i, id := range n.children {
		children[i] = string(id)
	}
	return children, string(n.lead)
}

// ToJSON renders the subtree rooted at a.
func (t *Tree) ToJSON(a *Action) *domain.TreeNodeJSON {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.nodeLocked(a)
	if err != nil {
		return nil
	}
	out := t.nodeJSONLocked(n, make(map[ActionID]bool))
	return &out
}

func (t *Tree) nodeJSONLocked(n *treeNode, seen map[ActionID]bool) domain.TreeNodeJSON {
	seen[n.action.id] = true
	rev := n.action.Revision()
	out := domain.TreeNodeJSON{
		ID:       string(n.action.id),
		Command:  n.action.command.Key(),
		Status:   rev.Status,
		Type:     n.action.Type(),
		Payload:  rev.Payload,
		Disabled: n.action.Disabled(),
		Next:     string(n.lead),
		Children: make([]domain.TreeNodeJSON, 0, len(n.children)),
	}
	for _, id := range n.children {
		cn, ok := t.nodes[id]
		if !ok || seen[id] {
			continue
		}
		out.Children = append(out.Children, t.nodeJSONLocked(cn, seen))
	}
	return out
}
