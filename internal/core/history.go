package core

import (
	"context"
	"encoding/json"
	"iter"
	"sync"

	"microcosm/pkg/domain"
	"microcosm/pkg/observable"
)

// History records every pushed action in a tree. The active branch runs
// from the root to the head along lead pointers; checking out an older
// action starts a new branch from it. Settled actions at the start of the
// branch are archived automatically unless debug is enabled.
type History struct {
	mu      sync.Mutex
	tree    *Tree
	root    *Action
	head    *Action
	branch  map[ActionID]struct{}
	updates *observable.Subject[*Action]
	debug   bool
	logger  Logger

	hooks    map[int]func(*Action)
	hookSeq  int
	archived uint64
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithHistoryDebug keeps every action instead of archiving settled ones.
func WithHistoryDebug(debug bool) HistoryOption {
	return func(h *History) { h.debug = debug }
}

// WithHistoryLogger sets the logger.
func WithHistoryLogger(logger Logger) HistoryOption {
	return func(h *History) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHistory returns an empty history.
func NewHistory(opts ...HistoryOption) *History {
	h := &History{
		tree:    NewTree(),
		branch:  make(map[ActionID]struct{}),
		updates: observable.NewSubject[*Action](),
		logger:  noopLogger{},
		hooks:   make(map[int]func(*Action)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Tree exposes the underlying arena.
func (h *History) Tree() *Tree { return h.tree }

// Debug reports whether archiving is disabled.
func (h *History) Debug() bool { return h.debug }

// Updates emits the action that changed whenever the active branch changes.
func (h *History) Updates() observable.Source[*Action] { return h.updates }

// OnArchive registers fn to receive every archived action just before it is
// removed. fn runs with the history locked and must not call back into it.
// The returned function unregisters fn.
func (h *History) OnArchive(fn func(*Action)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hookSeq++
	id := h.hookSeq
	h.hooks[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.hooks, id)
	}
}

// Append creates an action for command, makes it the new head and runs the
// command. The action is returned even when invoking the command failed; the
// error is also recorded as the action's rejection.
func (h *History) Append(origin Origin, command *Command, params ...any) (*Action, error) {
	if command == nil {
		return nil, ErrNilCommand
	}
	action := newAction(command, params, origin, h.tree)

	h.mu.Lock()
	if h.head != nil {
		if err := h.tree.Point(h.head, action); err != nil {
			h.mu.Unlock()
			return nil, err
		}
	} else {
		h.root = action
	}
	h.head = action
	h.branch[action.id] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("history append", "action", action.id, "command", command.Key())
	h.updates.Next(action)

	if !h.debug {
		cleanup := func() { h.Archive() }
		action.Subscribe(observable.Handlers[domain.Revision]{
			Error:    func(error) { cleanup() },
			Complete: cleanup,
		})
	}

	if err := run(action, origin); err != nil {
		h.logger.Warn("command failed", "action", action.id, "command", command.Key(), "error", err)
		return action, err
	}
	return action, nil
}

// Checkout moves the head to action and rebuilds the active branch as the
// path from the root to it.
func (h *History) Checkout(action *Action) error {
	h.mu.Lock()
	if !h.tree.Contains(action) {
		h.mu.Unlock()
		h.logger.Error("checkout of unknown action", "action", actionIDOf(action))
		return ErrUnknownAction
	}
	path, err := h.tree.Select(action)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.head = action
	h.branch = make(map[ActionID]struct{}, len(path))
	for _, a := range path {
		h.branch[a.id] = struct{}{}
	}
	h.mu.Unlock()

	h.logger.Debug("history checkout", "action", action.id)
	h.updates.Next(action)
	return nil
}

// Archive drops the settled prefix of the active branch. The sweep stops at
// the first action that is still open, or whose successor is, and always
// keeps at least one action.
func (h *History) Archive() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for len(h.branch) > 1 && h.root != nil && h.root.Closed() {
		next := h.tree.After(h.root)
		if next == nil || !next.Closed() {
			break
		}
		last := h.root
		for _, fn := range h.hooks {
			fn(last)
		}
		delete(h.branch, last.id)
		base, err := h.tree.Remove(last)
		if err != nil {
			h.logger.Error("archive failed", "action", last.id, "error", err)
			return
		}
		h.root = base
		h.archived++
		h.logger.Debug("history archive", "action", last.id)
	}
}

// Archived returns how many actions were archived so far.
func (h *History) Archived() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.archived
}

// Remove deletes action from the tree, reconnecting its children to its
// parent. When it was on the active branch, listeners are notified with the
// action that took its place.
func (h *History) Remove(action *Action) error {
	h.mu.Lock()
	if !h.tree.Contains(action) {
		h.mu.Unlock()
		return ErrUnknownAction
	}
	_, inBranch := h.branch[action.id]
	if h.head == action {
		h.head = h.tree.Before(action)
	}
	base, err := h.tree.Remove(action)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	if h.root == action {
		h.root = base
	}
	delete(h.branch, action.id)
	if h.head == nil && h.root != nil {
		h.head = h.root
		if path, err := h.tree.Select(h.root); err == nil {
			for _, a := range path {
				h.branch[a.id] = struct{}{}
			}
		}
	}
	h.mu.Unlock()

	h.logger.Debug("history remove", "action", action.id)
	if inBranch && base != nil {
		h.updates.Next(base)
	}
	return nil
}

// Toggle flips whether action takes part in state folding.
func (h *History) Toggle(action *Action) error {
	h.mu.Lock()
	if !h.tree.Contains(action) {
		h.mu.Unlock()
		return ErrUnknownAction
	}
	_, inBranch := h.branch[action.id]
	action.Toggle()
	h.mu.Unlock()

	if inBranch {
		h.updates.Next(action)
	}
	return nil
}

// IsActive reports whether action is enabled and on the active branch.
func (h *History) IsActive(action *Action) bool {
	if action == nil || action.Disabled() {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.branch[action.id]
	return ok
}

// Before returns the parent of action.
func (h *History) Before(action *Action) *Action {
	return h.tree.Before(action)
}

// After returns the next action on the branch, or nil at the head.
func (h *History) After(action *Action) *Action {
	h.mu.Lock()
	head := h.head
	h.mu.Unlock()
	if action == head {
		return nil
	}
	return h.tree.After(action)
}

// Size is the number of actions on the active branch.
func (h *History) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.branch)
}

func (h *History) Root() *Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.root
}

func (h *History) Head() *Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.head
}

// Actions returns the active branch members in no particular order.
func (h *History) Actions() []*Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Action, 0, len(h.branch))
	for id := range h.branch {
		if a, ok := h.tree.Get(id); ok {
			out = append(out, a)
		}
	}
	return out
}

// Ordered returns the active branch from root to head.
func (h *History) Ordered() []*Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.orderedLocked()
}

func (h *History) orderedLocked() []*Action {
	if h.root == nil || h.head == nil {
		return nil
	}
	h.tree.mu.RLock()
	defer h.tree.mu.RUnlock()
	return h.tree.walkLocked(h.root, h.head.id)
}

// All iterates the active branch from root to head.
func (h *History) All() iter.Seq[*Action] {
	return func(yield func(*Action) bool) {
		for _, a := range h.Ordered() {
			if !yield(a) {
				return
			}
		}
	}
}

// View runs fn with the ordered active branch while the history is locked,
// so archiving cannot interleave. fn must not call back into the history.
func (h *History) View(fn func(ordered []*Action)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.orderedLocked())
}

// Wait blocks until every action on the active branch settled. The first
// rejection is returned.
func (h *History) Wait(ctx context.Context) error {
	for _, a := range h.Ordered() {
		if _, err := a.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ToJSON renders the history for introspection.
func (h *History) ToJSON() domain.HistoryJSON {
	h.mu.Lock()
	root, head := h.root, h.head
	ordered := h.orderedLocked()
	size := len(h.branch)
	h.mu.Unlock()

	out := domain.HistoryJSON{List: make([]string, 0, len(ordered)), Size: size}
	for _, a := range ordered {
		out.List = append(out.List, string(a.id))
	}
	if root != nil {
		out.Root = string(root.id)
		out.Tree = h.tree.ToJSON(root)
	}
	if head != nil {
		out.Head = string(head.id)
	}
	return out
}

func (h *History) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.ToJSON())
}

func actionIDOf(a *Action) string {
	if a == nil {
		return "<nil>"
	}
	return string(a.id)
}
