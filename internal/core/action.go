package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"microcosm/pkg/domain"
	"microcosm/pkg/observable"
)

// ActionID uniquely identifies an action. Ids are ULIDs, so they sort by
// creation time.
type ActionID string

func newActionID() ActionID {
	return ActionID(ulid.Make().String())
}

// Action is one invocation of a command. It walks the status lifecycle
// open -> update* -> resolve | reject | cancel and publishes every transition
// as a domain.Revision. Subscribers only see revisions emitted after they
// subscribed; subscribing to a settled action delivers the terminal event.
type Action struct {
	id        ActionID
	command   *Command
	params    []any
	origin    Origin
	timestamp time.Time
	tree      *Tree
	revisions *observable.Subject[domain.Revision]

	mu       sync.RWMutex
	status   domain.Status
	payload  any
	settled  bool
	disabled bool
	updated  time.Time
}

// ActionOption configures a standalone action.
type ActionOption func(*actionConfig)

type actionConfig struct {
	status domain.Status
	tree   *Tree
}

// WithInitialStatus applies status right after construction.
func WithInitialStatus(status domain.Status) ActionOption {
	return func(c *actionConfig) { c.status = status }
}

// WithTree places the action in an existing arena instead of a private one.
func WithTree(tree *Tree) ActionOption {
	return func(c *actionConfig) { c.tree = tree }
}

// NewAction builds an action outside of any history. Unless WithTree is
// given it lives in its own arena.
func NewAction(command *Command, params []any, origin Origin, opts ...ActionOption) *Action {
	cfg := actionConfig{status: domain.StatusInactive}
	for _, opt := range opts {
		opt(&cfg)
	}
	tree := cfg.tree
	if tree == nil {
		tree = NewTree()
	}
	a := newAction(command, params, origin, tree)
	if cfg.status != domain.StatusInactive {
		a.SetState(cfg.status)
	}
	return a
}

func newAction(command *Command, params []any, origin Origin, tree *Tree) *Action {
	now := time.Now().UTC()
	a := &Action{
		id:        newActionID(),
		command:   command,
		params:    params,
		origin:    origin,
		timestamp: now,
		tree:      tree,
		revisions: observable.NewSubject[domain.Revision](),
		status:    domain.StatusInactive,
		updated:   now,
	}
	tree.insert(a)
	return a
}

func (a *Action) ID() ActionID { return a.id }

func (a *Action) Command() *Command { return a.command }

func (a *Action) Params() []any { return a.params }

func (a *Action) Origin() Origin { return a.origin }

func (a *Action) Timestamp() time.Time { return a.timestamp }

func (a *Action) String() string { return a.command.Key() + "#" + string(a.id) }

// Status returns the current status.
func (a *Action) Status() domain.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Payload returns the current payload.
func (a *Action) Payload() any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.payload
}

// Revision returns the current status and payload.
func (a *Action) Revision() domain.Revision {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return domain.Revision{Status: a.status, Payload: a.payload, Timestamp: a.updated}
}

// SetState moves the action to status. When payload is given it replaces
// the current payload, otherwise the payload is kept. It returns false when
// the action already settled.
func (a *Action) SetState(status domain.Status, payload ...any) bool {
	a.mu.Lock()
	if a.settled {
		a.mu.Unlock()
		return false
	}
	a.status = status
	if len(payload) > 0 {
		a.payload = payload[0]
	}
	a.settled = status.Settled()
	a.updated = time.Now().UTC()
	rev := domain.Revision{Status: a.status, Payload: a.payload, Timestamp: a.updated}
	a.mu.Unlock()

	a.revisions.Next(rev)
	if !status.Settled() {
		return true
	}
	if status.Failed() {
		a.revisions.Error(&RejectionError{
			ActionID: a.id,
			Command:  a.command.Key(),
			Status:   status,
			Payload:  rev.Payload,
		})
	} else {
		a.revisions.Complete()
	}
	return true
}

func (a *Action) Open(payload ...any) bool { return a.SetState(domain.StatusOpen, payload...) }

func (a *Action) Update(payload ...any) bool { return a.SetState(domain.StatusUpdate, payload...) }

func (a *Action) Resolve(payload ...any) bool { return a.SetState(domain.StatusResolve, payload...) }

func (a *Action) Reject(payload ...any) bool { return a.SetState(domain.StatusReject, payload...) }

func (a *Action) Cancel(payload ...any) bool { return a.SetState(domain.StatusCancel, payload...) }

// Closed reports whether the action settled.
func (a *Action) Closed() bool { return a.revisions.Closed() }

// Err returns the RejectionError of a failed action.
func (a *Action) Err() error { return a.revisions.Err() }

// Observable implements observable.Source.
func (a *Action) Observable() *observable.Observable[domain.Revision] {
	return a.revisions.Observable()
}

// Subscribe listens for future revisions.
func (a *Action) Subscribe(h observable.Handlers[domain.Revision]) *observable.Subscription {
	return a.revisions.Subscribe(h)
}

// Type is the external type for the current status.
func (a *Action) Type() string {
	return a.command.Type(a.Status())
}

// Is reports whether status maps to the same external type as the current
// status, so aliases such as error and reject compare equal. Hidden
// statuses share the empty type and match each other.
func (a *Action) Is(status domain.Status) bool {
	return a.command.Type(status) == a.Type()
}

// Link resolves a once every action in deps resolved and rejects it with the
// first rejection. With no deps it resolves immediately.
func (a *Action) Link(deps ...*Action) *Action {
	var (
		mu          sync.Mutex
		outstanding = len(deps)
	)
	done := func() {
		mu.Lock()
		if outstanding > 0 {
			outstanding--
		}
		ready := outstanding == 0
		mu.Unlock()
		if ready {
			a.Resolve()
		}
	}
	for _, dep := range deps {
		dep.Subscribe(observable.Handlers[domain.Revision]{
			Error:    func(err error) { a.Reject(err) },
			Complete: done,
		})
	}
	if len(deps) == 0 {
		a.Resolve()
	}
	return a
}

// Then settles with the final payload once the action resolves, or with its
// RejectionError once it fails.
func (a *Action) Then() *observable.Deferred[any] {
	d := observable.NewDeferred[any]()
	a.Subscribe(observable.Handlers[domain.Revision]{
		Error:    func(err error) { d.Reject(err) },
		Complete: func() { d.Resolve(a.Payload()) },
	})
	return d
}

// Wait blocks until the action settles or ctx is done.
func (a *Action) Wait(ctx context.Context) (any, error) {
	return a.Then().Await(ctx)
}

// Toggle flips the disabled flag and returns the new value. Disabled actions
// stay in history but are skipped when state is folded.
func (a *Action) Toggle() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disabled = !a.disabled
	return a.disabled
}

func (a *Action) Disabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.disabled
}

// Tree returns the arena the action lives in.
func (a *Action) Tree() *Tree { return a.tree }

func (a *Action) ParentAction() *Action { return a.tree.Before(a) }

func (a *Action) NextAction() *Action { return a.tree.After(a) }

func (a *Action) Children() []*Action { return a.tree.Children(a) }

// IsDisconnected reports whether the action has no parent.
func (a *Action) IsDisconnected() bool { return a.ParentAction() == nil }

func (a *Action) Adopt(child *Action) error { return a.tree.Adopt(a, child) }

func (a *Action) Abandon(child *Action) error { return a.tree.Abandon(a, child) }

func (a *Action) Lead(child *Action) error { return a.tree.Lead(a, child) }

// Prune detaches the parent from everything above it.
func (a *Action) Prune() error { return a.tree.Prune(a) }

// Remove excises the action from its tree, reconnecting its children to its
// parent.
func (a *Action) Remove() error {
	if a.IsDisconnected() {
		return ErrDisconnected
	}
	_, err := a.tree.Remove(a)
	return err
}

// ToJSON returns the serialisable view of the action.
func (a *Action) ToJSON() domain.ActionJSON {
	rev := a.Revision()
	children, next := a.tree.linkage(a)
	return domain.ActionJSON{
		ID:        string(a.id),
		Command:   a.command.Key(),
		Status:    rev.Status,
		Type:      a.command.Type(rev.Status),
		Payload:   rev.Payload,
		Disabled:  a.Disabled(),
		Children:  children,
		Next:      next,
		Timestamp: a.timestamp.UnixMilli(),
	}
}

func (a *Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.ToJSON())
}
