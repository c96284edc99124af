package core

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"microcosm/pkg/domain"
	"microcosm/pkg/observable"
)

// Origin is the repo an action was pushed to. Commands receive it so they
// can read state or push follow-up work.
type Origin interface {
	Push(command any, params ...any) (*Action, error)
	State() domain.State
}

// Archiver receives actions as they are archived out of history. Archive is
// called while history is locked and must not block.
type Archiver interface {
	Archive(ctx context.Context, action *Action) error
}

// Option configures a Repo.
type Option func(*Repo)

// WithHistory shares an existing history.
func WithHistory(h *History) Option {
	return func(r *Repo) {
		if h != nil {
			r.history = h
		}
	}
}

// WithRegistry resolves string commands against reg instead of DefaultRegistry.
func WithRegistry(reg *Registry) Option {
	return func(r *Repo) {
		if reg != nil {
			r.registry = reg
		}
	}
}

// WithLogger sets the logger for the repo and the history it creates.
func WithLogger(logger Logger) Option {
	return func(r *Repo) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records every settled action.
func WithMetrics(m MetricsRecorder) Option {
	return func(r *Repo) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTracer opens a span per pushed action.
func WithTracer(t Tracer) Option {
	return func(r *Repo) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithArchiver ships archived actions to a.
func WithArchiver(a Archiver) Option {
	return func(r *Repo) { r.archiver = a }
}

// WithDebug disables archiving in the history the repo creates.
func WithDebug(debug bool) Option {
	return func(r *Repo) { r.debug = debug }
}

// Repo dispatches commands into a history and folds the active branch into
// state through its domains.
type Repo struct {
	history  *History
	registry *Registry
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	archiver Archiver
	debug    bool

	mu       sync.RWMutex
	domains  map[string]domain.Domain
	handlers map[string]map[string]domain.Reducer
	order    []string
	state    domain.State
	tracked  map[ActionID]struct{}
	parent   *Repo
	children []*Repo

	baseMu sync.Mutex
	base   domain.State

	// reconcileMu orders fold and store; gen, emitted and emitting are
	// guarded by mu and order emission.
	reconcileMu sync.Mutex
	gen         uint64
	emitted     uint64
	emitting    bool

	changes    *observable.Subject[domain.State]
	updatesSub *observable.Subscription
	parentSub  *observable.Subscription
	unhook     func()
	closed     atomic.Bool
}

// New builds a repo with its own history unless WithHistory is given.
func New(opts ...Option) *Repo {
	r := &Repo{
		registry: DefaultRegistry,
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.history == nil {
		r.history = NewHistory(WithHistoryLogger(r.logger), WithHistoryDebug(r.debug))
	}
	r.init()
	return r
}

func (r *Repo) init() {
	r.domains = make(map[string]domain.Domain)
	r.handlers = make(map[string]map[string]domain.Reducer)
	r.state = domain.State{}
	r.base = domain.State{}
	r.tracked = make(map[ActionID]struct{})
	r.changes = observable.NewSubject[domain.State]()
	r.updatesSub = r.history.Updates().Observable().Subscribe(observable.Handlers[*Action]{
		Next: r.track,
	})
	r.unhook = r.history.OnArchive(r.absorb)
}

// History returns the shared history.
func (r *Repo) History() *History { return r.history }

// Registry returns the registry string commands resolve against.
func (r *Repo) Registry() *Registry { return r.registry }

// Parent returns the repo this one was forked from.
func (r *Repo) Parent() *Repo { return r.parent }

// Changes emits the folded state whenever it changes.
func (r *Repo) Changes() observable.Source[domain.State] { return r.changes }

// AddDomain mounts d under key. Its initial state becomes the base of key.
func (r *Repo) AddDomain(key string, d domain.Domain) error {
	if r.closed.Load() {
		return ErrRepoShutdown
	}
	if key == "" || d == nil {
		return fmt.Errorf("add domain: key and domain are required")
	}
	r.mu.Lock()
	if _, exists := r.domains[key]; exists {
		r.mu.Unlock()
		return fmt.Errorf("add domain %s: %w", key, ErrDuplicateDomain)
	}
	r.domains[key] = d
	r.handlers[key] = d.Register()
	r.order = append(r.order, key)
	r.baseMu.Lock()
	r.base[key] = d.InitialState()
	r.baseMu.Unlock()
	r.mu.Unlock()

	r.logger.Debug("domain added", "key", key)
	r.reconcile()
	return nil
}

// Domains lists mounted domain keys in mount order.
func (r *Repo) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Push appends command to history and runs it. command is a *Command or a
// registered key. The returned error reports a failure while invoking the
// command; the action is rejected with it as well.
func (r *Repo) Push(command any, params ...any) (*Action, error) {
	if r.closed.Load() {
		return nil, ErrRepoShutdown
	}
	cmd, err := r.resolve(command)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(context.Background(), cmd.Key())
	started := time.Now()
	action, err := r.history.Append(r, cmd, params...)
	if action == nil {
		span.End(err)
		return nil, err
	}
	action.Subscribe(observable.Handlers[domain.Revision]{
		Error: func(rejection error) {
			r.metrics.Observe(ctx, cmd.Key(), false, time.Since(started))
			span.End(rejection)
		},
		Complete: func() {
			r.metrics.Observe(ctx, cmd.Key(), true, time.Since(started))
			span.End(nil)
		},
	})
	return action, err
}

// Prepare binds command and leading params for a later Push.
func (r *Repo) Prepare(command any, params ...any) func(more ...any) (*Action, error) {
	return func(more ...any) (*Action, error) {
		return r.Push(command, append(slices.Clone(params), more...)...)
	}
}

func (r *Repo) resolve(command any) (*Command, error) {
	switch c := command.(type) {
	case *Command:
		if c == nil {
			return nil, ErrNilCommand
		}
		return c, nil
	case string:
		cmd, ok := r.registry.Lookup(c)
		if !ok {
			return nil, UnknownCommandError{Key: c}
		}
		return cmd, nil
	case nil:
		return nil, ErrNilCommand
	default:
		return nil, fmt.Errorf("unsupported command %T", command)
	}
}

// Checkout moves the shared history head to action.
func (r *Repo) Checkout(action *Action) error { return r.history.Checkout(action) }

// Remove drops action from the shared history.
func (r *Repo) Remove(action *Action) error { return r.history.Remove(action) }

// Toggle enables or disables action.
func (r *Repo) Toggle(action *Action) error { return r.history.Toggle(action) }

// State folds the active branch over the base state. Keys owned by a parent
// repo are visible unless this repo mounts a domain under the same key.
func (r *Repo) State() domain.State {
	var own domain.State
	r.history.View(func(ordered []*Action) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		r.baseMu.Lock()
		own = r.base.Clone()
		r.baseMu.Unlock()
		for _, a := range ordered {
			r.foldLocked(own, a)
		}
	})
	if r.parent == nil {
		return own
	}
	merged := r.parent.State()
	for k, v := range own {
		merged[k] = v
	}
	return merged
}

func (r *Repo) foldLocked(state domain.State, a *Action) {
	if a.Disabled() {
		return
	}
	typ := a.Type()
	if typ == "" {
		return
	}
	payload := a.Payload()
	for _, key := range r.order {
		reducer, ok := r.handlers[key][typ]
		if !ok || reducer == nil {
			continue
		}
		state[key] = r.reduce(key, typ, reducer, state[key], payload)
	}
}

func (r *Repo) reduce(key, typ string, reducer domain.Reducer, prev, payload any) (next any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("reducer panicked", "domain", key, "type", typ, "panic", rec)
			next = prev
		}
	}()
	return reducer(prev, payload)
}

func (r *Repo) track(a *Action) {
	r.mu.Lock()
	_, seen := r.tracked[a.id]
	if !seen && !a.Closed() {
		r.tracked[a.id] = struct{}{}
	}
	r.mu.Unlock()

	if !seen && !a.Closed() {
		settle := func() {
			r.mu.Lock()
			delete(r.tracked, a.id)
			r.mu.Unlock()
			r.reconcile()
		}
		a.Subscribe(observable.Handlers[domain.Revision]{
			Next:     func(domain.Revision) { r.reconcile() },
			Error:    func(error) { settle() },
			Complete: settle,
		})
	}
	r.reconcile()
}

// absorb folds an archived action into the base state. It runs under the
// history lock.
func (r *Repo) absorb(a *Action) {
	r.mu.RLock()
	r.baseMu.Lock()
	r.foldLocked(r.base, a)
	r.baseMu.Unlock()
	archiver := r.archiver
	r.mu.RUnlock()

	if archiver == nil {
		return
	}
	if err := archiver.Archive(context.Background(), a); err != nil {
		r.logger.Warn("archive handoff failed", "action", a.id, "error", err)
	}
}

func (r *Repo) reconcile() {
	if r.closed.Load() {
		return
	}
	r.reconcileMu.Lock()
	next := r.State()
	r.mu.Lock()
	if !sameState(r.state, next) {
		r.state = next
		r.gen++
	}
	r.mu.Unlock()
	r.reconcileMu.Unlock()

	if rec, ok := r.metrics.(HistorySizeRecorder); ok {
		rec.ObserveHistorySize(r.history.Size())
	}
	r.flush()
}

// flush emits stored states in the order they were stored. Only one
// goroutine emits at a time; a state stored while it runs, including one
// stored re-entrantly by a Changes subscriber, is emitted by that loop.
func (r *Repo) flush() {
	r.mu.Lock()
	if r.emitting {
		r.mu.Unlock()
		return
	}
	r.emitting = true
	for r.emitted != r.gen {
		state, gen := r.state, r.gen
		r.mu.Unlock()
		r.changes.Next(state)
		r.mu.Lock()
		r.emitted = gen
	}
	r.emitting = false
	r.mu.Unlock()
}

// Fork returns a child repo sharing this repo's history and registry. The
// child sees the parent's state and may mount its own domains.
func (r *Repo) Fork() *Repo {
	child := &Repo{
		history:  r.history,
		registry: r.registry,
		logger:   r.logger,
		metrics:  r.metrics,
		tracer:   r.tracer,
		debug:    r.debug,
		parent:   r,
	}
	child.init()
	child.parentSub = r.changes.Subscribe(observable.Handlers[domain.State]{
		Next: func(domain.State) { child.reconcile() },
	})
	r.mu.Lock()
	r.children = append(r.children, child)
	r.mu.Unlock()
	child.reconcile()
	return child
}

// Shutdown detaches the repo and every fork below it. Changes completes.
func (r *Repo) Shutdown() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.mu.Lock()
	children := r.children
	r.children = nil
	parent := r.parent
	r.mu.Unlock()

	for _, c := range children {
		c.Shutdown()
	}
	r.updatesSub.Unsubscribe()
	r.unhook()
	if r.parentSub != nil {
		r.parentSub.Unsubscribe()
	}
	if parent != nil {
		parent.removeChild(r)
	}
	r.changes.Complete()
	r.logger.Debug("repo shut down")
}

func (r *Repo) removeChild(child *Repo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.children = slices.DeleteFunc(r.children, func(c *Repo) bool { return c == child })
}

// Snapshot captures the current state, serialised per domain, and the
// history layout.
func (r *Repo) Snapshot() domain.Snapshot {
	state := r.State()
	r.mu.RLock()
	out := make(map[string]any, len(state))
	for key, v := range state {
		if s, ok := r.domains[key].(domain.Serializer); ok {
			v = s.Serialize(v)
		}
		out[key] = v
	}
	r.mu.RUnlock()
	return domain.Snapshot{
		State:   out,
		History: r.history.ToJSON(),
		SavedAt: time.Now().UTC(),
	}
}

// Save writes a snapshot to store.
func (r *Repo) Save(ctx context.Context, store domain.SnapshotStore) error {
	if err := store.Save(ctx, r.Snapshot()); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Restore replaces the base state of every mounted domain with the value
// found in the stored snapshot. Actions still on the branch fold on top.
// A store without a snapshot leaves the repo untouched.
func (r *Repo) Restore(ctx context.Context, store domain.SnapshotStore) error {
	snap, ok, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	r.mu.RLock()
	r.baseMu.Lock()
	for key, d := range r.domains {
		raw, ok := snap.State[key]
		if !ok {
			continue
		}
		if s, ok := d.(domain.Serializer); ok {
			raw = s.Deserialize(raw)
		}
		r.base[key] = raw
	}
	r.baseMu.Unlock()
	r.mu.RUnlock()

	r.logger.Info("snapshot restored", "saved_at", snap.SavedAt)
	r.reconcile()
	return nil
}

func sameState(a, b domain.State) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !sameValue(va, vb) {
			return false
		}
	}
	return true
}
