package core

import (
	"fmt"
	"maps"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync"

	"microcosm/pkg/domain"
)

// CommandFunc is the body of a command. It receives the repo the action was
// pushed to and the push parameters, and describes the work to run.
type CommandFunc func(repo Origin, params []any) (Result, error)

// Command is a tagged CommandFunc: a stable key plus the mapping from action
// statuses to the externally visible types domains register against.
type Command struct {
	key   string
	fn    CommandFunc
	types map[domain.Status]string
}

// TagOption customises a command while it is being tagged.
type TagOption func(*Command)

// WithType maps status to typ, overriding the default for that status.
func WithType(status domain.Status, typ string) TagOption {
	return func(c *Command) {
		c.types[status] = typ
	}
}

// WithoutType removes the mapping for status so the action is invisible to
// domains while it holds that status.
func WithoutType(status domain.Status) TagOption {
	return func(c *Command) {
		delete(c.types, status)
	}
}

func defaultTypes(key string) map[domain.Status]string {
	return map[domain.Status]string{
		domain.StatusOpen:      key + ".open",
		domain.StatusUpdate:    key + ".update",
		domain.StatusLoading:   key + ".update",
		domain.StatusResolve:   key,
		domain.StatusDone:      key,
		domain.StatusReject:    key + ".reject",
		domain.StatusError:     key + ".reject",
		domain.StatusCancel:    key + ".cancel",
		domain.StatusCancelled: key + ".cancel",
	}
}

// Key returns the unique registry key.
func (c *Command) Key() string {
	if c == nil {
		return ""
	}
	return c.key
}

func (c *Command) String() string { return c.Key() }

// Type returns the external type for status, or "" when unmapped.
func (c *Command) Type(status domain.Status) string {
	if c == nil {
		return ""
	}
	return c.types[status]
}

// Types returns a copy of the status to type mapping.
func (c *Command) Types() map[domain.Status]string {
	return maps.Clone(c.types)
}

func (c *Command) invoke(repo Origin, params []any) (Result, error) {
	if c.fn == nil {
		return nil, nil
	}
	return c.fn(repo, params)
}

// Registry holds tagged commands by key.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// DefaultRegistry backs the package level Tag helpers.
var DefaultRegistry = NewRegistry()

// Tag registers fn under name. When name is empty the function's runtime
// name is used.
func (r *Registry) Tag(name string, fn CommandFunc, opts ...TagOption) (*Command, error) {
	key := strings.TrimSpace(name)
	if key == "" {
		if fn == nil {
			return nil, fmt.Errorf("tag: %w", ErrNilCommand)
		}
		key = callbackName(fn)
	}
	cmd := &Command{key: key, fn: fn, types: defaultTypes(key)}
	for _, opt := range opts {
		opt(cmd)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[key]; exists {
		return nil, fmt.Errorf("tag %s: %w", key, ErrDuplicateCommand)
	}
	r.commands[key] = cmd
	return cmd, nil
}

// MustTag is Tag that panics on error. Intended for package level vars.
func (r *Registry) MustTag(name string, fn CommandFunc, opts ...TagOption) *Command {
	cmd, err := r.Tag(name, fn, opts...)
	if err != nil {
		panic(err)
	}
	return cmd
}

// Lookup finds a command by key.
func (r *Registry) Lookup(key string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[key]
	return cmd, ok
}

// Commands returns every registered command sorted by key.
func (r *Registry) Commands() []*Command {
	r.mu.RLock()
	out := slices.Collect(maps.Values(r.commands))
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Command) int { return strings.Compare(a.key, b.key) })
	return out
}

// Tag registers fn on DefaultRegistry.
func Tag(name string, fn CommandFunc, opts ...TagOption) (*Command, error) {
	return DefaultRegistry.Tag(name, fn, opts...)
}

// MustTag registers fn on DefaultRegistry and panics on error.
func MustTag(name string, fn CommandFunc, opts ...TagOption) *Command {
	return DefaultRegistry.MustTag(name, fn, opts...)
}

func callbackName(f any) string {
	return runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()
}
