package core

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"

	"microcosm/pkg/domain"
)

func namedCommand(Origin, []any) (Result, error) { return nil, nil }

func TestTagDefaultTypes(t *testing.T) {
	reg := NewRegistry()
	cmd, err := reg.Tag("todos.add", echo)
	assert.Equal(t, nil, err)
	assert.Equal(t, "todos.add", cmd.Key())
	assert.Equal(t, "todos.add", cmd.String())
	assert.Equal(t, map[domain.Status]string{
		domain.StatusOpen:      "todos.add.open",
		domain.StatusUpdate:    "todos.add.update",
		domain.StatusLoading:   "todos.add.update",
		domain.StatusResolve:   "todos.add",
		domain.StatusDone:      "todos.add",
		domain.StatusReject:    "todos.add.reject",
		domain.StatusError:     "todos.add.reject",
		domain.StatusCancel:    "todos.add.cancel",
		domain.StatusCancelled: "todos.add.cancel",
	}, cmd.Types())
	assert.Equal(t, "", cmd.Type(domain.StatusInactive))

	types := cmd.Types()
	types[domain.StatusResolve] = "mutated"
	assert.Equal(t, "todos.add", cmd.Type(domain.StatusResolve))
}

func TestTagDerivesNameFromFunction(t *testing.T) {
	reg := NewRegistry()
	cmd, err := reg.Tag("", namedCommand)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, strings.HasSuffix(cmd.Key(), "core.namedCommand"))

	_, err = reg.Tag("  ", nil)
	assert.Equal(t, true, errors.Is(err, ErrNilCommand))
}

func TestTagRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	reg.MustTag("dup", echo)
	_, err := reg.Tag("dup", hold)
	assert.Equal(t, true, errors.Is(err, ErrDuplicateCommand))
	assert.PanicMatches(t, func() { reg.MustTag("dup", echo) }, "tag dup: command already registered")
}

func TestRegistryLookupAndList(t *testing.T) {
	reg := NewRegistry()
	b := reg.MustTag("b", echo)
	a := reg.MustTag("a", echo)

	got, ok := reg.Lookup("a")
	assert.Equal(t, true, ok)
	assert.Equal(t, true, a == got)
	_, ok = reg.Lookup("missing")
	assert.Equal(t, false, ok)
	assert.Equal(t, true, slices.Equal([]*Command{a, b}, reg.Commands()))
}

func TestNilCommandIsSafe(t *testing.T) {
	var cmd *Command
	assert.Equal(t, "", cmd.Key())
	assert.Equal(t, "", cmd.Type(domain.StatusResolve))
}

func TestDefaultRegistryHelpers(t *testing.T) {
	cmd := MustTag("core_test.default", echo)
	got, ok := DefaultRegistry.Lookup("core_test.default")
	assert.Equal(t, true, ok)
	assert.Equal(t, true, cmd == got)
	_, err := Tag("core_test.default", echo)
	assert.Equal(t, true, errors.Is(err, ErrDuplicateCommand))
}
