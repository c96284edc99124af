package core

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestHistoryArchivesSettledPrefix(t *testing.T) {
	_, echoCmd, _ := testCommands(t)
	h := NewHistory()
	var archived []*Action
	unregister := h.OnArchive(func(a *Action) { archived = append(archived, a) })

	a, _ := h.Append(nil, echoCmd, 1)
	b, _ := h.Append(nil, echoCmd, 2)
	c, _ := h.Append(nil, echoCmd, 3)

	assert.Equal(t, 1, h.Size())
	assert.Equal(t, uint64(2), h.Archived())
	assert.Equal(t, true, slices.Equal([]*Action{a, b}, archived))
	assert.Equal(t, true, c == h.Root())
	assert.Equal(t, true, c == h.Head())
	assert.Equal(t, false, h.Tree().Contains(a))

	unregister()
	h.Append(nil, echoCmd, 4)
	assert.Equal(t, 2, len(archived))
	assert.Equal(t, uint64(3), h.Archived())
}

func TestHistoryOpenActionBlocksArchive(t *testing.T) {
	_, echoCmd, holdCmd := testCommands(t)
	h := NewHistory()

	pending, _ := h.Append(nil, holdCmd)
	h.Append(nil, echoCmd, 1)
	last, _ := h.Append(nil, echoCmd, 2)
	assert.Equal(t, 3, h.Size())
	assert.Equal(t, uint64(0), h.Archived())

	pending.Resolve("late")
	assert.Equal(t, 1, h.Size())
	assert.Equal(t, uint64(2), h.Archived())
	assert.Equal(t, true, last == h.Root())
}

func TestHistoryDebugKeepsEverything(t *testing.T) {
	_, echoCmd, _ := testCommands(t)
	h := NewHistory(WithHistoryDebug(true))
	for i := 0; i < 5; i++ {
		h.Append(nil, echoCmd, i)
	}
	assert.Equal(t, true, h.Debug())
	assert.Equal(t, 5, h.Size())
	assert.Equal(t, uint64(0), h.Archived())
}

func TestHistoryCheckoutStartsBranch(t *testing.T) {
	_, echoCmd, _ := testCommands(t)
	h := NewHistory(WithHistoryDebug(true))
	a, _ := h.Append(nil, echoCmd, "a")
	b, _ := h.Append(nil, echoCmd, "b")

	var seen []*Action
	h.Updates().Observable().SubscribeFunc(func(x *Action) { seen = append(seen, x) })

	assert.Equal(t, nil, h.Checkout(a))
	assert.Equal(t, true, a == h.Head())
	assert.Equal(t, 1, h.Size())
	assert.Equal(t, true, h.After(a) == nil)

	c, _ := h.Append(nil, echoCmd, "c")
	assert.Equal(t, []ActionID{b.ID(), c.ID()}, ids(a.Children()))
	assert.Equal(t, true, c == h.Head())
	assert.Equal(t, true, slices.Equal([]*Action{a, c}, h.Ordered()))
	assert.Equal(t, false, h.IsActive(b))
	assert.Equal(t, true, h.IsActive(c))
	assert.Equal(t, true, slices.Equal([]*Action{a, c}, seen))

	assert.Equal(t, nil, h.Checkout(b))
	assert.Equal(t, true, slices.Equal([]*Action{a, b}, h.Ordered()))
	assert.Equal(t, true, b == a.NextAction())
}

func TestHistoryCheckoutUnknown(t *testing.T) {
	_, echoCmd, _ := testCommands(t)
	h := NewHistory()
	stray := NewAction(echoCmd, nil, nil)
	assert.Equal(t, ErrUnknownAction, h.Checkout(stray))
	assert.Equal(t, ErrUnknownAction, h.Checkout(nil))
}

func TestHistoryRemove(t *testing.T) {
	_, echoCmd, _ := testCommands(t)
	h := NewHistory(WithHistoryDebug(true))
	a, _ := h.Append(nil, echoCmd, "a")
	b, _ := h.Append(nil, echoCmd, "b")
	c, _ := h.Append(nil, echoCmd, "c")

	var seen []*Action
	h.Updates().Observable().SubscribeFunc(func(x *Action) { seen = append(seen, x) })

	assert.Equal(t, nil, h.Remove(b))
	assert.Equal(t, true, slices.Equal([]*Action{a, c}, h.Ordered()))
	assert.Equal(t, 2, h.Size())
	assert.Equal(t, true, slices.Equal([]*Action{c}, seen))

	assert.Equal(t, nil, h.Remove(c))
	assert.Equal(t, true, a == h.Head())
	assert.Equal(t, true, slices.Equal([]*Action{a}, h.Ordered()))

	assert.Equal(t, ErrUnknownAction, h.Remove(b))
}

func TestHistoryRemoveRoot(t *testing.T) {
	_, echoCmd, _ := testCommands(t)
	h := NewHistory(WithHistoryDebug(true))
	a, _ := h.Append(nil, echoCmd, "a")
	b, _ := h.Append(nil, echoCmd, "b")

	assert.Equal(t, nil, h.Remove(a))
	assert.Equal(t, true, b == h.Root())
	assert.Equal(t, true, b == h.Head())
	assert.Equal(t, true, slices.Equal([]*Action{b}, h.Ordered()))
}

func TestHistoryToggle(t *testing.T) {
	_, echoCmd, _ := testCommands(t)
	h := NewHistory(WithHistoryDebug(true))
	a, _ := h.Append(nil, echoCmd, 1)

	assert.Equal(t, true, h.IsActive(a))
	assert.Equal(t, nil, h.Toggle(a))
	assert.Equal(t, true, a.Disabled())
	assert.Equal(t, false, h.IsActive(a))
	assert.Equal(t, nil, h.Toggle(a))
	assert.Equal(t, true, h.IsActive(a))

	assert.Equal(t, ErrUnknownAction, h.Toggle(NewAction(echoCmd, nil, nil)))
}

func TestHistoryAppendNilCommand(t *testing.T) {
	h := NewHistory()
	a, err := h.Append(nil, nil)
	assert.Equal(t, ErrNilCommand, err)
	assert.Equal(t, true, a == nil)
	assert.Equal(t, 0, h.Size())
}

func TestHistoryAllAndActions(t *testing.T) {
	_, echoCmd, _ := testCommands(t)
	h := NewHistory(WithHistoryDebug(true))
	a, _ := h.Append(nil, echoCmd, 1)
	b, _ := h.Append(nil, echoCmd, 2)

	assert.Equal(t, true, slices.Equal([]*Action{a, b}, slices.Collect(h.All())))
	got := h.Actions()
	slices.SortFunc(got, func(x, y *Action) int {
		switch {
		case x.ID() < y.ID():
			return -1
		case x.ID() > y.ID():
			return 1
		}
		return 0
	})
	assert.Equal(t, true, slices.Equal([]*Action{a, b}, got))
	assert.Equal(t, true, a == h.Before(b))
	assert.Equal(t, true, h.After(b) == nil)

	for x := range h.All() {
		assert.Equal(t, true, a == x)
		break
	}
}

func TestHistoryWait(t *testing.T) {
	_, echoCmd, holdCmd := testCommands(t)
	h := NewHistory(WithHistoryDebug(true))
	h.Append(nil, echoCmd, 1)
	pending, _ := h.Append(nil, holdCmd)

	go func() {
		time.Sleep(5 * time.Millisecond)
		pending.Resolve("ok")
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Equal(t, nil, h.Wait(ctx))

	failing, _ := h.Append(nil, holdCmd)
	failing.Reject("nope")
	err := h.Wait(ctx)
	var rej *RejectionError
	assert.Equal(t, true, errors.As(err, &rej))
	assert.Equal(t, failing.ID(), rej.ActionID)
}

func TestHistoryToJSON(t *testing.T) {
	_, echoCmd, _ := testCommands(t)
	h := NewHistory(WithHistoryDebug(true))
	assert.Equal(t, 0, len(h.ToJSON().List))

	a, _ := h.Append(nil, echoCmd, 1)
	b, _ := h.Append(nil, echoCmd, 2)

	out := h.ToJSON()
	assert.Equal(t, string(a.ID()), out.Root)
	assert.Equal(t, string(b.ID()), out.Head)
	assert.Equal(t, []string{string(a.ID()), string(b.ID())}, out.List)
	assert.Equal(t, 2, out.Size)
	assert.Equal(t, "echo", out.Tree.Command)
	assert.Equal(t, 1, len(out.Tree.Children))
	assert.Equal(t, string(b.ID()), out.Tree.Next)
}
