package core

import (
	"testing"

	"microcosm/pkg/domain"
	"microcosm/pkg/observable"
)

// echo resolves with its first param.
func echo(_ Origin, params []any) (Result, error) {
	if len(params) == 0 {
		return Value{}, nil
	}
	return Value{Payload: params[0]}, nil
}

// hold leaves the action open for the test to settle.
func hold(Origin, []any) (Result, error) {
	return Control(func(*Action, Origin) {}), nil
}

func testCommands(t *testing.T) (*Registry, *Command, *Command) {
	t.Helper()
	reg := NewRegistry()
	return reg, reg.MustTag("echo", echo), reg.MustTag("hold", hold)
}

func treeActions(t *testing.T, n int) (*Tree, []*Action) {
	t.Helper()
	_, cmd, _ := testCommands(t)
	tree := NewTree()
	out := make([]*Action, n)
	for i := range out {
		out[i] = NewAction(cmd, nil, nil, WithTree(tree))
	}
	return tree, out
}

func revisions(a *Action) *[]domain.Revision {
	var got []domain.Revision
	a.Subscribe(observable.Handlers[domain.Revision]{
		Next: func(r domain.Revision) { got = append(got, r) },
	})
	return &got
}

func statuses(revs []domain.Revision) []domain.Status {
	out := make([]domain.Status, len(revs))
	for i, r := range revs {
		out[i] = r.Status
	}
	return out
}

func ids(actions []*Action) []ActionID {
	out := make([]ActionID, len(actions))
	for i, a := range actions {
		out[i] = a.ID()
	}
	return out
}
