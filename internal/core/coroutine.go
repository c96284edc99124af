package core

import (
	"microcosm/pkg/domain"
	"microcosm/pkg/observable"
)

// Result describes the work a command hands back. It is one of Value,
// Pending, Sequence, Stream or Control.
type Result interface {
	isResult()
}

// Value resolves the action immediately with Payload.
type Value struct {
	Payload any
}

// Pending opens the action and settles it with the Deferred.
type Pending struct {
	Deferred *observable.Deferred[any]
}

// Sequence opens the action and runs on the pushing goroutine. Each yielded
// value updates the action; the return value resolves it and a returned error
// rejects it. yield reports false once the action has closed, after which the
// body should return. Use Pending or Stream for work that blocks.
type Sequence func(yield func(any) bool) (any, error)

// Stream opens the action and mirrors the source: values update, completion
// resolves with the last value, errors reject. Cancelling the action
// unsubscribes from the source.
type Stream struct {
	Source observable.Source[any]
}

// Control hands the action to the command, which drives it directly.
type Control func(action *Action, repo Origin)

func (Value) isResult()    {}
func (Pending) isResult()  {}
func (Sequence) isResult() {}
func (Stream) isResult()   {}
func (Control) isResult()  {}

// run invokes the command and binds its result to the action. Failures while
// invoking the command reject the action and are returned as well; anything
// that fails later only rejects.
func run(action *Action, repo Origin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = observable.NewPanicError(r)
			action.Reject(err)
		}
	}()

	res, err := action.command.invoke(repo, action.params)
	if err != nil {
		action.Reject(err)
		return err
	}

	switch r := res.(type) {
	case nil:
		action.Resolve(nil)
	case Value:
		action.Resolve(r.Payload)
	case Pending:
		runPending(action, r)
	case Sequence:
		runSequence(action, r)
	case Stream:
		runStream(action, r)
	case Control:
		action.Open()
		r(action, repo)
	}
	return nil
}

func runPending(action *Action, p Pending) {
	action.Open()
	if p.Deferred == nil {
		action.Resolve(nil)
		return
	}
	p.Deferred.OnSettle(func(v any, err error) {
		if err != nil {
			action.Reject(err)
			return
		}
		action.Resolve(v)
	})
}

func runSequence(action *Action, seq Sequence) {
	action.Open()
	defer func() {
		if r := recover(); r != nil {
			action.Reject(observable.NewPanicError(r))
		}
	}()
	yield := func(v any) bool {
		if action.Closed() {
			return false
		}
		action.Update(v)
		return !action.Closed()
	}
	out, err := seq(yield)
	if err != nil {
		action.Reject(err)
		return
	}
	action.Resolve(out)
}

func runStream(action *Action, s Stream) {
	if s.Source == nil {
		action.Resolve(nil)
		return
	}
	action.Open()
	sub := s.Source.Observable().Subscribe(observable.Handlers[any]{
		Next:     func(v any) { action.Update(v) },
		Error:    func(err error) { action.Reject(err) },
		Complete: func() { action.Resolve() },
	})
	action.Subscribe(observable.Handlers[domain.Revision]{
		Error: func(error) { sub.Unsubscribe() },
	})
}
