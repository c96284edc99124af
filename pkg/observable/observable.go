package observable

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrNotWrappable is returned (as a stream error) when Wrap receives a value
// that is neither a source nor of the stream's element type.
var ErrNotWrappable = errors.New("observable: value cannot be wrapped")

// Observer receives the notifications of a stream.
type Observer[T any] interface {
	Next(value T)
	Error(err error)
	Complete()
}

// Source is the capability shared by everything that can be observed.
type Source[T any] interface {
	Observable() *Observable[T]
}

// Teardown releases the resources held by a subscriber function.
type Teardown interface {
	Unsubscribe()
}

// TeardownFunc adapts a plain function to Teardown.
type TeardownFunc func()

// Unsubscribe implements Teardown.
func (f TeardownFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}

// Handlers is an observer assembled from optional callbacks. Nil callbacks
// are no-ops.
type Handlers[T any] struct {
	Start       func(*Subscription)
	Next        func(T)
	Error       func(error)
	Complete    func()
	Unsubscribe func()
}

// SubscriberFunc produces values for one subscription. It may return a
// teardown (or nil) that runs when the subscription closes.
type SubscriberFunc[T any] func(obs *SubscriptionObserver[T]) Teardown

// Observable is a lazy, multi-subscriber stream recipe.
type Observable[T any] struct {
	subscriber SubscriberFunc[T]
}

// New constructs an Observable around the subscriber function.
func New[T any](subscriber SubscriberFunc[T]) *Observable[T] {
	if subscriber == nil {
		panic("observable: nil subscriber")
	}
	return &Observable[T]{subscriber: subscriber}
}

// Observable implements Source.
func (o *Observable[T]) Observable() *Observable[T] { return o }

// Subscribe runs the subscriber function against the provided handlers.
func (o *Observable[T]) Subscribe(h Handlers[T]) *Subscription {
	sub := &Subscription{onUnsubscribe: h.Unsubscribe}
	if h.Start != nil {
		h.Start(sub)
	}
	if sub.Closed() {
		return sub
	}
	obs := &SubscriptionObserver[T]{sub: sub, handlers: h}
	sub.attach(o.run(obs))
	return sub
}

// SubscribeFunc subscribes a next-only callback.
func (o *Observable[T]) SubscribeFunc(next func(T)) *Subscription {
	return o.Subscribe(Handlers[T]{Next: next})
}

// SubscribeObserver subscribes anything implementing Observer, including a
// Subject.
func (o *Observable[T]) SubscribeObserver(ob Observer[T]) *Subscription {
	if ob == nil {
		return o.Subscribe(Handlers[T]{})
	}
	return o.Subscribe(Handlers[T]{
		Next:     ob.Next,
		Error:    ob.Error,
		Complete: ob.Complete,
	})
}

func (o *Observable[T]) run(obs *SubscriptionObserver[T]) (td Teardown) {
	defer func() {
		if r := recover(); r != nil {
			obs.Error(NewPanicError(r))
			td = nil
		}
	}()
	return o.subscriber(obs)
}

// SubscriptionObserver is the sealed observer handed to a subscriber
// function. Its methods are safe to call after the subscription closed; they
// become no-ops.
type SubscriptionObserver[T any] struct {
	sub      *Subscription
	handlers Handlers[T]
}

// Next delivers a value unless the subscription is closed.
func (o *SubscriptionObserver[T]) Next(value T) {
	if o.sub.Closed() {
		return
	}
	if o.handlers.Next != nil {
		o.handlers.Next(value)
	}
}

// Error terminates the subscription with err.
func (o *SubscriptionObserver[T]) Error(err error) {
	td, ok := o.sub.close()
	if !ok {
		return
	}
	if o.handlers.Error != nil {
		o.handlers.Error(err)
	}
	runTeardown(td)
}

// Complete terminates the subscription successfully.
func (o *SubscriptionObserver[T]) Complete() {
	td, ok := o.sub.close()
	if !ok {
		return
	}
	if o.handlers.Complete != nil {
		o.handlers.Complete()
	}
	runTeardown(td)
}

// Closed reports whether the subscription reached a terminal state.
func (o *SubscriptionObserver[T]) Closed() bool { return o.sub.Closed() }

// Subscription returns the underlying subscription handle.
func (o *SubscriptionObserver[T]) Subscription() *Subscription { return o.sub }

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError captures the current stack alongside the recovered value.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("observable: recovered panic: %v", e.Value)
}

// Unwrap exposes the recovered value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
