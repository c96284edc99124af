package observable

import (
	"context"
	"errors"
	"sync"
)

var errNilRejection = errors.New("observable: rejected without error")

// Deferred is a value that settles exactly once, either resolved with a
// value or rejected with an error.
type Deferred[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     T
	err       error
	callbacks []func(T, error)
}

// NewDeferred returns an unsettled Deferred.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolved returns a Deferred already resolved with v.
func Resolved[T any](v T) *Deferred[T] {
	d := NewDeferred[T]()
	d.Resolve(v)
	return d
}

// Rejected returns a Deferred already rejected with err.
func Rejected[T any](err error) *Deferred[T] {
	d := NewDeferred[T]()
	d.Reject(err)
	return d
}

// Resolve settles the Deferred with v. It returns false if already settled.
func (d *Deferred[T]) Resolve(v T) bool {
	return d.settle(v, nil)
}

// Reject settles the Deferred with err. It returns false if already settled.
func (d *Deferred[T]) Reject(err error) bool {
	if err == nil {
		err = errNilRejection
	}
	var zero T
	return d.settle(zero, err)
}

func (d *Deferred[T]) settle(v T, err error) bool {
	d.mu.Lock()
	if d.settled {
		d.mu.Unlock()
		return false
	}
	d.settled = true
	d.value = v
	d.err = err
	callbacks := d.callbacks
	d.callbacks = nil
	close(d.done)
	d.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	return true
}

// OnSettle registers fn to run once the Deferred settles. If it already
// settled, fn runs synchronously.
func (d *Deferred[T]) OnSettle(fn func(T, error)) {
	d.mu.Lock()
	if !d.settled {
		d.callbacks = append(d.callbacks, fn)
		d.mu.Unlock()
		return
	}
	v, err := d.value, d.err
	d.mu.Unlock()
	fn(v, err)
}

// Then registers separate success and failure callbacks; either may be nil.
func (d *Deferred[T]) Then(pass func(T), fail func(error)) {
	d.OnSettle(func(v T, err error) {
		if err != nil {
			if fail != nil {
				fail(err)
			}
			return
		}
		if pass != nil {
			pass(v)
		}
	})
}

// Done is closed once the Deferred settles.
func (d *Deferred[T]) Done() <-chan struct{} { return d.done }

// Settled reports whether the Deferred has settled.
func (d *Deferred[T]) Settled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settled
}

// Peek returns the settled outcome without blocking; ok is false while the
// Deferred is pending.
func (d *Deferred[T]) Peek() (value T, err error, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.err, d.settled
}

// Await blocks until the Deferred settles or ctx is done.
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.value, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Observable implements Source: the stream emits the resolution and
// completes, or errors on rejection.
func (d *Deferred[T]) Observable() *Observable[T] {
	return FromDeferred(d)
}

// FromDeferred adapts a Deferred to an Observable.
func FromDeferred[T any](d *Deferred[T]) *Observable[T] {
	return New(func(obs *SubscriptionObserver[T]) Teardown {
		d.OnSettle(func(v T, err error) {
			if err != nil {
				obs.Error(err)
				return
			}
			obs.Next(v)
			obs.Complete()
		})
		return nil
	})
}
