package observable

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
)

// Of emits each value synchronously, in order, then completes.
func Of[T any](values ...T) *Observable[T] {
	return New(func(obs *SubscriptionObserver[T]) Teardown {
		for _, v := range values {
			if obs.Closed() {
				return nil
			}
			obs.Next(v)
		}
		obs.Complete()
		return nil
	})
}

// Empty completes immediately without emitting.
func Empty[T any]() *Observable[T] {
	return New(func(obs *SubscriptionObserver[T]) Teardown {
		obs.Complete()
		return nil
	})
}

// Throw errors immediately with err.
func Throw[T any](err error) *Observable[T] {
	return New(func(obs *SubscriptionObserver[T]) Teardown {
		obs.Error(err)
		return nil
	})
}

// Wrap lifts an arbitrary value into a Source. Sources (including Deferred
// and Subject) pass through, a nil or a T becomes a single emission followed
// by completion, and anything else yields a stream that errors with
// ErrNotWrappable.
func Wrap[T any](v any) Source[T] {
	switch s := v.(type) {
	case Source[T]:
		return s
	case T:
		return Of(s)
	case nil:
		var zero T
		return Of(zero)
	default:
		return Throw[T](fmt.Errorf("%w: %T", ErrNotWrappable, v))
	}
}

// Map transforms every value of src with fn. Errors and completion pass
// through untouched.
func Map[T, U any](src Source[T], fn func(T) U) *Observable[U] {
	return New(func(obs *SubscriptionObserver[U]) Teardown {
		return src.Observable().Subscribe(Handlers[T]{
			Next: func(v T) {
				out, err := safeApply(fn, v)
				if err != nil {
					obs.Error(err)
					return
				}
				obs.Next(out)
			},
			Error:    obs.Error,
			Complete: obs.Complete,
		})
	})
}

// FlatMap maps every value of src to an inner stream (see Wrap) and merges
// the inner emissions. The result completes once src completed and every
// inner subscription completed.
func FlatMap[T, U any](src Source[T], fn func(T) any) *Observable[U] {
	return New(func(obs *SubscriptionObserver[U]) Teardown {
		var (
			mu        sync.Mutex
			outerDone bool
			inners    = make(map[*Subscription]struct{})
		)

		closeIfDone := func() {
			mu.Lock()
			done := outerDone && len(inners) == 0
			mu.Unlock()
			if done {
				obs.Complete()
			}
		}

		outer := src.Observable().Subscribe(Handlers[T]{
			Next: func(v T) {
				inner, err := safeApply(fn, v)
				if err != nil {
					obs.Error(err)
					return
				}
				var self *Subscription
				Wrap[U](inner).Observable().Subscribe(Handlers[U]{
					Start: func(s *Subscription) {
						self = s
						mu.Lock()
						inners[s] = struct{}{}
						mu.Unlock()
					},
					Next:  obs.Next,
					Error: obs.Error,
					Complete: func() {
						mu.Lock()
						delete(inners, self)
						mu.Unlock()
						closeIfDone()
					},
				})
			},
			Error: obs.Error,
			Complete: func() {
				mu.Lock()
				outerDone = true
				mu.Unlock()
				closeIfDone()
			},
		})

		return TeardownFunc(func() {
			outer.Unsubscribe()
			mu.Lock()
			live := slices.Collect(maps.Keys(inners))
			clear(inners)
			mu.Unlock()
			for _, s := range live {
				s.Unsubscribe()
			}
		})
	})
}

// Last resolves with the final value of src once it completes, or rejects
// when it errors.
func Last[T any](src Source[T]) *Deferred[T] {
	d := NewDeferred[T]()
	var (
		mu   sync.Mutex
		last T
	)
	src.Observable().Subscribe(Handlers[T]{
		Next: func(v T) {
			mu.Lock()
			last = v
			mu.Unlock()
		},
		Error: func(err error) { d.Reject(err) },
		Complete: func() {
			mu.Lock()
			v := last
			mu.Unlock()
			d.Resolve(v)
		},
	})
	return d
}

// Hash resolves a map whose values are sources or plain values. The returned
// subject emits the assembled map every time a key produces a value and
// completes once every key completed. Any error fails the whole hash.
func Hash(obj map[string]any) *Subject[map[string]any] {
	subject := NewSubject[map[string]any]()
	if len(obj) == 0 {
		subject.Next(map[string]any{})
		subject.Complete()
		return subject
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		mu      sync.Mutex
		payload = make(map[string]any, len(obj))
		jobs    = len(keys)
	)

	for _, key := range keys {
		key := key
		Wrap[any](obj[key]).Observable().Subscribe(Handlers[any]{
			Next: func(v any) {
				mu.Lock()
				next := maps.Clone(payload)
				next[key] = v
				payload = next
				mu.Unlock()
				subject.Next(next)
			},
			Error: subject.Error,
			Complete: func() {
				mu.Lock()
				jobs--
				done := jobs <= 0
				mu.Unlock()
				if done {
					subject.Complete()
				}
			},
		})
	}
	return subject
}

func safeApply[T, U any](fn func(T) U, v T) (out U, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPanicError(r)
		}
	}()
	return fn(v), nil
}
