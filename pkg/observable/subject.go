package observable

import (
	"slices"
	"sync"
)

// SubjectState tracks the lifecycle of a Subject.
type SubjectState int

const (
	SubjectOpen SubjectState = iota
	SubjectErrored
	SubjectCompleted
)

func (s SubjectState) String() string {
	switch s {
	case SubjectOpen:
		return "open"
	case SubjectErrored:
		return "errored"
	case SubjectCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Subject is a multicast Observable that is also an Observer. It remembers
// the most recent value but does not replay it: subscribers only see values
// emitted after they subscribed. Subscribers that arrive after the subject
// finished receive the terminal event immediately.
type Subject[T any] struct {
	mu         sync.Mutex
	state      SubjectState
	value      T
	hasValue   bool
	err        error
	observers  []*SubscriptionObserver[T]
	observable *Observable[T]
}

// NewSubject returns an open subject.
func NewSubject[T any]() *Subject[T] {
	s := &Subject[T]{}
	s.observable = New(s.subscribe)
	return s
}

func (s *Subject[T]) subscribe(obs *SubscriptionObserver[T]) Teardown {
	s.mu.Lock()
	switch s.state {
	case SubjectErrored:
		err := s.err
		s.mu.Unlock()
		obs.Error(err)
		return nil
	case SubjectCompleted:
		s.mu.Unlock()
		obs.Complete()
		return nil
	}
	// copy on write so delivery can iterate a stable slice without the lock
	next := slices.Clone(s.observers)
	s.observers = append(next, obs)
	s.mu.Unlock()
	return TeardownFunc(func() { s.remove(obs) })
}

func (s *Subject[T]) remove(obs *SubscriptionObserver[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.observers, obs)
	if i < 0 {
		return
	}
	next := slices.Clone(s.observers)
	s.observers = slices.Delete(next, i, i+1)
}

// Observable implements Source.
func (s *Subject[T]) Observable() *Observable[T] { return s.observable }

// Subscribe registers handlers for future emissions.
func (s *Subject[T]) Subscribe(h Handlers[T]) *Subscription {
	return s.observable.Subscribe(h)
}

// SubscribeFunc registers a next-only callback.
func (s *Subject[T]) SubscribeFunc(next func(T)) *Subscription {
	return s.observable.SubscribeFunc(next)
}

// SubscribeObserver registers an Observer.
func (s *Subject[T]) SubscribeObserver(ob Observer[T]) *Subscription {
	return s.observable.SubscribeObserver(ob)
}

// Next records value as the current value and fans it out.
func (s *Subject[T]) Next(value T) {
	s.mu.Lock()
	if s.state != SubjectOpen {
		s.mu.Unlock()
		return
	}
	s.value = value
	s.hasValue = true
	observers := s.observers
	s.mu.Unlock()

	for _, obs := range observers {
		obs.Next(value)
	}
}

// Error moves the subject to the errored state and notifies subscribers.
func (s *Subject[T]) Error(err error) {
	s.mu.Lock()
	if s.state != SubjectOpen {
		s.mu.Unlock()
		return
	}
	s.state = SubjectErrored
	s.err = err
	observers := s.observers
	s.observers = nil
	s.mu.Unlock()

	for _, obs := range observers {
		obs.Error(err)
	}
}

// Complete moves the subject to the completed state and notifies subscribers.
func (s *Subject[T]) Complete() {
	s.mu.Lock()
	if s.state != SubjectOpen {
		s.mu.Unlock()
		return
	}
	s.state = SubjectCompleted
	observers := s.observers
	s.observers = nil
	s.mu.Unlock()

	for _, obs := range observers {
		obs.Complete()
	}
}

// Value returns the most recently emitted value.
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// HasValue reports whether anything has been emitted yet.
func (s *Subject[T]) HasValue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasValue
}

// State returns the lifecycle state.
func (s *Subject[T]) State() SubjectState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Closed reports whether the subject errored or completed.
func (s *Subject[T]) Closed() bool {
	return s.State() != SubjectOpen
}

// Err returns the error the subject terminated with, if any.
func (s *Subject[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Observers returns the number of live subscribers.
func (s *Subject[T]) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}
