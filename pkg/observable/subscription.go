package observable

import "sync"

// Subscription is owned by exactly one Subscribe call. It moves from active
// to closed once; error, completion and unsubscription all close it.
type Subscription struct {
	mu            sync.Mutex
	closed        bool
	teardown      Teardown
	onUnsubscribe func()
}

// Closed reports whether the subscription reached a terminal state.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Unsubscribe closes the subscription and runs its teardown. Calling it more
// than once, or after the stream finished, does nothing.
func (s *Subscription) Unsubscribe() {
	td, ok := s.close()
	if !ok {
		return
	}
	if s.onUnsubscribe != nil {
		s.onUnsubscribe()
	}
	runTeardown(td)
}

// close flips the subscription to closed and hands back the teardown held at
// that moment. Only the first caller gets ok == true.
func (s *Subscription) close() (Teardown, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	s.closed = true
	td := s.teardown
	s.teardown = nil
	return td, true
}

// attach stores the teardown returned by the subscriber function, or runs it
// right away when the stream already finished while subscribing.
func (s *Subscription) attach(td Teardown) {
	if td == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		td.Unsubscribe()
		return
	}
	s.teardown = td
	s.mu.Unlock()
}

func runTeardown(td Teardown) {
	if td != nil {
		td.Unsubscribe()
	}
}
