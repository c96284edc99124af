// Package observable is a small push-based stream library.
//
// An [Observable] is an immutable recipe: every call to Subscribe runs the
// subscriber function again and produces an independent [Subscription]. A
// [Subject] is both an Observable and an [Observer]; it multicasts every
// emission to its current subscribers and remembers the last value so callers
// can take a synchronous snapshot instead of subscribing.
//
// Terminal events (Error, Complete and Unsubscribe) are mutually exclusive and
// idempotent. Whatever teardown the subscriber function returns runs exactly
// once, at the first terminal transition.
//
//	src := observable.Of(1, 2)
//	out := observable.FlatMap[int, int](src, func(x int) any {
//		return observable.Of(x, x*10)
//	})
//	out.SubscribeFunc(func(v int) { fmt.Println(v) }) // 1 10 2 20
package observable
