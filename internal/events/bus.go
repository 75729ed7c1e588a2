// Package events provides in-process change subscriptions for editor models.
package events

import (
	"slices"
	"sync"
)

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Bus delivers events to subscribers in subscription order. The zero value
// is ready to use.
type Bus[T any] struct {
	mu   sync.Mutex
	next int
	subs []subscriber[T]
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (b *Bus[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscriber[T]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.subs = slices.DeleteFunc(b.subs, func(s subscriber[T]) bool { return s.id == id })
		})
	}
}

// Emit calls every current subscriber with ev. Subscribers run outside the
// bus lock and may subscribe or unsubscribe from inside their callback.
func (b *Bus[T]) Emit(ev T) {
	b.mu.Lock()
	subs := slices.Clone(b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// Len returns the number of registered subscribers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
