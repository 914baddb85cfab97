// Package observe provides a minimal observable value with
// replace-on-change semantics: setting a value overwrites the previous one
// wholesale and notifies subscribers synchronously.
package observe

import "sync"

// Value holds an observable value of type T. Subscribers are invoked
// synchronously on every Set.
type Value[T any] struct {
	mu      sync.Mutex
	current T
	subs    map[int]func(T)
	nextID  int
}

// NewValue creates an observable holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		subs:    make(map[int]func(T)),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the current value and notifies all subscribers with the new
// value before returning.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	v.current = val
	fns := make([]func(T), 0, len(v.subs))
	for _, fn := range v.subs {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(val)
	}
}

// Subscribe registers fn to be called on every Set. The returned cancel
// function removes the subscription; it is safe to call more than once.
func (v *Value[T]) Subscribe(fn func(T)) (cancel func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
	}
}
