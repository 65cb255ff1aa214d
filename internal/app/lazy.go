package app

import (
	"sync"
	"sync/atomic"
)

// lazy builds a component on first access and remembers the result, error included.
type lazy[T any] struct {
	once  sync.Once
	ready atomic.Bool
	val   T
	err   error
}

func (l *lazy[T]) get(init func() (T, error)) (T, error) {
	l.once.Do(func() {
		l.val, l.err = init()
		l.ready.Store(l.err == nil)
	})
	return l.val, l.err
}

// built returns the component only if it was successfully built.
func (l *lazy[T]) built() (T, bool) {
	if !l.ready.Load() {
		var zero T
		return zero, false
	}
	return l.val, true
}
