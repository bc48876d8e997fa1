package reservation

import (
	"context"
	"sync"
)

// Locker serializes reservation writes per flight. Lock blocks until the key
// is held or ctx ends; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// KeyedMutex is the in-process Locker used when a single replica owns the
// reservations table.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyedLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.sem
				m.done(key, l)
			})
		}, nil
	case <-ctx.Done():
		m.done(key, l)
		return nil, ctx.Err()
	}
}

func (m *KeyedMutex) done(key string, l *keyedLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}
