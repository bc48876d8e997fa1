package reservation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	var inside, maxSeen atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), "AV101")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				cur := maxSeen.Load()
				if n <= cur || maxSeen.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Zero(t, m.size())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	unlockA, err := m.Lock(context.Background(), "AV101")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := m.Lock(ctx, "AV202")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_ContextCancelWhileWaiting(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "AV101")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "AV101")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Zero(t, m.size())
}
