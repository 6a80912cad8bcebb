package gopool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)
	defer p.Release()
	assert.Equal(t, 2, p.Cap())

	var (
		wg        sync.WaitGroup
		running   atomic.Int32
		maxActive atomic.Int32
		gate      = make(chan struct{})
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			err := p.Submit(func() {
				defer wg.Done()
				n := running.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				<-gate
				running.Add(-1)
			})
			if !assert.NoError(t, err) {
				wg.Done()
			}
		}()
	}
	close(gate)
	wg.Wait()
	assert.LessOrEqual(t, maxActive.Load(), int32(2))
}

func TestThreads(t *testing.T) {
	assert.Equal(t, 1, Threads(0))
	assert.Equal(t, 1, Threads(4))
	assert.GreaterOrEqual(t, Threads(1000), 1)
}

func TestSharedPoolSubmit(t *testing.T) {
	done := make(chan struct{})
	require.NoError(t, Submit(func() { close(done) }))
	<-done
}

func TestThreadsSpreadTasks(t *testing.T) {
	n := Threads(37)
	assert.LessOrEqual(t, n, runtime.NumCPU())
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 37/minNumberPerTask)
}
