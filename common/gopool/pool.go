// Package gopool runs tasks on bounded goroutine pools.
package gopool

import (
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
)

var (
	// Shared pool for callers that do not need their own bound.
	defaultPool, _   = ants.NewPool(ants.DefaultAntsPoolSize, ants.WithExpiryDuration(10*time.Second))
	minNumberPerTask = 5
)

// Submit submits a task to the shared pool.
func Submit(task func()) error {
	return defaultPool.Submit(task)
}

// Threads suggests how many workers to spread tasks over.
func Threads(tasks int) int {
	threads := tasks / minNumberPerTask
	if threads > runtime.NumCPU() {
		threads = runtime.NumCPU()
	} else if threads == 0 {
		threads = 1
	}
	return threads
}

// Pool is a pool with its own worker bound. Submit blocks while every
// worker is busy.
type Pool struct {
	pool *ants.Pool
}

// New returns a pool running at most size tasks at once.
func New(size int) (*Pool, error) {
	if size <= 0 {
		size = 1
	}
	p, err := ants.NewPool(size, ants.WithExpiryDuration(10*time.Second))
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p}, nil
}

// Submit runs task on a pool worker.
func (p *Pool) Submit(task func()) error { return p.pool.Submit(task) }

// Cap is the worker bound.
func (p *Pool) Cap() int { return p.pool.Cap() }

// Running returns the number of busy workers.
func (p *Pool) Running() int { return p.pool.Running() }

// Release stops the pool; pending Submit calls fail afterwards.
func (p *Pool) Release() { p.pool.Release() }
