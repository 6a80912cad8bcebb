// Package compiler runs the middle tier: it validates and analyzes a
// function's bytecode, builds its graph, allocates registers and commits the
// assumptions the graph was built on.
package compiler

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/bnb-chain/midtier/common/gopool"
	"github.com/bnb-chain/midtier/core/bytecode"
	"github.com/bnb-chain/midtier/core/feedback"
	"github.com/bnb-chain/midtier/core/graphbuilder"
	"github.com/bnb-chain/midtier/core/ir"
	"github.com/bnb-chain/midtier/core/regalloc"
)

// ErrNoBytecode is returned for functions without bytecode.
var ErrNoBytecode = errors.New("function has no bytecode")

// Artifact is the output of one compilation. Stats is nil when the graph
// was not allocated, which only happens for best-effort builds that hit an
// unsupported bytecode.
type Artifact struct {
	Name  string
	Key   common.Hash
	Graph *ir.Graph
	Stats *regalloc.Stats

	Dependencies *feedback.Dependencies
	// Unsupported is the builder's failure in best-effort mode.
	Unsupported error

	InlinedCalls        int
	UnconditionalDeopts int
	Elapsed             time.Duration
}

// Allocated reports whether the graph carries a register allocation.
func (a *Artifact) Allocated() bool { return a.Stats != nil }

// Compiler compiles functions against one feedback broker. It is safe for
// concurrent use.
type Compiler struct {
	cfg    Config
	broker feedback.Broker
	regs   *regalloc.Config
	cache  *Cache
	log    log.Logger

	// pool bounds batch workers; nil runs batches on the shared pool.
	pool *gopool.Pool
}

// New returns a compiler for cfg.
func New(cfg Config, broker feedback.Broker) (*Compiler, error) {
	if err := cfg.sanitize(); err != nil {
		return nil, err
	}
	regs, err := cfg.regallocConfig()
	if err != nil {
		return nil, errors.Wrap(err, "registers")
	}
	var pool *gopool.Pool
	if cfg.Workers > 0 {
		if pool, err = gopool.New(cfg.Workers); err != nil {
			return nil, err
		}
	}
	return &Compiler{
		cfg:    cfg,
		broker: broker,
		regs:   regs,
		cache:  NewCache(cfg.CacheSize),
		pool:   pool,
		log:    log.New("module", "midtier"),
	}, nil
}

// Close releases the batch workers.
func (c *Compiler) Close() {
	if c.pool != nil {
		c.pool.Release()
	}
}

// Cache exposes the artifact cache.
func (c *Compiler) Cache() *Cache { return c.cache }

// Compile compiles fn, or returns the cached artifact when fn's code and
// feedback are unchanged and the artifact's assumptions still hold.
func (c *Compiler) Compile(fn *feedback.JSFunction) (*Artifact, error) {
	if fn == nil || fn.Shared == nil || fn.Shared.Bytecode == nil {
		return nil, ErrNoBytecode
	}
	if err := fn.Shared.Bytecode.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validate %s", fn.Name())
	}
	key := CacheKey(fn)
	if art, ok := c.cache.Get(key); ok {
		err := art.Dependencies.Commit()
		if err == nil {
			cacheHitCounter.Inc(1)
			return art, nil
		}
		DebugWarn("Dropping stale artifact", "fn", fn.Name(), "err", err)
		c.cache.Remove(key)
	}
	cacheMissCounter.Inc(1)
	return c.cache.do(key, func() (*Artifact, error) { return c.compile(fn, key) })
}

// testHookBeforeCommit runs between allocation and dependency commit.
var testHookBeforeCommit func(*Artifact)

func (c *Compiler) compile(fn *feedback.JSFunction, key common.Hash) (*Artifact, error) {
	start := time.Now()
	logger := c.log.New("fn", fn.Name())

	an, err := bytecode.Analyze(fn.Shared.Bytecode)
	if err != nil {
		return nil, errors.Wrapf(err, "analyze %s", fn.Name())
	}
	ctx := graphbuilder.NewContext(c.broker, c.cfg.graphOptions())
	ctx.Logger = logger

	res := graphbuilder.Build(ctx, fn, an)
	buildTimer.UpdateSince(start)
	inlineCallsCounter.Inc(int64(res.InlinedCalls))
	deoptCounter.Inc(int64(res.UnconditionalDeopts))

	art := &Artifact{
		Name:                fn.Name(),
		Key:                 key,
		Graph:               res.Graph,
		Dependencies:        ctx.Dependencies,
		InlinedCalls:        res.InlinedCalls,
		UnconditionalDeopts: res.UnconditionalDeopts,
	}
	if !res.Success() {
		compileUnsupportedCounter.Inc(1)
		if !BestEffort {
			return nil, res.Err
		}
		DebugWarn("Returning partial graph", "fn", fn.Name(), "err", res.Err)
		art.Unsupported = res.Err
		art.Elapsed = time.Since(start)
		return art, nil
	}
	if c.cfg.VerifyGraph {
		if err := ir.Verify(res.Graph); err != nil {
			return nil, errors.Wrapf(err, "verify %s", fn.Name())
		}
	}

	allocStart := time.Now()
	art.Stats = regalloc.Allocate(res.Graph, c.regs, logger)
	regallocTimer.UpdateSince(allocStart)
	spillSlotsGauge.Update(int64(art.Stats.StackSlots()))

	if testHookBeforeCommit != nil {
		testHookBeforeCommit(art)
	}
	if err := art.Dependencies.Commit(); err != nil {
		compileInvalidatedCounter.Inc(1)
		c.cache.Remove(key)
		DebugWarn("Discarding invalidated compilation", "fn", fn.Name(), "err", err)
		return nil, err
	}
	art.Elapsed = time.Since(start)
	compileSuccessCounter.Inc(1)
	c.cache.Add(key, art)
	DebugInfo("Compiled function", "fn", fn.Name(), "blocks", res.Graph.NumBlocks(),
		"inlined", res.InlinedCalls, "stats", art.Stats, "deps", art.Dependencies, "elapsed", common.PrettyDuration(art.Elapsed))
	return art, nil
}

// Outcome is the result of one function in a batch.
type Outcome struct {
	Artifact *Artifact
	Err      error
}

// CompileBatch compiles fns concurrently and returns one outcome per
// function, in input order. With a worker bound every function is its own
// task; without one the batch is spread over the shared pool. Functions not
// started when ctx is cancelled fail with the context's error.
func (c *Compiler) CompileBatch(ctx context.Context, fns []*feedback.JSFunction) []Outcome {
	out := make([]Outcome, len(fns))
	compileOne := func(i int) {
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			return
		}
		out[i].Artifact, out[i].Err = c.Compile(fns[i])
	}
	var wg sync.WaitGroup
	if c.pool != nil {
		for i := range fns {
			i := i
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				continue
			}
			wg.Add(1)
			err := c.pool.Submit(func() {
				defer wg.Done()
				compileOne(i)
			})
			if err != nil {
				wg.Done()
				out[i].Err = err
			}
		}
		wg.Wait()
		return out
	}
	threads := gopool.Threads(len(fns))
	for t := 0; t < threads; t++ {
		t := t
		wg.Add(1)
		err := gopool.Submit(func() {
			defer wg.Done()
			for i := t; i < len(fns); i += threads {
				compileOne(i)
			}
		})
		if err != nil {
			wg.Done()
			for i := t; i < len(fns); i += threads {
				out[i].Err = err
			}
		}
	}
	wg.Wait()
	return out
}
