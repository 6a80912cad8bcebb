package compiler

import "github.com/ethereum/go-ethereum/metrics"

var (
	compileSuccessCounter     = metrics.NewRegisteredCounter("midtier/compile/success", nil)
	compileUnsupportedCounter = metrics.NewRegisteredCounter("midtier/compile/unsupported", nil)
	compileInvalidatedCounter = metrics.NewRegisteredCounter("midtier/compile/invalidated", nil)
	inlineCallsCounter        = metrics.NewRegisteredCounter("midtier/inline/calls", nil)
	deoptCounter              = metrics.NewRegisteredCounter("midtier/deopt/unconditional", nil)
	cacheHitCounter           = metrics.NewRegisteredCounter("midtier/cache/hit", nil)
	cacheMissCounter          = metrics.NewRegisteredCounter("midtier/cache/miss", nil)

	buildTimer    = metrics.NewRegisteredTimer("midtier/build", nil)
	regallocTimer = metrics.NewRegisteredTimer("midtier/regalloc", nil)

	spillSlotsGauge = metrics.NewRegisteredGauge("midtier/spill/slots", nil)
)
