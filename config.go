package zeno

import (
	"go.uber.org/zap"

	"github.com/zenovm/zeno/internal/loader"
)

// TickFunc is called before each instruction dispatch. Returning true
// requests a trap: the next dispatch fails the invocation with the
// Interrupted error. Embedders build fuel metering and timeouts on it.
type TickFunc func() bool

// LoadManager resolves ahead-of-time compiled shared objects; see the
// default ELF-backed implementation for the section layout it expects.
type LoadManager = loader.LoadManager

// RuntimeConfig configures a VM. Each With method returns a copy, so a base
// config can fan out to several VMs.
type RuntimeConfig struct {
	logger           *zap.Logger
	tick             TickFunc
	callDepthCeiling int
	loadManager      LoadManager
}

// NewRuntimeConfig returns the default configuration: nop logging, no tick
// callback, and the built-in call-depth ceiling.
func NewRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{}
}

func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// WithLogger routes the runtime's structured logs to the given logger.
func (c *RuntimeConfig) WithLogger(l *zap.Logger) *RuntimeConfig {
	ret := c.clone()
	ret.logger = l
	return ret
}

// WithTick installs the per-instruction tick callback.
func (c *RuntimeConfig) WithTick(t TickFunc) *RuntimeConfig {
	ret := c.clone()
	ret.tick = t
	return ret
}

// WithCallDepthCeiling bounds the call-frame stack; deeper recursion traps
// instead of exhausting the Go stack.
func (c *RuntimeConfig) WithCallDepthCeiling(n int) *RuntimeConfig {
	ret := c.clone()
	ret.callDepthCeiling = n
	return ret
}

// WithLoadManager replaces the shared-object resolver used for ".so" input.
func (c *RuntimeConfig) WithLoadManager(lm LoadManager) *RuntimeConfig {
	ret := c.clone()
	ret.loadManager = lm
	return ret
}
