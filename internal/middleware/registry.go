package middleware

import (
	"io"
	"slices"
	"sync"
)

var (
	registryMu sync.Mutex
	// registry holds globally-registered middleware plugins.
	registry []Middleware
)

// Register should be called by middleware packages (typically in init) to
// register themselves with the core chain builder.
func Register(m Middleware) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, m)
}

// Registered returns a shallow copy of all registered middleware.
func Registered() []Middleware {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]Middleware, len(registry))
	copy(out, registry)
	return out
}

// NewChainFromRegistry builds a chain from all registered middleware except
// the disabled IDs. If a debug writer is provided, it is attached for JSONL
// debug logs. It returns nil when nothing is left to run.
func NewChainFromRegistry(debugWriter io.Writer, disabled ...string) *Chain {
	mws := Registered()
	if len(disabled) > 0 {
		mws = slices.DeleteFunc(mws, func(mw Middleware) bool {
			return slices.Contains(disabled, mw.ID())
		})
	}

	if len(mws) == 0 {
		return nil
	}
	c := NewChain(mws...)
	if debugWriter != nil {
		c.SetDebugWriter(debugWriter)
	}
	return c
}
