package middleware

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
)

// Chain runs middleware by descending Priority. Equal priorities keep the
// order they were added in.
type Chain struct {
	mu  sync.RWMutex
	mws []Middleware
	log dispatchLog
}

type DecisionResult struct {
	MiddlewareID string
	Priority     int
	Decision     Decision
}

// NewChain returns a chain running mws in priority order.
func NewChain(mws ...Middleware) *Chain {
	c := &Chain{}
	for _, mw := range mws {
		c.Use(mw)
	}
	return c
}

// SetDebugWriter writes one JSON line per middleware run to w. A nil w turns
// the log off.
func (c *Chain) SetDebugWriter(w io.Writer) {
	c.log.setWriter(w)
}

// Use adds mw after every middleware of equal or higher priority.
func (c *Chain) Use(mw Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at := slices.IndexFunc(c.mws, func(m Middleware) bool {
		return m.Priority() < mw.Priority()
	})
	if at < 0 {
		at = len(c.mws)
	}
	c.mws = slices.Insert(c.mws, at, mw)
}

func (c *Chain) List() []Middleware {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.mws)
}

// Dispatch runs the chain for e, applying each decision to e before the next
// middleware sees it. The first Cancel stops the chain. Skipped middleware
// still get a result. A nil chain dispatches nothing.
func (c *Chain) Dispatch(ctx context.Context, e *Event) ([]DecisionResult, error) {
	if c == nil {
		return nil, nil
	}
	mws := c.List()
	results := make([]DecisionResult, 0, len(mws))
	for _, mw := range mws {
		res, err := c.run(ctx, mw, e)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		if res.Decision.Cancel {
			break
		}
	}
	return results, nil
}

func (c *Chain) run(ctx context.Context, mw Middleware, e *Event) (DecisionResult, error) {
	res := DecisionResult{MiddlewareID: mw.ID(), Priority: mw.Priority()}
	before := e.snapshot()

	if cmw, ok := mw.(ConditionalMiddleware); ok && !cmw.ShouldLoad(ctx, e) {
		res.Decision.Reason = reasonSkipped
		c.log.record(e, res, before, outcomeSkipped)
		return res, nil
	}

	dec, err := mw.OnEvent(ctx, e)
	if err != nil {
		res.Decision = Decision{Reason: err.Error()}
		c.log.record(e, res, before, outcomeError)
		return res, fmt.Errorf("middleware %s: %w", mw.ID(), err)
	}
	e.apply(dec)
	res.Decision = dec

	outcome := outcomeApplied
	if dec.Cancel {
		outcome = outcomeCancelled
	}
	c.log.record(e, res, before, outcome)
	return res, nil
}
