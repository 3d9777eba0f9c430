package host

import (
	"context"
	"sync/atomic"
)

// CancellationToken reports whether the host asked for an operation to stop.
type CancellationToken interface {
	IsCancellationRequested() bool
}

type noneToken struct{}

func (noneToken) IsCancellationRequested() bool { return false }

// None is a token that is never cancelled.
var None CancellationToken = noneToken{}

// CancellationTokenSource produces a token that flips once Cancel is called.
type CancellationTokenSource struct {
	cancelled atomic.Bool
}

func NewCancellationTokenSource() *CancellationTokenSource {
	return &CancellationTokenSource{}
}

func (s *CancellationTokenSource) Cancel() { s.cancelled.Store(true) }

func (s *CancellationTokenSource) Token() CancellationToken { return s }

func (s *CancellationTokenSource) IsCancellationRequested() bool { return s.cancelled.Load() }

type contextToken struct {
	ctx context.Context
}

func (t contextToken) IsCancellationRequested() bool { return t.ctx.Err() != nil }

// TokenFromContext adapts a context so that its cancellation is visible as a
// host token.
func TokenFromContext(ctx context.Context) CancellationToken {
	return contextToken{ctx: ctx}
}
