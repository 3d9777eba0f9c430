package localcache

import (
	"context"
	"strings"
	"sync"
	"time"

	mw "lmbridge/internal/middleware"
)

const defaultTTL = 5 * time.Minute

func init() {
	mw.Register(New(defaultTTL))
}

type cacheEntry struct {
	response string
	stored   time.Time
}

// LocalCache answers a prompt from memory when the same prompt was answered
// within ttl, skipping the model request. Only the first request of a turn is
// served; follow-up requests inside a tool loop always reach the model.
type LocalCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	cache map[string]cacheEntry
}

func New(ttl time.Duration) *LocalCache {
	return &LocalCache{
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]cacheEntry),
	}
}

func (l *LocalCache) ID() string { return "local_cache" }

// Priority runs the cache after the token budget (90) so a hit skips nothing
// that matters.
func (l *LocalCache) Priority() int { return 80 }

func (l *LocalCache) ShouldLoad(_ context.Context, e *mw.Event) bool {
	return e != nil && e.Step == 0
}

func (l *LocalCache) OnEvent(_ context.Context, e *mw.Event) (mw.Decision, error) {
	key := cacheKey(e.UserText)
	if key == "" {
		return mw.Decision{}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch e.Name {
	case mw.EventBeforeLLMRequest:
		entry, ok := l.cache[key]
		if !ok {
			return mw.Decision{}, nil
		}
		if l.now().Sub(entry.stored) >= l.ttl {
			delete(l.cache, key)
			return mw.Decision{}, nil
		}
		reply := entry.response
		return mw.Decision{
			Cancel:      true,
			ReplaceText: &reply,
			Reason:      "served from local cache",
		}, nil

	case mw.EventAfterLLMResponse:
		if e.LLMText != "" {
			l.cache[key] = cacheEntry{response: e.LLMText, stored: l.now()}
		}
	}
	return mw.Decision{}, nil
}

func cacheKey(prompt string) string {
	return strings.ToLower(strings.Join(strings.Fields(prompt), " "))
}
