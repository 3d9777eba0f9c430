package middleware

import (
	"context"
	"maps"
)

type EventName string

const (
	EventBeforeLLMRequest EventName = "before_llm_request"
	EventAfterLLMResponse EventName = "after_llm_response"
)

// Options are the per-request model options handed to the chat model as
// bind kwargs. Known keys: "temperature", "topP", "maxTokens", "stop",
// "justification", "toolMode". Other keys pass through to the host.
type Options map[string]any

// Clone returns a shallow copy, so a middleware can change options without
// touching the caller's map.
func (o Options) Clone() Options {
	if o == nil {
		return Options{}
	}
	return maps.Clone(o)
}

// MaxTokens reads the "maxTokens" option. Integers and floats are accepted.
func (o Options) MaxTokens() int {
	switch n := o["maxTokens"].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

type Decision struct {
	Cancel      bool   // stop the pipeline for this event
	Reason      string // for logs
	ReplaceText *string

	// Optional: change request options + continue
	OverrideOptions Options
}

type Event struct {
	Name     EventName
	UserText string  // for before_llm_request
	LLMText  string  // for after_llm_response
	Options  Options // mutable
	Step     int     // tool-loop step, 0 for the first request
	Context  map[string]any
}

type Middleware interface {
	ID() string
	Priority() int
	OnEvent(ctx context.Context, e *Event) (Decision, error)
}

// ConditionalMiddleware is an optional extension that allows a middleware to be
// dynamically enabled/disabled per request/event.
//
// If a middleware implements this interface and returns false, it will be
// skipped during dispatch (but still recorded in results with a "skipped"
// reason).
type ConditionalMiddleware interface {
	ShouldLoad(ctx context.Context, e *Event) bool
}
