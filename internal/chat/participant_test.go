package chat

import (
	"context"
	"testing"
	"time"

	"lmbridge/internal/host"
	"lmbridge/internal/middleware"
	"lmbridge/middlewares/localcache"
	"lmbridge/middlewares/tokenbudget"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantReplaysHistoryAndStreamsMarkdown(t *testing.T) {
	h := &scriptedHost{turns: [][]host.Part{{host.TextPart{Value: "Sure"}, host.TextPart{Value: "!"}}}}
	p := NewParticipant()
	sink := &responseSink{}

	chatCtx := host.ChatContext{History: []host.Turn{
		host.RequestTurn{Prompt: "open main.go"},
		host.ResponseTurn{Response: []host.ResponsePart{
			host.Markdown("See "),
			host.AnchorPart{Value: host.File("/src/main.go")},
		}},
	}}
	res, err := p.Handle(context.Background(), host.ChatRequest{Prompt: "now explain it", Model: h}, chatCtx, sink, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Metadata["steps"])
	assert.Equal(t, "Sure!", sink.markdown())

	require.Len(t, h.requests, 1)
	msgs := h.requests[0].messages
	require.Len(t, msgs, 3)
	assert.Equal(t, host.UserText("open main.go"), msgs[0])
	assert.Equal(t, host.RoleAssistant, msgs[1].Role)
	assert.Contains(t, msgs[1].Content[0].(host.TextPart).Value, "See ")
	assert.Equal(t, host.UserText("now explain it"), msgs[2])
}

func TestParticipantRunsToolsWithHostConvention(t *testing.T) {
	h := &scriptedHost{turns: [][]host.Part{
		{host.ToolCallPart{CallID: "c1", Name: "add", Input: map[string]any{"x": 2.0, "y": 5.0}}},
		{host.TextPart{Value: "7"}},
	}}
	p := NewParticipant(WithParticipantTools(adder(t)))
	sink := &responseSink{}

	res, err := p.Handle(context.Background(), host.ChatRequest{Prompt: "2+5", Model: h}, host.ChatContext{}, sink, host.None)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Metadata["steps"])
	assert.Equal(t, "7", sink.markdown())
	assert.Contains(t, sink.parts, host.ResponsePart(host.ProgressPart{Value: "Running add"}))

	r, ok := toolResult(h.requests[1])
	require.True(t, ok)
	assert.Equal(t, "c1", r.CallID)
	assert.Equal(t, []host.Part{host.TextPart{Value: "7"}}, r.Content)
}

func TestParticipantStopsOnCancellation(t *testing.T) {
	src := host.NewCancellationTokenSource()
	src.Cancel()
	h := &scriptedHost{turns: [][]host.Part{{host.TextPart{Value: "never shown"}}}}
	sink := &responseSink{}

	res, err := NewParticipant().Handle(context.Background(), host.ChatRequest{Prompt: "hi", Model: h}, host.ChatContext{}, sink, src.Token())
	require.NoError(t, err)
	assert.Equal(t, true, res.Metadata["cancelled"])
	assert.Empty(t, sink.parts)
}

func TestParticipantMiddlewareCancel(t *testing.T) {
	canned := "I can't help with that."
	chain := middleware.NewChain(funcMW{id: "guard", fn: func(*middleware.Event) middleware.Decision {
		return middleware.Decision{Cancel: true, ReplaceText: &canned}
	}})
	h := &scriptedHost{}
	sink := &responseSink{}

	p := NewParticipant(WithParticipantMiddleware(chain, nil))
	res, err := p.Handle(context.Background(), host.ChatRequest{Prompt: "hi", Model: h}, host.ChatContext{}, sink, nil)
	require.NoError(t, err)
	assert.Equal(t, true, res.Metadata["cancelled"])
	assert.Equal(t, canned, sink.markdown())
	assert.Empty(t, h.requests)
}

func TestParticipantErrors(t *testing.T) {
	sink := &responseSink{}
	res, err := NewParticipant().Handle(context.Background(), host.ChatRequest{Prompt: " "}, host.ChatContext{}, sink, nil)
	require.ErrorIs(t, err, ErrEmptyInput)
	assert.NotEmpty(t, res.ErrorDetails)

	_, err = NewParticipant().Handle(context.Background(), host.ChatRequest{Prompt: "hi"}, host.ChatContext{}, sink, nil)
	require.Error(t, err, "a request without a model cannot be served")
}

func TestParticipantServesRepeatedPromptFromCache(t *testing.T) {
	chain := middleware.NewChain(localcache.New(time.Minute))
	h := &scriptedHost{turns: [][]host.Part{{host.TextPart{Value: "Paris"}}}}
	p := NewParticipant(WithParticipantMiddleware(chain, nil))

	first := &responseSink{}
	_, err := p.Handle(context.Background(), host.ChatRequest{Prompt: "Capital of France?", Model: h}, host.ChatContext{}, first, nil)
	require.NoError(t, err)
	assert.Equal(t, "Paris", first.markdown())

	second := &responseSink{}
	res, err := p.Handle(context.Background(), host.ChatRequest{Prompt: "capital of  france?", Model: h}, host.ChatContext{}, second, nil)
	require.NoError(t, err)
	assert.Equal(t, true, res.Metadata["cancelled"])
	assert.Equal(t, "Paris", second.markdown())
	assert.Len(t, h.requests, 1)
}

func TestParticipantDispatchesMiddlewareOnEveryStep(t *testing.T) {
	type seen struct {
		name middleware.EventName
		step int
	}
	var events []seen
	chain := middleware.NewChain(
		tokenbudget.BudgetLimiter{},
		funcMW{id: "record", fn: func(e *middleware.Event) middleware.Decision {
			events = append(events, seen{e.Name, e.Step})
			return middleware.Decision{}
		}},
	)
	h := &scriptedHost{turns: [][]host.Part{
		{host.ToolCallPart{CallID: "c1", Name: "add", Input: map[string]any{"x": 3.0, "y": 4.0}}},
		{host.TextPart{Value: "7"}},
	}}
	p := NewParticipant(
		WithParticipantTools(adder(t)),
		WithParticipantMiddleware(chain, map[string]any{"token_budget": 32}),
	)

	res, err := p.Handle(context.Background(), host.ChatRequest{Prompt: "3+4", Model: h}, host.ChatContext{}, &responseSink{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Metadata["steps"])

	require.Len(t, h.requests, 2)
	for _, req := range h.requests {
		assert.Equal(t, 32, req.opts.ModelOptions["maxTokens"])
	}
	assert.Equal(t, []seen{
		{middleware.EventBeforeLLMRequest, 0},
		{middleware.EventBeforeLLMRequest, 1},
		{middleware.EventAfterLLMResponse, 1},
	}, events)
}

func TestParticipantReportsRewrittenReply(t *testing.T) {
	polite := "Hello there!"
	chain := middleware.NewChain(funcMW{id: "polite", fn: func(e *middleware.Event) middleware.Decision {
		if e.Name != middleware.EventAfterLLMResponse {
			return middleware.Decision{}
		}
		return middleware.Decision{ReplaceText: &polite}
	}})
	h := &scriptedHost{turns: [][]host.Part{{host.TextPart{Value: "hey"}}}}
	sink := &responseSink{}

	res, err := NewParticipant(WithParticipantMiddleware(chain, nil)).Handle(context.Background(), host.ChatRequest{Prompt: "hi", Model: h}, host.ChatContext{}, sink, nil)
	require.NoError(t, err)
	assert.Equal(t, "hey", sink.markdown())
	assert.Equal(t, polite, res.Metadata["reply"])
}
