package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"lmbridge/internal/chatmodel"
	"lmbridge/internal/middleware"
	"lmbridge/internal/tools"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

var (
	ErrEmptyInput    = errors.New("chat: empty input")
	ErrEmptyResponse = errors.New("chat: empty response from model")
	ErrMaxSteps      = errors.New("chat: tool loop did not finish")
	ErrCancelled     = errors.New("chat: canceled by middleware")
)

// Service is a framework-side conversation over a chat model. Each Send runs
// the tool loop: the model is called with the bound tools, requested tools are
// invoked and their results fed back until the model answers in text.
type Service struct {
	model    *chatmodel.ChatModel
	history  []llms.MessageContent
	tools    *toolbox
	mws      *middleware.Chain
	options  middleware.Options
	mwCtx    map[string]any
	maxSteps int
	handler  callbacks.Handler
	logger   *slog.Logger
}

type ServiceOption func(*Service)

func WithMiddlewareChain(chain *middleware.Chain) ServiceOption {
	return func(s *Service) {
		s.mws = chain
	}
}

func WithTools(ts ...*tools.Tool) ServiceOption {
	return func(s *Service) {
		for _, t := range ts {
			s.tools.byName[t.Name()] = t
		}
	}
}

// WithOptions sets the request options bound to the model on every call.
func WithOptions(opts middleware.Options) ServiceOption {
	return func(s *Service) {
		s.options = opts.Clone()
	}
}

// WithMiddlewareContext sets Event.Context for every dispatched event.
func WithMiddlewareContext(mwCtx map[string]any) ServiceOption {
	return func(s *Service) {
		s.mwCtx = mwCtx
	}
}

func WithMaxSteps(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxSteps = n
		}
	}
}

// WithCallbacks receives tool start, end and error events.
func WithCallbacks(h callbacks.Handler) ServiceOption {
	return func(s *Service) {
		s.handler = h
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

func NewService(model *chatmodel.ChatModel, opts ...ServiceOption) *Service {
	s := &Service{
		model:    model,
		history:  make([]llms.MessageContent, 0, 16),
		tools:    newToolbox(nil, slog.Default()),
		options:  middleware.Options{},
		maxSteps: 8,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tools.logger = s.logger
	return s
}

// Send runs one user turn. onToken, if non-nil, receives text as the model
// streams it. History is only updated when the turn completes.
func (s *Service) Send(ctx context.Context, input string, onToken func(string)) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	input, options, stop, err := beforeRequest(ctx, s.mws, input, s.options, s.mwCtx, 0)
	if err != nil {
		return "", err
	}
	if stop != nil {
		return stop.reply()
	}

	turn := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, input)}
	bound, err := s.model.BindTools(s.tools.list(), options)
	if err != nil {
		return "", err
	}
	callOpts := []llms.CallOption{}
	if onToken != nil {
		callOpts = append(callOpts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			onToken(string(chunk))
			return nil
		}))
	}
	cfg := &tools.RunConfig{Callbacks: s.handler}

	for step := 0; step < s.maxSteps; step++ {
		if step > 0 && s.mws != nil {
			_, options, stop, err = beforeRequest(ctx, s.mws, input, options, s.mwCtx, step)
			if err != nil {
				return "", err
			}
			if stop != nil {
				return stop.reply()
			}
			if bound, err = s.model.BindTools(s.tools.list(), options); err != nil {
				return "", err
			}
		}

		resp, err := bound.GenerateContent(ctx, append(s.snapshot(), turn...), callOpts...)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}
		choice := resp.Choices[0]

		if len(choice.ToolCalls) == 0 {
			reply := strings.TrimSpace(choice.Content)
			if reply == "" {
				return "", ErrEmptyResponse
			}
			reply, err = afterResponse(ctx, s.mws, input, reply, s.mwCtx, step)
			if err != nil {
				return "", err
			}
			turn = append(turn, llms.TextParts(llms.ChatMessageTypeAI, reply))
			s.history = append(s.history, turn...)
			return reply, nil
		}

		s.logger.Debug("model requested tools", "step", step, "count", len(choice.ToolCalls))
		turn = append(turn, assistantMessage(choice))
		turn = append(turn, s.tools.runFramework(ctx, choice.ToolCalls, cfg))
	}
	return "", fmt.Errorf("%w after %d steps", ErrMaxSteps, s.maxSteps)
}

// History returns a copy of the committed conversation.
func (s *Service) History() []llms.MessageContent {
	return s.snapshot()
}

func (s *Service) snapshot() []llms.MessageContent {
	out := make([]llms.MessageContent, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Service) Clear() {
	s.history = s.history[:0]
}

// stopped is a before-request cancellation. A replacement text, if any, is
// returned to the user in place of a model reply.
type stopped struct {
	text   string
	reason string
}

func (st *stopped) reply() (string, error) {
	if strings.TrimSpace(st.text) != "" {
		return st.text, nil
	}
	return "", cancelError(st.reason)
}

func cancelError(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %s", ErrCancelled, reason)
}

func beforeRequest(ctx context.Context, chain *middleware.Chain, input string, opts middleware.Options, mwCtx map[string]any, step int) (string, middleware.Options, *stopped, error) {
	if chain == nil {
		return input, opts, nil, nil
	}
	e := &middleware.Event{
		Name:     middleware.EventBeforeLLMRequest,
		UserText: input,
		Options:  opts.Clone(),
		Step:     step,
		Context:  mwCtx,
	}
	results, err := chain.Dispatch(ctx, e)
	if err != nil {
		return "", nil, nil, err
	}
	updated, canceled := applyTextDecisions(input, results)
	if canceled != nil {
		st := &stopped{reason: canceled.Reason}
		if canceled.ReplaceText != nil {
			st.text = updated
		}
		return "", nil, st, nil
	}
	return updated, e.Options, nil, nil
}

// afterResponse dispatches the model's final text. A middleware may rewrite
// it; a cancel that leaves no text is an error.
func afterResponse(ctx context.Context, chain *middleware.Chain, input, reply string, mwCtx map[string]any, step int) (string, error) {
	if chain == nil {
		return reply, nil
	}
	e := &middleware.Event{
		Name:     middleware.EventAfterLLMResponse,
		UserText: input,
		LLMText:  reply,
		Step:     step,
		Context:  mwCtx,
	}
	results, err := chain.Dispatch(ctx, e)
	if err != nil {
		return "", err
	}
	updated, canceled := applyTextDecisions(reply, results)
	if canceled != nil && strings.TrimSpace(updated) == "" {
		return "", cancelError(canceled.Reason)
	}
	return updated, nil
}

func applyTextDecisions(initial string, results []middleware.DecisionResult) (string, *middleware.Decision) {
	cur := strings.TrimSpace(initial)
	for _, r := range results {
		dec := r.Decision
		if dec.ReplaceText != nil {
			cur = strings.TrimSpace(*dec.ReplaceText)
		}
		if dec.Cancel {
			return cur, &dec
		}
	}
	return cur, nil
}
