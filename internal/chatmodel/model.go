// Package chatmodel exposes a host language model as a langchaingo llms.Model.
package chatmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"strings"

	"lmbridge/internal/convert"
	"lmbridge/internal/host"
	"lmbridge/internal/tools"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

var (
	ErrNilModel     = errors.New("chatmodel: host model is nil")
	ErrStreamReused = errors.New("chatmodel: stream already consumed")
	ErrInvalidTool  = errors.New("chatmodel: tool definition cannot be sent to the host")
)

// toolResultNotice is appended when a conversation ends with a tool result,
// since the host model otherwise tends to ignore results it did not see the
// user send.
const toolResultNotice = "Above is the result from one or more tool calls. " +
	"The user cannot see the results, so you should use this information to continue the conversation."

// ChatModel adapts a host.LanguageModelChat to llms.Model.
type ChatModel struct {
	model    host.LanguageModelChat
	token    host.CancellationToken
	progress host.ChatResponseStream
	logger   *slog.Logger
	tools    []*tools.Tool
	kwargs   map[string]any

	CallbacksHandler callbacks.Handler
}

var _ llms.Model = (*ChatModel)(nil)

type Option func(*ChatModel)

// WithToken sets the cancellation token sent with every request and polled by
// Stream.
func WithToken(token host.CancellationToken) Option {
	return func(m *ChatModel) { m.token = token }
}

// WithResponseStream sets the sink that receives unrecognized response parts
// as progress messages.
func WithResponseStream(s host.ChatResponseStream) Option {
	return func(m *ChatModel) { m.progress = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *ChatModel) { m.logger = l }
}

func WithCallbacksHandler(h callbacks.Handler) Option {
	return func(m *ChatModel) { m.CallbacksHandler = h }
}

func New(model host.LanguageModelChat, opts ...Option) (*ChatModel, error) {
	if model == nil {
		return nil, ErrNilModel
	}
	m := &ChatModel{
		model:  model,
		token:  host.None,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.token == nil {
		m.token = host.None
	}
	return m, nil
}

// LLMType identifies this model kind in logs.
func (m *ChatModel) LLMType() string { return "editor" }

// BindTools returns a copy of m bound to ts. kwargs are copied with "strict"
// removed, since the host cannot enforce strict schemas; everything else is
// kept unchanged and sent with each request.
func (m *ChatModel) BindTools(ts []any, kwargs map[string]any) (*ChatModel, error) {
	wrapped, err := tools.WrapAll(ts)
	if err != nil {
		return nil, err
	}
	kw := maps.Clone(kwargs)
	delete(kw, "strict")

	bound := *m
	bound.tools = wrapped
	bound.kwargs = kw
	return &bound, nil
}

// Options returns the bound call options.
func (m *ChatModel) Options() map[string]any { return maps.Clone(m.kwargs) }

// Tools returns the bound tools.
func (m *ChatModel) Tools() []*tools.Tool { return m.tools }

func callOptions(options []llms.CallOption) llms.CallOptions {
	// NaN marks temperature and topP as unset, so an explicit zero is kept.
	opts := llms.CallOptions{Temperature: math.NaN(), TopP: math.NaN()}
	for _, o := range options {
		o(&opts)
	}
	return opts
}

// request converts messages and builds the request options shared by the
// single-shot and streaming paths.
func (m *ChatModel) request(messages []llms.MessageContent, opts llms.CallOptions) ([]host.ChatMessage, host.RequestOptions, error) {
	hostMessages, err := convert.Messages(messages)
	if err != nil {
		return nil, host.RequestOptions{}, err
	}

	ro := host.RequestOptions{ModelOptions: map[string]any{}}
	for k, v := range m.kwargs {
		switch k {
		case "justification":
			if s, ok := v.(string); ok {
				ro.Justification = s
				continue
			}
		case "toolMode":
			if mode, ok := v.(host.ToolMode); ok {
				ro.ToolMode = mode
				continue
			}
		}
		ro.ModelOptions[k] = v
	}
	applyCallOptions(&ro, opts)

	ro.Tools, err = m.chatTools(opts.Tools)
	if err != nil {
		return nil, host.RequestOptions{}, err
	}
	if len(ro.ModelOptions) == 0 {
		ro.ModelOptions = nil
	}
	return hostMessages, ro, nil
}

func applyCallOptions(ro *host.RequestOptions, opts llms.CallOptions) {
	if !math.IsNaN(opts.Temperature) {
		ro.ModelOptions["temperature"] = opts.Temperature
	}
	if opts.MaxTokens != 0 {
		ro.ModelOptions["maxTokens"] = opts.MaxTokens
	}
	if !math.IsNaN(opts.TopP) {
		ro.ModelOptions["topP"] = opts.TopP
	}
	if len(opts.StopWords) > 0 {
		ro.ModelOptions["stop"] = opts.StopWords
	}
	if choice, ok := opts.ToolChoice.(string); ok && (choice == "required" || choice == "any") {
		ro.ToolMode = host.ToolModeRequired
	}
}

// chatTools translates bound tools and per-call llms tools to host
// descriptors. Only name, description and input schema are forwarded.
func (m *ChatModel) chatTools(extra []llms.Tool) ([]host.ChatTool, error) {
	if len(m.tools) == 0 && len(extra) == 0 {
		return nil, nil
	}
	out := make([]host.ChatTool, 0, len(m.tools)+len(extra))
	seen := make(map[string]struct{}, cap(out))
	for _, t := range m.tools {
		out = append(out, t.ChatTool())
		seen[t.Name()] = struct{}{}
	}
	for _, t := range extra {
		if t.Function == nil {
			continue
		}
		name := strings.TrimSpace(t.Function.Name)
		if _, dup := seen[name]; dup {
			continue
		}
		schema, err := parametersMap(t.Function.Parameters)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTool, name, err)
		}
		out = append(out, host.ChatTool{Name: name, Description: t.Function.Description, InputSchema: schema})
		seen[name] = struct{}{}
	}
	return out, nil
}

func parametersMap(params any) (map[string]any, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return p, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
