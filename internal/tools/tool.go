// Package tools adapts langchaingo tools and structured tools to the host's
// tool-invocation contract. A *Tool can be called by the framework (Call,
// FrameworkCall) and by the host (InvokeTool, HostCall).
package tools

import (
	"context"
	"errors"
	"fmt"

	"lmbridge/internal/convert"
	"lmbridge/internal/host"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	lctools "github.com/tmc/langchaingo/tools"
)

var (
	ErrInvalidToolType      = errors.New("tools: invalid tool type")
	ErrUnsupportedToolInput = errors.New("tools: unsupported tool input")
	ErrInvalidToolInput     = errors.New("tools: tool input does not match schema")
	ErrInvalidSchema        = errors.New("tools: schema cannot be converted to JSON schema")
)

// RunConfig is forwarded to the wrapped tool on framework invocations.
type RunConfig struct {
	Callbacks callbacks.Handler
	Tags      []string
	Metadata  map[string]any
}

// Func is the callback behind a Tool. cfg is nil for host invocations.
type Func func(ctx context.Context, input map[string]any, cfg *RunConfig) (string, error)

// Tool is a named, schema-described tool usable from both sides of the bridge.
type Tool struct {
	name        string
	description string
	schema      map[string]any
	fn          Func

	// plainInput marks a wrapped string tool: a framework call whose input
	// is not a JSON object is passed through as the "input" argument.
	plainInput bool
}

var (
	_ lctools.Tool           = (*Tool)(nil)
	_ host.LanguageModelTool = (*Tool)(nil)
)

// New builds a Tool. The schema is converted to JSON-schema form once, here,
// and reused for every invocation.
func New(name, description string, schema any, fn Func) (*Tool, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidToolType)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: %s has no callback", ErrInvalidToolType, name)
	}
	s, err := schemaMap(schema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return &Tool{name: name, description: description, schema: s, fn: fn}, nil
}

func (t *Tool) Name() string { return t.name }

func (t *Tool) Description() string { return t.description }

// InputSchema returns the JSON schema derived at construction.
func (t *Tool) InputSchema() map[string]any { return t.schema }

// ChatTool returns the descriptor sent to the host with a request.
func (t *Tool) ChatTool() host.ChatTool {
	return host.ChatTool{Name: t.name, Description: t.description, InputSchema: t.schema}
}

// Invocation selects the calling convention for Invoke.
type Invocation interface {
	isInvocation()
}

// FrameworkCall is the langchaingo convention. Input is a JSON string, an
// llms.ToolCall or a map of arguments.
type FrameworkCall struct {
	Input  any
	Config *RunConfig
}

// HostCall is the host convention. Only Options.Input reaches the callback;
// Token is not propagated into tool execution.
type HostCall struct {
	Options host.ToolInvocationOptions
	Token   host.CancellationToken
}

func (FrameworkCall) isInvocation() {}
func (HostCall) isInvocation()      {}

// Invoke runs the tool. Framework calls return a string, or an
// llms.ToolCallResponse when the input was an llms.ToolCall. Host calls return
// a *host.ToolResult.
func (t *Tool) Invoke(ctx context.Context, inv Invocation) (any, error) {
	switch c := inv.(type) {
	case FrameworkCall:
		return t.invokeFramework(ctx, c)
	case HostCall:
		return t.invokeHost(ctx, c.Options)
	default:
		return nil, fmt.Errorf("%w: invocation %T", ErrUnsupportedToolInput, inv)
	}
}

// Call implements the langchaingo tools.Tool interface. input is a JSON
// object, or any string for a wrapped langchaingo tool.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	out, err := t.invokeFramework(ctx, FrameworkCall{Input: input})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// InvokeTool implements host.LanguageModelTool.
func (t *Tool) InvokeTool(ctx context.Context, opts host.ToolInvocationOptions, _ host.CancellationToken) (*host.ToolResult, error) {
	return t.invokeHost(ctx, opts)
}

func (t *Tool) invokeFramework(ctx context.Context, c FrameworkCall) (any, error) {
	var (
		args   map[string]any
		call   *llms.ToolCall
		rawArg string
		err    error
	)
	switch in := c.Input.(type) {
	case string:
		rawArg = in
		args, err = convert.DecodeArguments(in)
		if err != nil && t.plainInput {
			args, err = map[string]any{"input": in}, nil
		}
	case llms.ToolCall:
		call = &in
		if in.FunctionCall != nil {
			rawArg = in.FunctionCall.Arguments
		}
		args, err = convert.DecodeArguments(rawArg)
	case map[string]any:
		args = in
		rawArg, err = convert.EncodeArguments(in)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedToolInput, c.Input)
	}
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", t.name, err)
	}

	var handler callbacks.Handler
	if c.Config != nil {
		handler = c.Config.Callbacks
	}
	if handler != nil {
		handler.HandleToolStart(ctx, rawArg)
	}
	out, err := t.run(ctx, args, c.Config)
	if err != nil {
		if handler != nil {
			handler.HandleToolError(ctx, err)
		}
		return nil, err
	}
	if handler != nil {
		handler.HandleToolEnd(ctx, out)
	}

	if call != nil {
		return llms.ToolCallResponse{ToolCallID: call.ID, Name: t.name, Content: out}, nil
	}
	return out, nil
}

func (t *Tool) invokeHost(ctx context.Context, opts host.ToolInvocationOptions) (*host.ToolResult, error) {
	out, err := t.run(ctx, opts.Input, nil)
	if err != nil {
		return nil, err
	}
	return &host.ToolResult{Content: []host.Part{host.TextPart{Value: out}}}, nil
}

func (t *Tool) run(ctx context.Context, args map[string]any, cfg *RunConfig) (string, error) {
	if err := validate(args, t.schema); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidToolInput, t.name, err)
	}
	return t.fn(ctx, args, cfg)
}
