package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"lmbridge/internal/convert"
	"lmbridge/internal/host"
	"lmbridge/internal/tools"

	"github.com/tmc/langchaingo/llms"
)

// toolbox resolves and runs the tools a model asked for. A failed call is
// reported back to the model as the tool's output instead of ending the turn.
type toolbox struct {
	byName map[string]*tools.Tool
	logger *slog.Logger
}

func newToolbox(ts []*tools.Tool, logger *slog.Logger) *toolbox {
	b := &toolbox{byName: make(map[string]*tools.Tool, len(ts)), logger: logger}
	for _, t := range ts {
		b.byName[t.Name()] = t
	}
	return b
}

// list returns the tools sorted by name, as the any slice BindTools expects.
func (b *toolbox) list() []any {
	names := make([]string, 0, len(b.byName))
	for n := range b.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]any, 0, len(names))
	for _, n := range names {
		out = append(out, b.byName[n])
	}
	return out
}

// runFramework invokes each call with the framework convention and returns
// the tool message answering them.
func (b *toolbox) runFramework(ctx context.Context, calls []llms.ToolCall, cfg *tools.RunConfig) llms.MessageContent {
	msg := llms.MessageContent{Role: llms.ChatMessageTypeTool}
	for _, call := range calls {
		name := callName(call)
		t, ok := b.byName[name]
		if !ok {
			msg.Parts = append(msg.Parts, b.failed(call, fmt.Errorf("tool not found: %s", name)))
			continue
		}
		out, err := t.Invoke(ctx, tools.FrameworkCall{Input: call, Config: cfg})
		if err != nil {
			msg.Parts = append(msg.Parts, b.failed(call, err))
			continue
		}
		msg.Parts = append(msg.Parts, out.(llms.ToolCallResponse))
	}
	return msg
}

// runHost invokes each call with the host convention, the way an editor
// would call a registered language-model tool.
func (b *toolbox) runHost(ctx context.Context, calls []llms.ToolCall, token host.CancellationToken) llms.MessageContent {
	msg := llms.MessageContent{Role: llms.ChatMessageTypeTool}
	for _, call := range calls {
		name := callName(call)
		t, ok := b.byName[name]
		if !ok {
			msg.Parts = append(msg.Parts, b.failed(call, fmt.Errorf("tool not found: %s", name)))
			continue
		}
		var raw string
		if call.FunctionCall != nil {
			raw = call.FunctionCall.Arguments
		}
		input, err := convert.DecodeArguments(raw)
		if err != nil {
			msg.Parts = append(msg.Parts, b.failed(call, err))
			continue
		}
		out, err := t.Invoke(ctx, tools.HostCall{
			Options: host.ToolInvocationOptions{Input: input},
			Token:   token,
		})
		if err != nil {
			msg.Parts = append(msg.Parts, b.failed(call, err))
			continue
		}
		msg.Parts = append(msg.Parts, llms.ToolCallResponse{
			ToolCallID: call.ID,
			Name:       name,
			Content:    resultText(out.(*host.ToolResult)),
		})
	}
	return msg
}

func (b *toolbox) failed(call llms.ToolCall, err error) llms.ToolCallResponse {
	b.logger.Warn("tool call failed", "tool", callName(call), "id", call.ID, "err", err)
	return llms.ToolCallResponse{
		ToolCallID: call.ID,
		Name:       callName(call),
		Content:    "Error: " + err.Error(),
	}
}

func callName(call llms.ToolCall) string {
	if call.FunctionCall == nil {
		return ""
	}
	return call.FunctionCall.Name
}

func resultText(res *host.ToolResult) string {
	if res == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range res.Content {
		if t, ok := p.(host.TextPart); ok {
			b.WriteString(t.Value)
		}
	}
	return b.String()
}

// assistantMessage records a model turn that requested tool calls.
func assistantMessage(choice *llms.ContentChoice) llms.MessageContent {
	msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	if choice.Content != "" {
		msg.Parts = append(msg.Parts, llms.TextPart(choice.Content))
	}
	for _, tc := range choice.ToolCalls {
		msg.Parts = append(msg.Parts, tc)
	}
	return msg
}
