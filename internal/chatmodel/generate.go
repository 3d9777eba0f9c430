package chatmodel

import (
	"context"
	"fmt"
	"strings"

	"lmbridge/internal/convert"
	"lmbridge/internal/host"

	"github.com/tmc/langchaingo/llms"
)

// GenerateContent sends one request to the host model and drains the whole
// response stream into a single choice. Text tokens are passed to the
// streaming func and callbacks handler as they arrive.
//
// Unlike Stream, the response is drained even if the token is cancelled.
func (m *ChatModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.CallbacksHandler != nil {
		m.CallbacksHandler.HandleLLMGenerateContentStart(ctx, messages)
	}
	resp, err := m.generate(ctx, messages, callOptions(options))
	if err != nil {
		if m.CallbacksHandler != nil {
			m.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return nil, err
	}
	if m.CallbacksHandler != nil {
		m.CallbacksHandler.HandleLLMGenerateContentEnd(ctx, resp)
	}
	return resp, nil
}

// Call implements the single-prompt form of llms.Model.
func (m *ChatModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *ChatModel) generate(ctx context.Context, messages []llms.MessageContent, opts llms.CallOptions) (*llms.ContentResponse, error) {
	hostMessages, ro, err := m.request(messages, opts)
	if err != nil {
		return nil, err
	}
	if n := len(messages); n > 0 && messages[n-1].Role == llms.ChatMessageTypeTool {
		hostMessages = append(hostMessages, host.UserText(toolResultNotice))
	}

	resp, err := m.model.SendRequest(ctx, hostMessages, ro, m.token)
	if err != nil {
		return nil, fmt.Errorf("chatmodel: send request: %w", err)
	}

	var (
		text  strings.Builder
		calls []llms.ToolCall
	)
	for part, err := range resp.Stream {
		if err != nil {
			return nil, fmt.Errorf("chatmodel: response stream: %w", err)
		}
		switch p := part.(type) {
		case host.TextPart:
			text.WriteString(p.Value)
			if err := m.emitToken(ctx, opts, p.Value); err != nil {
				return nil, err
			}
		case host.ToolCallPart:
			args, err := convert.EncodeArguments(p.Input)
			if err != nil {
				return nil, fmt.Errorf("chatmodel: tool call %q: %w", p.Name, err)
			}
			calls = append(calls, llms.ToolCall{
				ID:   p.CallID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      p.Name,
					Arguments: args,
				},
			})
		default:
			m.logger.Warn("unknown part type received from model stream", "type", fmt.Sprintf("%T", part))
			if m.progress != nil {
				m.progress.Push(host.ProgressPart{Value: describePart(part)})
			}
		}
	}

	choice := &llms.ContentChoice{
		Content:   text.String(),
		ToolCalls: calls,
	}
	if len(calls) > 0 {
		choice.StopReason = "tool_calls"
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}

// emitToken reports one text increment. A streaming func error aborts the
// request, as it does for langchaingo providers.
func (m *ChatModel) emitToken(ctx context.Context, opts llms.CallOptions, token string) error {
	if m.CallbacksHandler != nil {
		m.CallbacksHandler.HandleStreamingFunc(ctx, []byte(token))
	}
	if opts.StreamingFunc != nil {
		return opts.StreamingFunc(ctx, []byte(token))
	}
	return nil
}

func describePart(part host.Part) string {
	switch p := part.(type) {
	case fmt.Stringer:
		return p.String()
	case host.DataPart:
		return fmt.Sprintf("%s (%d bytes)", p.MIMEType, len(p.Data))
	default:
		return fmt.Sprintf("%+v", part)
	}
}
