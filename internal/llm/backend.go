package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"lmbridge/internal/convert"
	"lmbridge/internal/host"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

var (
	errStopped   = errors.New("llm: consumer stopped reading")
	errCancelled = errors.New("llm: cancellation requested")
)

// Backend serves host chat requests from a langchaingo model. Text is yielded
// as the provider streams it; tool calls follow once the response completes.
type Backend struct {
	client llms.Model
	model  string
	logger *slog.Logger
}

var _ host.LanguageModelChat = (*Backend)(nil)

func NewBackend(client llms.Model, model string, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{client: client, model: model, logger: logger}
}

func (b *Backend) SendRequest(ctx context.Context, messages []host.ChatMessage, ro host.RequestOptions, token host.CancellationToken) (*host.ChatResponse, error) {
	if token == nil {
		token = host.None
	}
	history, err := toMessageContent(messages)
	if err != nil {
		return nil, err
	}
	opts := b.callOptions(ro)
	withTools := len(ro.Tools) > 0

	return &host.ChatResponse{Stream: func(yield func(host.Part, error) bool) {
		var stopped, streamed bool
		streamOpts := append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if token.IsCancellationRequested() {
				return errCancelled
			}
			if len(chunk) == 0 {
				return nil
			}
			// Some providers report tool-call deltas through the streaming
			// func as JSON. Calls are yielded from the final choice instead.
			if withTools && isToolCallDelta(chunk) {
				return nil
			}
			streamed = true
			if !yield(host.TextPart{Value: string(chunk)}, nil) {
				stopped = true
				return errStopped
			}
			return nil
		}))

		resp, err := b.client.GenerateContent(ctx, history, streamOpts...)
		if stopped {
			return
		}
		if err != nil {
			yield(nil, err)
			return
		}
		if len(resp.Choices) == 0 {
			yield(nil, ErrEmptyResponse)
			return
		}

		choice := resp.Choices[0]
		if !streamed && choice.Content != "" {
			if !yield(host.TextPart{Value: choice.Content}, nil) {
				return
			}
		}
		if len(choice.ToolCalls) > 0 {
			b.logger.Debug("model returned tool calls", "model", b.model, "count", len(choice.ToolCalls))
		}
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			if !yield(toolCallPart(tc), nil) {
				return
			}
		}
	}}, nil
}

func (b *Backend) callOptions(ro host.RequestOptions) []llms.CallOption {
	opts := make([]llms.CallOption, 0, 8)
	if b.model != "" {
		opts = append(opts, llms.WithModel(b.model))
	}
	mo := ro.ModelOptions
	if v, ok := toFloat(mo["temperature"]); ok {
		opts = append(opts, llms.WithTemperature(v))
	}
	if v, ok := toFloat(mo["topP"]); ok {
		opts = append(opts, llms.WithTopP(v))
	}
	if v, ok := toFloat(mo["maxTokens"]); ok && v > 0 {
		opts = append(opts, llms.WithMaxTokens(int(v)))
	}
	if stop, ok := mo["stop"].([]string); ok && len(stop) > 0 {
		opts = append(opts, llms.WithStopWords(stop))
	}
	if len(ro.Tools) > 0 {
		tools := make([]llms.Tool, 0, len(ro.Tools))
		for _, t := range ro.Tools {
			tools = append(tools, llms.Tool{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			})
		}
		opts = append(opts, llms.WithTools(tools))
		if ro.ToolMode == host.ToolModeRequired {
			opts = append(opts, llms.WithToolChoice("required"))
		}
	}
	return opts
}

// toMessageContent maps host messages back to langchaingo messages. A user
// message may carry tool results and text; results are emitted first as a
// tool message so they directly follow the assistant's calls.
func toMessageContent(messages []host.ChatMessage) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case host.RoleUser:
			var results, parts []llms.ContentPart
			for _, p := range m.Content {
				switch x := p.(type) {
				case host.TextPart:
					parts = append(parts, llms.TextPart(x.Value))
				case host.DataPart:
					parts = append(parts, llms.BinaryPart(x.MIMEType, x.Data))
				case host.ToolResultPart:
					results = append(results, llms.ToolCallResponse{
						ToolCallID: x.CallID,
						Name:       m.Name,
						Content:    partsText(x.Content),
					})
				}
			}
			if len(results) > 0 {
				out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeTool, Parts: results})
			}
			if len(parts) > 0 {
				out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})
			}
		case host.RoleAssistant:
			var parts []llms.ContentPart
			for _, p := range m.Content {
				switch x := p.(type) {
				case host.TextPart:
					if x.Value != "" {
						parts = append(parts, llms.TextPart(x.Value))
					}
				case host.ToolCallPart:
					args, err := convert.EncodeArguments(x.Input)
					if err != nil {
						return nil, fmt.Errorf("llm: tool call %q: %w", x.Name, err)
					}
					parts = append(parts, llms.ToolCall{
						ID:   x.CallID,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      x.Name,
							Arguments: args,
						},
					})
				}
			}
			// Some providers reject empty assistant turns.
			if len(parts) == 0 {
				parts = append(parts, llms.TextPart(" "))
			}
			out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		}
	}
	return out, nil
}

// isToolCallDelta reports whether a streamed chunk is a JSON array of tool
// call deltas rather than model text.
func isToolCallDelta(chunk []byte) bool {
	trimmed := bytes.TrimSpace(chunk)
	if !bytes.HasPrefix(trimmed, []byte("[{")) {
		return false
	}
	var deltas []struct {
		Function *json.RawMessage `json:"function"`
	}
	if err := json.Unmarshal(trimmed, &deltas); err != nil || len(deltas) == 0 {
		return false
	}
	for _, d := range deltas {
		if d.Function == nil {
			return false
		}
	}
	return true
}

func toolCallPart(tc llms.ToolCall) host.ToolCallPart {
	id := tc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	return host.ToolCallPart{
		CallID: id,
		Name:   tc.FunctionCall.Name,
		Input:  parseToolArgs(tc.FunctionCall.Arguments),
	}
}

// parseToolArgs decodes provider arguments. Providers occasionally emit
// invalid JSON; the raw text is kept under "raw" so the call still reaches the
// tool and its validation error is visible to the model.
func parseToolArgs(raw string) map[string]any {
	args, err := convert.DecodeArguments(raw)
	if err != nil {
		return map[string]any{"raw": raw}
	}
	return args
}

func partsText(parts []host.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if t, ok := p.(host.TextPart); ok {
			b.WriteString(t.Value)
		}
	}
	return b.String()
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
