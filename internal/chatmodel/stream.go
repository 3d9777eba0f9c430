package chatmodel

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"

	"lmbridge/internal/host"

	"github.com/tmc/langchaingo/llms"
)

// Chunk is one increment of a streamed response: either text or a tool call.
type Chunk struct {
	Text           string
	ToolCallChunks []ToolCallChunk
}

// ToolCallChunk is a tool call as emitted while streaming. Args is the JSON
// encoding of the call's input.
type ToolCallChunk struct {
	Index int
	ID    string
	Name  string
	Args  string
}

// Stream sends one request and yields a chunk per host response part. The
// sequence stops without error once the model's token reports cancellation,
// leaving the rest of the host stream unread. Unrecognized parts are logged and
// dropped. The returned sequence can be ranged over once.
func (m *ChatModel) Stream(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) iter.Seq2[Chunk, error] {
	var used atomic.Bool
	return func(yield func(Chunk, error) bool) {
		if used.Swap(true) {
			yield(Chunk{}, ErrStreamReused)
			return
		}
		opts := callOptions(options)
		hostMessages, ro, err := m.request(messages, opts)
		if err != nil {
			yield(Chunk{}, err)
			return
		}
		resp, err := m.model.SendRequest(ctx, hostMessages, ro, m.token)
		if err != nil {
			yield(Chunk{}, fmt.Errorf("chatmodel: send request: %w", err))
			return
		}

		index := 0
		for part, err := range resp.Stream {
			if m.token.IsCancellationRequested() {
				return
			}
			if err != nil {
				yield(Chunk{}, fmt.Errorf("chatmodel: response stream: %w", err))
				return
			}
			switch p := part.(type) {
			case host.TextPart:
				if err := m.emitToken(ctx, opts, p.Value); err != nil {
					yield(Chunk{}, err)
					return
				}
				if !yield(Chunk{Text: p.Value}, nil) {
					return
				}
			case host.ToolCallPart:
				args, err := json.Marshal(p.Input)
				if err != nil {
					yield(Chunk{}, fmt.Errorf("chatmodel: encode tool call %s: %w", p.Name, err))
					return
				}
				chunk := Chunk{ToolCallChunks: []ToolCallChunk{{
					Index: index,
					ID:    p.CallID,
					Name:  p.Name,
					Args:  string(args),
				}}}
				index++
				if !yield(chunk, nil) {
					return
				}
			default:
				m.logger.Warn("unknown part type received from model stream", "type", fmt.Sprintf("%T", part))
			}
		}
	}
}

// Aggregate folds chunks into a single choice, the streaming counterpart of a
// GenerateContent result.
func Aggregate(chunks []Chunk) *llms.ContentChoice {
	var text strings.Builder
	var calls []llms.ToolCall
	for _, c := range chunks {
		text.WriteString(c.Text)
		for _, tc := range c.ToolCallChunks {
			calls = append(calls, llms.ToolCall{
				ID:           tc.ID,
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: tc.Name, Arguments: tc.Args},
			})
		}
	}
	choice := &llms.ContentChoice{Content: text.String(), ToolCalls: calls}
	if len(calls) > 0 {
		choice.StopReason = "tool_calls"
	}
	return choice
}
