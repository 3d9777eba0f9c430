package convert

import (
	"encoding/json"
	"fmt"
	"strings"

	"lmbridge/internal/host"

	"github.com/tmc/langchaingo/llms"
)

// Message converts one generic message to exactly one host message.
func Message(m llms.MessageContent) (host.ChatMessage, error) {
	switch m.Role {
	case llms.ChatMessageTypeAI:
		calls := toolCalls(m.Parts)
		if len(calls) > 0 {
			parts := make([]host.Part, 0, len(calls))
			for _, tc := range calls {
				p, err := ToolCallPart(tc)
				if err != nil {
					return host.ChatMessage{}, err
				}
				parts = append(parts, p)
			}
			return host.AssistantMessage(parts, ""), nil
		}
		parts, err := TextParts(m.Parts)
		if err != nil {
			return host.ChatMessage{}, err
		}
		return host.AssistantMessage(parts, ""), nil

	case llms.ChatMessageTypeHuman, llms.ChatMessageTypeSystem:
		parts, err := TextParts(m.Parts)
		if err != nil {
			return host.ChatMessage{}, err
		}
		return host.UserMessage(parts, ""), nil

	case llms.ChatMessageTypeTool:
		parts := make([]host.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			resp, ok := p.(llms.ToolCallResponse)
			if !ok {
				return host.ChatMessage{}, fmt.Errorf("%w: %T in tool message", ErrUnsupportedContentBlock, p)
			}
			parts = append(parts, host.ToolResultPart{
				CallID:  resp.ToolCallID,
				Content: []host.Part{host.TextPart{Value: resp.Content}},
			})
		}
		return host.UserMessage(parts, toolName(m.Parts)), nil

	default:
		return host.ChatMessage{}, fmt.Errorf("%w: %q", ErrUnsupportedMessageType, m.Role)
	}
}

// Messages converts a whole conversation, failing on the first bad message.
func Messages(ms []llms.MessageContent) ([]host.ChatMessage, error) {
	out := make([]host.ChatMessage, 0, len(ms))
	for i, m := range ms {
		hm, err := Message(m)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, hm)
	}
	return out, nil
}

// ToolCallPart maps a generic tool call to a host tool-call part. The
// arguments string is decoded into the structured input the host expects.
func ToolCallPart(tc llms.ToolCall) (host.ToolCallPart, error) {
	var name, args string
	if tc.FunctionCall != nil {
		name = tc.FunctionCall.Name
		args = tc.FunctionCall.Arguments
	}
	input, err := DecodeArguments(args)
	if err != nil {
		return host.ToolCallPart{}, fmt.Errorf("tool call %q: %w", name, err)
	}
	return host.ToolCallPart{CallID: tc.ID, Name: name, Input: input}, nil
}

// DecodeArguments parses a JSON object of tool arguments. An empty string is
// an empty object.
func DecodeArguments(args string) (map[string]any, error) {
	input := map[string]any{}
	if strings.TrimSpace(args) == "" {
		return input, nil
	}
	if err := json.Unmarshal([]byte(args), &input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToolArguments, err)
	}
	return input, nil
}

// EncodeArguments is the inverse of DecodeArguments. A nil input is "{}".
func EncodeArguments(input map[string]any) (string, error) {
	if input == nil {
		return "{}", nil
	}
	b, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnencodableToolArguments, err)
	}
	return string(b), nil
}

func toolCalls(parts []llms.ContentPart) []llms.ToolCall {
	var out []llms.ToolCall
	for _, p := range parts {
		if tc, ok := p.(llms.ToolCall); ok {
			out = append(out, tc)
		}
	}
	return out
}

func toolName(parts []llms.ContentPart) string {
	for _, p := range parts {
		if resp, ok := p.(llms.ToolCallResponse); ok && resp.Name != "" {
			return resp.Name
		}
	}
	return ""
}
