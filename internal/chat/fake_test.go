package chat

import (
	"context"
	"strconv"
	"testing"

	"lmbridge/internal/host"
	"lmbridge/internal/tools"

	"github.com/stretchr/testify/require"
)

// scriptedHost answers each request with the next scripted turn. Once the
// script runs out it repeats the last turn.
type scriptedHost struct {
	turns    [][]host.Part
	requests []sentRequest
}

type sentRequest struct {
	messages []host.ChatMessage
	opts     host.RequestOptions
}

func (h *scriptedHost) SendRequest(_ context.Context, messages []host.ChatMessage, opts host.RequestOptions, _ host.CancellationToken) (*host.ChatResponse, error) {
	h.requests = append(h.requests, sentRequest{messages: messages, opts: opts})
	i := min(len(h.requests), len(h.turns)) - 1
	return &host.ChatResponse{Stream: host.StreamOf(h.turns[i]...)}, nil
}

type responseSink struct {
	parts []host.ResponsePart
}

func (s *responseSink) Push(p host.ResponsePart) { s.parts = append(s.parts, p) }

func (s *responseSink) markdown() string {
	var out string
	for _, p := range s.parts {
		if md, ok := p.(host.MarkdownPart); ok {
			out += md.Value.Value
		}
	}
	return out
}

type addArgs struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func adder(t *testing.T) *tools.Tool {
	t.Helper()
	tool, err := tools.New("add", "adds two integers", addArgs{}, func(_ context.Context, in map[string]any, _ *tools.RunConfig) (string, error) {
		x, _ := in["x"].(float64)
		y, _ := in["y"].(float64)
		return strconv.Itoa(int(x + y)), nil
	})
	require.NoError(t, err)
	return tool
}

// toolResult finds the first tool result part sent in a request.
func toolResult(req sentRequest) (host.ToolResultPart, bool) {
	for _, m := range req.messages {
		for _, p := range m.Content {
			if r, ok := p.(host.ToolResultPart); ok {
				return r, true
			}
		}
	}
	return host.ToolResultPart{}, false
}
