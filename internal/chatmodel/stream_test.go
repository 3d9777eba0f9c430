package chatmodel

import (
	"context"
	"testing"

	"lmbridge/internal/host"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

var hi = []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "hi")}

func collect(t *testing.T, m *ChatModel, opts ...llms.CallOption) ([]Chunk, error) {
	t.Helper()
	var chunks []Chunk
	for c, err := range m.Stream(context.Background(), hi, opts...) {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func TestStreamTextChunks(t *testing.T) {
	m, err := New(&fakeModel{parts: []host.Part{host.TextPart{Value: "Hel"}, host.TextPart{Value: "lo"}}})
	require.NoError(t, err)

	chunks, err := collect(t, m)
	require.NoError(t, err)
	assert.Equal(t, []Chunk{{Text: "Hel"}, {Text: "lo"}}, chunks)
}

func TestStreamToolCallArgsAreJSON(t *testing.T) {
	m, err := New(&fakeModel{parts: []host.Part{
		host.ToolCallPart{CallID: "a", Name: "one", Input: map[string]any{"x": 1}},
		host.DataPart{MIMEType: "text/plain"},
		host.ToolCallPart{CallID: "b", Name: "two", Input: map[string]any{}},
	}})
	require.NoError(t, err)

	chunks, err := collect(t, m)
	require.NoError(t, err)
	assert.Equal(t, []Chunk{
		{ToolCallChunks: []ToolCallChunk{{Index: 0, ID: "a", Name: "one", Args: `{"x":1}`}}},
		{ToolCallChunks: []ToolCallChunk{{Index: 1, ID: "b", Name: "two", Args: `{}`}}},
	}, chunks)

	choice := Aggregate(chunks)
	require.Len(t, choice.ToolCalls, 2)
	assert.Equal(t, `{"x":1}`, choice.ToolCalls[0].FunctionCall.Arguments)
	assert.Equal(t, "tool_calls", choice.StopReason)
}

func TestStreamDropsUnknownPartsWithoutProgress(t *testing.T) {
	sink := &progressSink{}
	m, err := New(&fakeModel{parts: []host.Part{
		host.TextPart{Value: "see "},
		host.DataPart{MIMEType: "image/png", Data: []byte{0x89}},
		host.TextPart{Value: "chart"},
	}}, WithResponseStream(sink))
	require.NoError(t, err)

	chunks, err := collect(t, m)
	require.NoError(t, err)
	assert.Equal(t, []Chunk{{Text: "see "}, {Text: "chart"}}, chunks)
	assert.Empty(t, sink.parts, "only the single-shot path reports progress")
}

func TestStreamCancelledBeforeFirstPart(t *testing.T) {
	src := host.NewCancellationTokenSource()
	src.Cancel()
	fm := &fakeModel{parts: []host.Part{host.TextPart{Value: "a"}, host.TextPart{Value: "b"}}}
	m, err := New(fm, WithToken(src))
	require.NoError(t, err)

	chunks, err := collect(t, m)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Equal(t, 1, fm.pulled)
}

func TestStreamStopsWhenCancelledMidway(t *testing.T) {
	src := host.NewCancellationTokenSource()
	fm := &fakeModel{parts: []host.Part{
		host.TextPart{Value: "a"},
		host.TextPart{Value: "b"},
		host.TextPart{Value: "c"},
		host.TextPart{Value: "d"},
	}}
	m, err := New(&cancelOnPull{fakeModel: fm, src: src, n: 2}, WithToken(src))
	require.NoError(t, err)

	chunks, err := collect(t, m)
	require.NoError(t, err)
	assert.Equal(t, []Chunk{{Text: "a"}}, chunks)
	assert.Equal(t, 2, fm.pulled)
}

func TestStreamTokensReachStreamingFunc(t *testing.T) {
	m, err := New(&fakeModel{parts: []host.Part{host.TextPart{Value: "x"}, host.TextPart{Value: "y"}}})
	require.NoError(t, err)

	var got []string
	_, err = collect(t, m, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		got = append(got, string(chunk))
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got)
}

func TestStreamErrors(t *testing.T) {
	m, err := New(&fakeModel{sendErr: errBoom})
	require.NoError(t, err)
	_, err = collect(t, m)
	require.ErrorIs(t, err, errBoom)

	m, err = New(&fakeModel{parts: []host.Part{host.TextPart{Value: "a"}}, midErr: errBoom})
	require.NoError(t, err)
	chunks, err := collect(t, m)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []Chunk{{Text: "a"}}, chunks)
}

func TestStreamCannotBeReused(t *testing.T) {
	m, err := New(&fakeModel{parts: []host.Part{host.TextPart{Value: "a"}}})
	require.NoError(t, err)

	seq := m.Stream(context.Background(), hi)
	for range seq {
	}
	for _, err := range seq {
		require.ErrorIs(t, err, ErrStreamReused)
	}
}

func TestStreamEarlyBreakLeavesRestUnread(t *testing.T) {
	fm := &fakeModel{parts: []host.Part{host.TextPart{Value: "a"}, host.TextPart{Value: "b"}, host.TextPart{Value: "c"}}}
	m, err := New(fm)
	require.NoError(t, err)

	for c, err := range m.Stream(context.Background(), hi) {
		require.NoError(t, err)
		assert.Equal(t, "a", c.Text)
		break
	}
	assert.Equal(t, 1, fm.pulled)
}
