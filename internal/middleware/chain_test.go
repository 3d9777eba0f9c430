package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMW struct {
	id       string
	priority int
	cancel   bool
	seen     *[]string
}

func (m testMW) ID() string    { return m.id }
func (m testMW) Priority() int { return m.priority }
func (m testMW) OnEvent(_ context.Context, _ *Event) (Decision, error) {
	*m.seen = append(*m.seen, m.id)
	return Decision{Cancel: m.cancel}, nil
}

type conditionalTestMW struct {
	testMW
	enabled bool
}

func (m conditionalTestMW) ShouldLoad(_ context.Context, _ *Event) bool { return m.enabled }

type funcMW struct {
	id string
	fn func(e *Event) (Decision, error)
}

func (m funcMW) ID() string    { return m.id }
func (m funcMW) Priority() int { return 0 }
func (m funcMW) OnEvent(_ context.Context, e *Event) (Decision, error) {
	return m.fn(e)
}

func TestChainPriorityAndCancel(t *testing.T) {
	seen := []string{}
	c := NewChain(
		testMW{id: "low", priority: 1, seen: &seen},
		testMW{id: "high", priority: 10, cancel: true, seen: &seen},
		testMW{id: "mid", priority: 5, seen: &seen},
	)

	_, err := c.Dispatch(context.Background(), &Event{Name: EventBeforeLLMRequest})
	require.NoError(t, err)
	assert.Equal(t, []string{"high"}, seen, "cancel stops the chain")
}

func TestChainConditionalMiddlewareSkip(t *testing.T) {
	seen := []string{}
	c := NewChain(
		conditionalTestMW{testMW: testMW{id: "off", priority: 10, seen: &seen}, enabled: false},
		conditionalTestMW{testMW: testMW{id: "on", priority: 5, seen: &seen}, enabled: true},
	)

	results, err := c.Dispatch(context.Background(), &Event{Name: EventBeforeLLMRequest})
	require.NoError(t, err)
	assert.Equal(t, []string{"on"}, seen)
	require.Len(t, results, 2)
	assert.Equal(t, "off", results[0].MiddlewareID)
	assert.NotEmpty(t, results[0].Decision.Reason)
}

func TestChainStableOrderOnEqualPriority(t *testing.T) {
	seen := []string{}
	c := NewChain(
		testMW{id: "a", priority: 5, seen: &seen},
		testMW{id: "b", priority: 5, seen: &seen},
		testMW{id: "c", priority: 5, seen: &seen},
	)

	_, err := c.Dispatch(context.Background(), &Event{Name: EventBeforeLLMRequest})
	require.NoError(t, err)
	assert.Equal(t, "a,b,c", strings.Join(seen, ","))
}

func TestChainAppliesOverridesAndReplacements(t *testing.T) {
	shout := "HELLO"
	c := NewChain(
		funcMW{id: "opts", fn: func(e *Event) (Decision, error) {
			o := e.Options.Clone()
			o["maxTokens"] = 64
			return Decision{OverrideOptions: o}, nil
		}},
		funcMW{id: "text", fn: func(e *Event) (Decision, error) {
			return Decision{ReplaceText: &shout}, nil
		}},
	)

	orig := Options{"temperature": 0.3}
	e := &Event{Name: EventBeforeLLMRequest, UserText: "hello", Options: orig}
	_, err := c.Dispatch(context.Background(), e)
	require.NoError(t, err)

	assert.Equal(t, "HELLO", e.UserText)
	assert.Equal(t, 64, e.Options.MaxTokens())
	assert.NotContains(t, orig, "maxTokens")
}

func TestChainWrapsMiddlewareError(t *testing.T) {
	boom := errors.New("boom")
	c := NewChain(funcMW{id: "bad", fn: func(*Event) (Decision, error) { return Decision{}, boom }})

	_, err := c.Dispatch(context.Background(), &Event{Name: EventAfterLLMResponse})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "middleware bad")
}

func TestNilChainDispatchesNothing(t *testing.T) {
	var c *Chain
	results, err := c.Dispatch(context.Background(), &Event{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChainDebugLog(t *testing.T) {
	short := "hi"
	var buf bytes.Buffer
	c := NewChain(funcMW{id: "shrink", fn: func(*Event) (Decision, error) {
		return Decision{ReplaceText: &short, Reason: "shortened"}, nil
	}})
	c.SetDebugWriter(&buf)

	_, err := c.Dispatch(context.Background(), &Event{Name: EventAfterLLMResponse, LLMText: "a much longer reply than this", Step: 2})
	require.NoError(t, err)

	var rec dispatchRecord
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, EventAfterLLMResponse, rec.Event)
	assert.Equal(t, 2, rec.Step)
	assert.Equal(t, "shrink", rec.Middleware)
	assert.Equal(t, outcomeApplied, rec.Outcome)
	assert.Equal(t, "shortened", rec.Reason)
	assert.True(t, rec.TextChanged)
	assert.Greater(t, rec.TokensBefore, rec.TokensAfter)
	assert.Empty(t, rec.OptionsChanged)
}

func TestChainDebugLogOptionsAndOutcomes(t *testing.T) {
	var buf bytes.Buffer
	seen := []string{}
	c := NewChain(
		funcMW{id: "budget", fn: func(e *Event) (Decision, error) {
			o := e.Options.Clone()
			o["maxTokens"] = 32
			delete(o, "stop")
			return Decision{OverrideOptions: o}, nil
		}},
		conditionalTestMW{testMW: testMW{id: "off", priority: -1, seen: &seen}},
		testMW{id: "deny", priority: -2, cancel: true, seen: &seen},
	)
	c.SetDebugWriter(&buf)

	_, err := c.Dispatch(context.Background(), &Event{
		Name:     EventBeforeLLMRequest,
		UserText: "hello",
		Options:  Options{"temperature": 0.1, "stop": []string{"END"}},
	})
	require.NoError(t, err)

	var recs []dispatchRecord
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var r dispatchRecord
		require.NoError(t, dec.Decode(&r))
		recs = append(recs, r)
	}
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"maxTokens", "stop"}, recs[0].OptionsChanged)
	assert.False(t, recs[0].TextChanged)
	assert.Equal(t, outcomeSkipped, recs[1].Outcome)
	assert.Equal(t, outcomeCancelled, recs[2].Outcome)
}

func TestChainDebugLogDisabled(t *testing.T) {
	var buf bytes.Buffer
	seen := []string{}
	c := NewChain(testMW{id: "a", seen: &seen})
	c.SetDebugWriter(&buf)
	c.SetDebugWriter(nil)

	_, err := c.Dispatch(context.Background(), &Event{Name: EventBeforeLLMRequest})
	require.NoError(t, err)
	assert.Zero(t, buf.Len())
}

func TestChangedKeys(t *testing.T) {
	a := Options{"temperature": 0.1, "stop": []string{"x"}, "same": 1}
	b := Options{"temperature": 0.2, "stop": []string{"x"}, "same": 1, "maxTokens": 5}
	assert.Equal(t, []string{"maxTokens", "temperature"}, changedKeys(a, b))
	assert.Empty(t, changedKeys(nil, nil))
}

func TestNewChainFromRegistryFiltersDisabled(t *testing.T) {
	registryMu.Lock()
	saved := registry
	registry = nil
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		registry = saved
		registryMu.Unlock()
	})

	seen := []string{}
	Register(testMW{id: "keep", priority: 1, seen: &seen})
	Register(testMW{id: "drop", priority: 2, seen: &seen})

	c := NewChainFromRegistry(nil, "drop")
	require.NotNil(t, c)
	require.Len(t, c.List(), 1)
	assert.Equal(t, "keep", c.List()[0].ID())

	assert.Nil(t, NewChainFromRegistry(nil, "keep", "drop"))
}
