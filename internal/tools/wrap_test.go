package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upperTool struct{}

func (upperTool) Name() string        { return "upper" }
func (upperTool) Description() string { return "upper-cases input" }
func (upperTool) Call(_ context.Context, input string) (string, error) {
	return strings.ToUpper(input), nil
}

type greetTool struct {
	gotCfg *RunConfig
}

func (*greetTool) Name() string        { return "greet" }
func (*greetTool) Description() string { return "greets someone" }
func (*greetTool) Schema() any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
		"required":   []string{"name"},
	}
}
func (g *greetTool) Invoke(_ context.Context, input map[string]any, cfg *RunConfig) (string, error) {
	g.gotCfg = cfg
	return "hello " + input["name"].(string), nil
}

func TestWrapPassesThroughAdaptedTool(t *testing.T) {
	tool, _ := recordingTool(t, nil)
	got, err := Wrap(tool)
	require.NoError(t, err)
	assert.Same(t, tool, got)
}

func TestWrapStructuredToolForwardsConfig(t *testing.T) {
	g := &greetTool{}
	tool, err := Wrap(g)
	require.NoError(t, err)
	assert.Equal(t, "greet", tool.Name())
	assert.Equal(t, []any{"name"}, tool.InputSchema()["required"])

	cfg := &RunConfig{Metadata: map[string]any{"run": "1"}}
	out, err := tool.Invoke(context.Background(), FrameworkCall{Input: map[string]any{"name": "ada"}, Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, "hello ada", out)
	assert.Same(t, cfg, g.gotCfg)
}

func TestWrapDynamicStructuredTool(t *testing.T) {
	tool, err := Wrap(&DynamicStructuredTool{
		Name:        "echo",
		Description: "echoes",
		Func: func(_ context.Context, input map[string]any, _ *RunConfig) (string, error) {
			return input["v"].(string), nil
		},
	})
	require.NoError(t, err)
	out, err := tool.Call(context.Background(), `{"v":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestWrapLangchainTool(t *testing.T) {
	tool, err := Wrap(upperTool{})
	require.NoError(t, err)
	assert.Equal(t, "upper", tool.Name())
	out, err := tool.Call(context.Background(), `{"input":"shout"}`)
	require.NoError(t, err)
	assert.Equal(t, "SHOUT", out)
}

func TestWrapLangchainToolAcceptsPlainString(t *testing.T) {
	tool, err := Wrap(upperTool{})
	require.NoError(t, err)

	for in, want := range map[string]string{
		"2+2":      "2+2",
		"go fast":  "GO FAST",
		`"quoted"`: `"QUOTED"`,
	} {
		out, err := tool.Call(context.Background(), in)
		require.NoError(t, err, in)
		assert.Equal(t, want, out)
	}
}

func TestStructuredToolStillRequiresJSONObject(t *testing.T) {
	tool, err := Wrap(&greetTool{})
	require.NoError(t, err)
	_, err = tool.Call(context.Background(), "ada")
	require.Error(t, err)
}

func TestWrapRejectsOtherShapes(t *testing.T) {
	for _, v := range []any{nil, "tool", 3, (*DynamicStructuredTool)(nil)} {
		_, err := Wrap(v)
		require.ErrorIs(t, err, ErrInvalidToolType)
	}
}

func TestWrapAll(t *testing.T) {
	ts, err := WrapAll([]any{upperTool{}, &greetTool{}})
	require.NoError(t, err)
	require.Len(t, ts, 2)

	_, err = WrapAll([]any{upperTool{}, 7})
	require.ErrorIs(t, err, ErrInvalidToolType)
	assert.Contains(t, err.Error(), "tool 1")
}
