package tools

import (
	"context"
	"fmt"

	lctools "github.com/tmc/langchaingo/tools"
)

// StructuredTool is a tool that declares its own argument schema and accepts
// structured input.
type StructuredTool interface {
	Name() string
	Description() string
	Schema() any
	Invoke(ctx context.Context, input map[string]any, cfg *RunConfig) (string, error)
}

// DynamicStructuredTool is a structured tool assembled from plain values.
type DynamicStructuredTool struct {
	Name        string
	Description string
	Schema      any
	Func        Func
}

// stringToolSchema is the schema of a plain langchaingo tool, which takes a
// single string.
var stringToolSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"input": map[string]any{"type": "string"},
	},
}

// Wrap returns t as a *Tool. Accepted: *Tool (returned as is),
// *DynamicStructuredTool, StructuredTool and langchaingo tools.Tool. The new
// adapter calls the original with the forwarded run config.
func Wrap(t any) (*Tool, error) {
	switch v := t.(type) {
	case *Tool:
		return v, nil
	case *DynamicStructuredTool:
		if v == nil {
			break
		}
		return New(v.Name, v.Description, v.Schema, v.Func)
	case StructuredTool:
		return New(v.Name(), v.Description(), v.Schema(), func(ctx context.Context, input map[string]any, cfg *RunConfig) (string, error) {
			return v.Invoke(ctx, input, cfg)
		})
	case lctools.Tool:
		w, err := New(v.Name(), v.Description(), stringToolSchema, func(ctx context.Context, input map[string]any, _ *RunConfig) (string, error) {
			s, _ := input["input"].(string)
			return v.Call(ctx, s)
		})
		if err != nil {
			return nil, err
		}
		w.plainInput = true
		return w, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidToolType, t)
}

// WrapAll wraps every element of ts.
func WrapAll(ts []any) ([]*Tool, error) {
	out := make([]*Tool, 0, len(ts))
	for i, t := range ts {
		w, err := Wrap(t)
		if err != nil {
			return nil, fmt.Errorf("tool %d: %w", i, err)
		}
		out = append(out, w)
	}
	return out, nil
}
