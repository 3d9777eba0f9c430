package host

import "context"

// ToolInvocationOptions is what the host passes when it invokes a tool on
// behalf of the model.
type ToolInvocationOptions struct {
	Input               map[string]any
	ToolInvocationToken any
}

type ToolResult struct {
	Content []Part
}

// LanguageModelTool is the host's tool-invocation contract.
type LanguageModelTool interface {
	InvokeTool(ctx context.Context, opts ToolInvocationOptions, token CancellationToken) (*ToolResult, error)
}
