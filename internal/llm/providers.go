package llm

import (
	"context"
	"os"

	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

func NewOllama(opts Options) (*Backend, error) {
	var o []ollama.Option
	if opts.Model != "" {
		o = append(o, ollama.WithModel(opts.Model))
	}
	if opts.BaseURL != "" {
		o = append(o, ollama.WithServerURL(opts.BaseURL))
	}
	client, err := ollama.New(o...)
	if err != nil {
		return nil, err
	}
	return NewBackend(client, opts.Model, opts.Logger), nil
}

func NewOpenAI(opts Options) (*Backend, error) {
	o := []openai.Option{
		openai.WithModel(opts.Model),
	}
	if opts.BaseURL != "" {
		o = append(o, openai.WithBaseURL(opts.BaseURL))
	}
	if token := firstNonEmpty(opts.APIKey, os.Getenv("OPENAI_API_KEY")); token != "" {
		o = append(o, openai.WithToken(token))
	}
	client, err := openai.New(o...)
	if err != nil {
		return nil, err
	}
	return NewBackend(client, opts.Model, opts.Logger), nil
}

func NewAnthropic(opts Options) (*Backend, error) {
	o := []anthropic.Option{
		anthropic.WithModel(opts.Model),
	}
	if token := firstNonEmpty(opts.APIKey, os.Getenv("LMBRIDGE_ANTHROPIC_API_KEY"), os.Getenv("ANTHROPIC_API_KEY")); token != "" {
		o = append(o, anthropic.WithToken(token))
	}
	client, err := anthropic.New(o...)
	if err != nil {
		return nil, err
	}
	return NewBackend(client, opts.Model, opts.Logger), nil
}

func NewGemini(opts Options) (*Backend, error) {
	model := opts.Model
	if model == "" {
		model = googleai.DefaultOptions().DefaultModel
	}
	o := []googleai.Option{
		googleai.WithDefaultModel(model),
	}
	if opts.BaseURL != "" {
		o = append(o, googleai.WithRest())
	}
	if key := firstNonEmpty(opts.APIKey, os.Getenv("GOOGLE_API_KEY")); key != "" {
		o = append(o, googleai.WithAPIKey(key))
	}
	client, err := googleai.New(context.Background(), o...)
	if err != nil {
		return nil, err
	}
	return NewBackend(client, model, opts.Logger), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
