// Package llm provides reference host models backed by langchaingo providers,
// so the bridge can run outside an editor.
package llm

import (
	"errors"
	"fmt"
	"log/slog"

	"lmbridge/internal/host"
)

type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

var (
	ErrUnsupportedProvider = errors.New("llm: unsupported provider")
	ErrEmptyResponse       = errors.New("llm: empty response from model")
)

// Options selects and configures a provider. APIKey may be empty, in which
// case each provider falls back to its usual environment variable.
type Options struct {
	Provider Provider
	Model    string
	BaseURL  string
	APIKey   string
	Logger   *slog.Logger
}

func NewHostModel(opts Options) (host.LanguageModelChat, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	switch opts.Provider {
	case ProviderOllama:
		return NewOllama(opts)
	case ProviderOpenAI:
		return NewOpenAI(opts)
	case ProviderAnthropic:
		return NewAnthropic(opts)
	case ProviderGemini:
		return NewGemini(opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, opts.Provider)
	}
}
