package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"lmbridge/internal/chatmodel"
	"lmbridge/internal/convert"
	"lmbridge/internal/host"
	"lmbridge/internal/middleware"
	"lmbridge/internal/tools"

	"github.com/tmc/langchaingo/llms"
)

// Participant answers editor chat requests. The chat history is replayed into
// framework messages, the request's model is wrapped in a ChatModel and its
// streamed text is pushed to the response stream as markdown. Tool calls are
// run with the host convention and the loop continues until the model answers
// in text.
type Participant struct {
	tools    *toolbox
	mws      *middleware.Chain
	options  middleware.Options
	mwCtx    map[string]any
	maxSteps int
	logger   *slog.Logger
}

var _ host.ChatRequestHandler = (*Participant)(nil)

type ParticipantOption func(*Participant)

func WithParticipantTools(ts ...*tools.Tool) ParticipantOption {
	return func(p *Participant) {
		for _, t := range ts {
			p.tools.byName[t.Name()] = t
		}
	}
}

func WithParticipantMiddleware(chain *middleware.Chain, mwCtx map[string]any) ParticipantOption {
	return func(p *Participant) {
		p.mws = chain
		p.mwCtx = mwCtx
	}
}

func WithParticipantOptions(opts middleware.Options) ParticipantOption {
	return func(p *Participant) {
		p.options = opts.Clone()
	}
}

func WithParticipantMaxSteps(n int) ParticipantOption {
	return func(p *Participant) {
		if n > 0 {
			p.maxSteps = n
		}
	}
}

func WithParticipantLogger(l *slog.Logger) ParticipantOption {
	return func(p *Participant) {
		p.logger = l
	}
}

func NewParticipant(opts ...ParticipantOption) *Participant {
	p := &Participant{
		tools:    newToolbox(nil, slog.Default()),
		options:  middleware.Options{},
		maxSteps: 8,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.tools.logger = p.logger
	return p
}

func (p *Participant) Handle(ctx context.Context, req host.ChatRequest, chatCtx host.ChatContext, stream host.ChatResponseStream, token host.CancellationToken) (host.ChatResult, error) {
	if token == nil {
		token = host.None
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return errorResult(ErrEmptyInput)
	}

	prompt, options, stop, err := beforeRequest(ctx, p.mws, prompt, p.options, p.mwCtx, 0)
	if err != nil {
		return errorResult(err)
	}
	if stop != nil {
		return stoppedResult(stream, stop, 0)
	}

	model, err := chatmodel.New(req.Model,
		chatmodel.WithToken(token),
		chatmodel.WithResponseStream(stream),
		chatmodel.WithLogger(p.logger),
	)
	if err != nil {
		return errorResult(err)
	}
	bound, err := model.BindTools(p.tools.list(), options)
	if err != nil {
		return errorResult(err)
	}

	messages := convert.History(chatCtx)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	for step := 0; step < p.maxSteps; step++ {
		if step > 0 && p.mws != nil {
			_, options, stop, err = beforeRequest(ctx, p.mws, prompt, options, p.mwCtx, step)
			if err != nil {
				return errorResult(err)
			}
			if stop != nil {
				return stoppedResult(stream, stop, step)
			}
			if bound, err = model.BindTools(p.tools.list(), options); err != nil {
				return errorResult(err)
			}
		}

		var chunks []chatmodel.Chunk
		for chunk, err := range bound.Stream(ctx, messages) {
			if err != nil {
				return errorResult(err)
			}
			if chunk.Text != "" {
				stream.Push(host.Markdown(chunk.Text))
			}
			chunks = append(chunks, chunk)
		}
		if token.IsCancellationRequested() {
			return host.ChatResult{Metadata: map[string]any{"cancelled": true, "steps": step + 1}}, nil
		}

		choice := chatmodel.Aggregate(chunks)
		if len(choice.ToolCalls) == 0 {
			return p.finish(ctx, prompt, choice.Content, step)
		}
		for _, tc := range choice.ToolCalls {
			stream.Push(host.ProgressPart{Value: fmt.Sprintf("Running %s", callName(tc))})
		}
		messages = append(messages, assistantMessage(choice))
		messages = append(messages, p.tools.runHost(ctx, choice.ToolCalls, token))
	}
	return errorResult(fmt.Errorf("%w after %d steps", ErrMaxSteps, p.maxSteps))
}

// finish dispatches the streamed reply after the response. The text has
// already reached the stream, so a rewrite is reported as metadata["reply"].
func (p *Participant) finish(ctx context.Context, prompt, text string, step int) (host.ChatResult, error) {
	meta := map[string]any{"steps": step + 1}
	text = strings.TrimSpace(text)
	if text == "" {
		return host.ChatResult{Metadata: meta}, nil
	}
	reply, err := afterResponse(ctx, p.mws, prompt, text, p.mwCtx, step)
	if err != nil {
		return errorResult(err)
	}
	if reply != text {
		meta["reply"] = reply
	}
	return host.ChatResult{Metadata: meta}, nil
}

func stoppedResult(stream host.ChatResponseStream, stop *stopped, step int) (host.ChatResult, error) {
	text, err := stop.reply()
	if err != nil {
		return errorResult(err)
	}
	stream.Push(host.Markdown(text))
	return host.ChatResult{Metadata: map[string]any{"cancelled": true, "steps": step}}, nil
}

func errorResult(err error) (host.ChatResult, error) {
	return host.ChatResult{ErrorDetails: err.Error()}, err
}
