package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"lmbridge/internal/chat"
	"lmbridge/internal/chatmodel"
	"lmbridge/internal/host"
	"lmbridge/internal/llm"
	"lmbridge/internal/middleware"
	"lmbridge/internal/skills"
	_ "lmbridge/middlewares/autoload"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newChatCmd(a *app) *cobra.Command {
	var participant bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat with tool use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			model, err := llm.NewHostModel(llm.Options{
				Provider: llm.Provider(cfg.Provider),
				Model:    cfg.Model,
				BaseURL:  cfg.BaseURL,
				APIKey:   cfg.APIKey,
				Logger:   a.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize model: %w", err)
			}

			ts, err := skills.NewDefaultManager().Tools()
			if err != nil {
				return err
			}

			debugLog, closeLog := openDebugLog(cfg.DebugLog, cmd.ErrOrStderr())
			defer closeLog()
			chain := middleware.NewChainFromRegistry(debugLog, cfg.DisabledMiddlewares...)
			mwCtx := map[string]any{"token_budget": cfg.TokenBudget}

			var turn turnFunc
			if participant {
				turn = participantTurn(chat.NewParticipant(
					chat.WithParticipantTools(ts...),
					chat.WithParticipantMiddleware(chain, mwCtx),
					chat.WithParticipantMaxSteps(cfg.MaxSteps),
					chat.WithParticipantLogger(a.logger),
				), model, cmd.OutOrStdout(), cmd.ErrOrStderr())
			} else {
				cm, err := chatmodel.New(model, chatmodel.WithLogger(a.logger))
				if err != nil {
					return err
				}
				turn = serviceTurn(chat.NewService(cm,
					chat.WithTools(ts...),
					chat.WithMiddlewareChain(chain),
					chat.WithMiddlewareContext(mwCtx),
					chat.WithMaxSteps(cfg.MaxSteps),
					chat.WithLogger(a.logger),
				), cmd.OutOrStdout())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "lmbridge chat")
			fmt.Fprintf(out, "provider=%s model=%s (set LMBRIDGE_PROVIDER / LMBRIDGE_MODEL)\n", cfg.Provider, cfg.Model)
			fmt.Fprintln(out, "Type /exit to quit, /clear to reset context.")
			return repl(cmd.Context(), cmd.InOrStdin(), out, cmd.ErrOrStderr(), timeout, turn)
		},
	}
	cmd.Flags().BoolVar(&participant, "participant", false, "drive the chat participant handler instead of the framework-side service")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "time limit per turn")
	return cmd
}

// turnFunc runs one user turn. clear resets the conversation.
type turnFunc func(ctx context.Context, input string, clear bool) error

func repl(ctx context.Context, in io.Reader, out, errOut io.Writer, timeout time.Duration, turn turnFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch input {
		case "/exit", "exit", "quit":
			return nil
		case "/clear":
			_ = turn(ctx, "", true)
			fmt.Fprintln(out, "context cleared")
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, timeout)
		turnCtx, stop := signal.NotifyContext(turnCtx, os.Interrupt)
		err := turn(turnCtx, input, false)
		stop()
		cancel()
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
		}
	}
}

func serviceTurn(s *chat.Service, out io.Writer) turnFunc {
	return func(ctx context.Context, input string, clear bool) error {
		if clear {
			s.Clear()
			return nil
		}
		_, err := s.Send(ctx, input, func(tok string) { fmt.Fprint(out, tok) })
		fmt.Fprintln(out)
		return err
	}
}

// participantTurn keeps the chat history the way an editor would and hands
// each prompt to the participant.
func participantTurn(p *chat.Participant, model host.LanguageModelChat, out, errOut io.Writer) turnFunc {
	var history host.ChatContext
	return func(ctx context.Context, input string, clear bool) error {
		if clear {
			history = host.ChatContext{}
			return nil
		}
		stream := newConsoleStream(out, errOut)
		_, err := p.Handle(ctx, host.ChatRequest{Prompt: input, Model: model}, history, stream, host.TokenFromContext(ctx))
		fmt.Fprintln(out)
		if err != nil {
			return err
		}
		history.History = append(history.History,
			host.RequestTurn{Prompt: input},
			host.ResponseTurn{Response: stream.parts},
		)
		return nil
	}
}

// consoleStream prints markdown to out and dimmed progress to errOut, keeping
// what was pushed for the history.
type consoleStream struct {
	out      io.Writer
	errOut   io.Writer
	progress lipgloss.Style
	parts    []host.ResponsePart
}

func newConsoleStream(out, errOut io.Writer) *consoleStream {
	return &consoleStream{
		out:      out,
		errOut:   errOut,
		progress: lipgloss.NewRenderer(errOut).NewStyle().Faint(true),
	}
}

func (s *consoleStream) Push(p host.ResponsePart) {
	switch v := p.(type) {
	case host.MarkdownPart:
		fmt.Fprint(s.out, v.Value.Value)
		s.parts = append(s.parts, v)
	case host.AnchorPart:
		s.parts = append(s.parts, v)
	case host.ProgressPart:
		fmt.Fprintln(s.errOut, s.progress.Render("["+v.Value+"]"))
	}
}

func openDebugLog(path string, errOut io.Writer) (io.Writer, func()) {
	if path == "" {
		return nil, func() {}
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(errOut, "warning: failed to open middleware log file (%s): %v\n", path, err)
		return nil, func() {}
	}
	return f, func() { _ = f.Close() }
}
