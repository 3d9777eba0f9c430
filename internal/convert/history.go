package convert

import (
	"strings"

	"lmbridge/internal/host"

	"github.com/tmc/langchaingo/llms"
)

// History replays a host chat history as generic messages. Request turns
// become human messages, response turns become ai messages.
func History(chatCtx host.ChatContext) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(chatCtx.History))
	for _, turn := range chatCtx.History {
		switch t := turn.(type) {
		case host.RequestTurn:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, t.Prompt))
		case host.ResponseTurn:
			out = append(out, llms.TextParts(llms.ChatMessageTypeAI, ResponseText(t)))
		}
	}
	return out
}

// ResponseText flattens a response turn: markdown values and anchor paths are
// joined in order without separators, every other part contributes nothing.
func ResponseText(turn host.ResponseTurn) string {
	var b strings.Builder
	for _, part := range turn.Response {
		switch p := part.(type) {
		case host.MarkdownPart:
			b.WriteString(p.Value.Value)
		case host.AnchorPart:
			b.WriteString(anchorPath(p.Value))
		}
	}
	return b.String()
}

func anchorPath(target host.AnchorTarget) string {
	switch t := target.(type) {
	case host.URI:
		return t.FSPath()
	case host.Location:
		return t.URI.FSPath()
	default:
		return ""
	}
}
