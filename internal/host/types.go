// Package host models the editor's in-process language-model API: chat
// messages and their parts, tool descriptors, the response stream and the chat
// history handed to a chat participant. An embedding runtime implements
// LanguageModelChat; everything else here is plain data.
package host

import (
	"context"
	"iter"
)

type ChatMessageRole int

const (
	RoleUser ChatMessageRole = iota + 1
	RoleAssistant
)

func (r ChatMessageRole) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// Part is one unit of message content or of a streamed model response.
type Part interface {
	isPart()
}

type TextPart struct {
	Value string
}

// ToolCallPart is a tool invocation requested by the model.
type ToolCallPart struct {
	CallID string
	Name   string
	Input  map[string]any
}

// ToolResultPart carries the output of a tool back to the model.
type ToolResultPart struct {
	CallID  string
	Content []Part
}

// DataPart is raw data such as an image. The bridge never produces it and
// treats it as an unrecognized part when it arrives on a response stream.
type DataPart struct {
	MIMEType string
	Data     []byte
}

func (TextPart) isPart()       {}
func (ToolCallPart) isPart()   {}
func (ToolResultPart) isPart() {}
func (DataPart) isPart()       {}

type ChatMessage struct {
	Role    ChatMessageRole
	Content []Part
	Name    string
}

// UserMessage builds a user message. The host API has no system or tool role,
// so those are sent as user messages too.
func UserMessage(content []Part, name string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content, Name: name}
}

func AssistantMessage(content []Part, name string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, Name: name}
}

// UserText is a shorthand for a user message with a single text part.
func UserText(text string) ChatMessage {
	return UserMessage([]Part{TextPart{Value: text}}, "")
}

// ChatTool describes a tool the model may call.
type ChatTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type ToolMode int

const (
	ToolModeAuto ToolMode = iota
	ToolModeRequired
)

type RequestOptions struct {
	Justification string
	ModelOptions  map[string]any
	Tools         []ChatTool
	ToolMode      ToolMode
}

// ChatResponse is the result of a request. Stream yields parts in arrival
// order and can be consumed once.
type ChatResponse struct {
	Stream iter.Seq2[Part, error]
}

// LanguageModelChat is a chat model provided by the host.
type LanguageModelChat interface {
	SendRequest(ctx context.Context, messages []ChatMessage, opts RequestOptions, token CancellationToken) (*ChatResponse, error)
}

// StreamOf returns a response stream that yields parts in order.
func StreamOf(parts ...Part) iter.Seq2[Part, error] {
	return func(yield func(Part, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}
