package host

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
)

// ResponsePart is a piece of a chat participant's answer, pushed to a
// ChatResponseStream and later replayed as history.
type ResponsePart interface {
	isResponsePart()
}

type MarkdownString struct {
	Value string
}

type MarkdownPart struct {
	Value MarkdownString
}

// AnchorPart links to a file or a location inside a file.
type AnchorPart struct {
	Value AnchorTarget
	Title string
}

type ProgressPart struct {
	Value string
}

type ReferencePart struct {
	Value AnchorTarget
}

func (MarkdownPart) isResponsePart()  {}
func (AnchorPart) isResponsePart()    {}
func (ProgressPart) isResponsePart()  {}
func (ReferencePart) isResponsePart() {}

// Markdown is a shorthand for a markdown response part.
func Markdown(s string) MarkdownPart {
	return MarkdownPart{Value: MarkdownString{Value: s}}
}

// ChatResponseStream receives response parts while a request is handled.
type ChatResponseStream interface {
	Push(part ResponsePart)
}

// AnchorTarget is either a URI or a Location.
type AnchorTarget interface {
	isAnchorTarget()
}

type URI struct {
	Scheme    string
	Authority string
	Path      string
}

// ParseURI parses s into a URI. Bare paths are treated as file URIs.
func ParseURI(s string) (URI, error) {
	if !strings.Contains(s, "://") {
		return File(s), nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return URI{}, err
	}
	return URI{Scheme: u.Scheme, Authority: u.Host, Path: u.Path}, nil
}

// File returns a file URI for a filesystem path.
func File(path string) URI {
	return URI{Scheme: "file", Path: filepath.ToSlash(path)}
}

// FSPath returns the filesystem path of a file URI. UNC authorities are kept.
func (u URI) FSPath() string {
	p := u.Path
	if u.Authority != "" && u.Scheme == "file" {
		p = "//" + u.Authority + p
	}
	return filepath.FromSlash(p)
}

func (u URI) String() string {
	return (&url.URL{Scheme: u.Scheme, Host: u.Authority, Path: u.Path}).String()
}

type Position struct {
	Line      int
	Character int
}

type Range struct {
	Start Position
	End   Position
}

type Location struct {
	URI   URI
	Range Range
}

func (URI) isAnchorTarget()      {}
func (Location) isAnchorTarget() {}

// Turn is one entry of a chat history.
type Turn interface {
	isTurn()
}

type RequestTurn struct {
	Prompt      string
	Participant string
	Command     string
}

type ResponseTurn struct {
	Response    []ResponsePart
	Participant string
}

func (RequestTurn) isTurn()  {}
func (ResponseTurn) isTurn() {}

type ChatContext struct {
	History []Turn
}

// ChatRequest is what the host hands a chat participant for a new prompt.
type ChatRequest struct {
	Prompt  string
	Command string
	Model   LanguageModelChat
}

type ChatResult struct {
	ErrorDetails string
	Metadata     map[string]any
}

// ChatRequestHandler is implemented by chat participants.
type ChatRequestHandler interface {
	Handle(ctx context.Context, req ChatRequest, chatCtx ChatContext, stream ChatResponseStream, token CancellationToken) (ChatResult, error)
}
