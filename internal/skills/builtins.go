package skills

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"lmbridge/internal/tools"
)

const (
	maxShellOutput = 4000
	maxFileOutput  = 8000
	maxFetchBody   = 64 * 1024
	maxFetchText   = 4000
)

var (
	_ Skill = (*ShellSkill)(nil)
	_ Skill = (*FileSkill)(nil)
	_ Skill = (*FetchSkill)(nil)
)

type shellArgs struct {
	Command string `json:"command" jsonschema:"description=The shell command to execute."`
	Timeout int    `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds (default 30)."`
}

// ShellSkill executes shell commands.
type ShellSkill struct{}

func (s *ShellSkill) Name() string { return "shell" }
func (s *ShellSkill) Description() string {
	return "Executes a shell command. Use this to run system commands, list files, etc."
}
func (s *ShellSkill) Schema() any { return shellArgs{} }

func (s *ShellSkill) Invoke(ctx context.Context, input map[string]any, _ *tools.RunConfig) (string, error) {
	var args shellArgs
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Command) == "" {
		return "", errors.New("command is required")
	}

	timeout := 30 * time.Second
	if args.Timeout > 0 {
		timeout = time.Duration(args.Timeout) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", args.Command)
	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		// The model sees the failure as output so it can react to it.
		return fmt.Sprintf("Error: %v\nOutput: %s", err, output), nil
	}
	return strings.TrimSpace(truncate(output, maxShellOutput)), nil
}

type fileArgs struct {
	Method  string `json:"method" jsonschema:"enum=read,enum=write,description=The operation to perform."`
	Path    string `json:"path" jsonschema:"description=The file path."`
	Content string `json:"content,omitempty" jsonschema:"description=Content to write (for write method)."`
	Append  bool   `json:"append,omitempty" jsonschema:"description=Append to file instead of overwriting (for write method)."`
}

// FileSkill reads and writes files.
type FileSkill struct{}

func (f *FileSkill) Name() string { return "file" }
func (f *FileSkill) Description() string {
	return "Reads or writes files on the local filesystem."
}
func (f *FileSkill) Schema() any { return fileArgs{} }

func (f *FileSkill) Invoke(_ context.Context, input map[string]any, _ *tools.RunConfig) (string, error) {
	var args fileArgs
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	if args.Path == "" {
		return "", errors.New("path is required")
	}

	switch args.Method {
	case "read":
		data, err := os.ReadFile(args.Path)
		if err != nil {
			return "", fmt.Errorf("read failed: %w", err)
		}
		return truncate(string(data), maxFileOutput), nil

	case "write":
		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if args.Append {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		if err := os.MkdirAll(filepath.Dir(args.Path), 0o755); err != nil {
			return "", fmt.Errorf("mkdir failed: %w", err)
		}
		file, err := os.OpenFile(args.Path, flags, 0o644)
		if err != nil {
			return "", fmt.Errorf("open failed: %w", err)
		}
		defer file.Close()

		if _, err := file.WriteString(args.Content); err != nil {
			return "", fmt.Errorf("write failed: %w", err)
		}
		return fmt.Sprintf("Written %d bytes to %s", len(args.Content), args.Path), nil

	default:
		return "", fmt.Errorf("unknown method: %s", args.Method)
	}
}

type fetchArgs struct {
	URL string `json:"url" jsonschema:"description=The URL to fetch."`
}

// FetchSkill fetches URLs. Client defaults to a client with a 30s timeout.
type FetchSkill struct {
	Client *http.Client
}

func (f *FetchSkill) Name() string { return "fetch" }
func (f *FetchSkill) Description() string {
	return "Fetches content from a URL."
}
func (f *FetchSkill) Schema() any { return fetchArgs{} }

func (f *FetchSkill) Invoke(ctx context.Context, input map[string]any, _ *tools.RunConfig) (string, error) {
	var args fetchArgs
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	if args.URL == "" {
		return "", errors.New("url is required")
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return "", err
	}

	text := truncate(stripHTML(string(body)), maxFetchText)
	return fmt.Sprintf("HTTP %d\n\n%s", resp.StatusCode, text), nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n...(truncated)"
}

func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
