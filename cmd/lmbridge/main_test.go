package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"lmbridge/internal/config"
	"lmbridge/internal/host"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestREPLDispatchesTurns(t *testing.T) {
	var inputs []string
	clears := 0
	turn := func(_ context.Context, input string, clear bool) error {
		if clear {
			clears++
			return nil
		}
		inputs = append(inputs, input)
		return nil
	}

	in := strings.NewReader("hello\n\n/clear\nsecond\n/exit\nignored\n")
	var out, errOut bytes.Buffer
	require.NoError(t, repl(context.Background(), in, &out, &errOut, time.Second, turn))

	assert.Equal(t, []string{"hello", "second"}, inputs)
	assert.Equal(t, 1, clears)
	assert.Contains(t, out.String(), "context cleared")
}

func TestConsoleStream(t *testing.T) {
	var out, errOut bytes.Buffer
	s := newConsoleStream(&out, &errOut)
	s.Push(host.Markdown("Hi"))
	s.Push(host.ProgressPart{Value: "Running shell"})
	s.Push(host.AnchorPart{Value: host.File("/tmp/a.go")})

	assert.Equal(t, "Hi", out.String())
	assert.Equal(t, "[Running shell]\n", errOut.String())
	assert.Len(t, s.parts, 2)
}

func TestToolsCommandPrintsDescriptors(t *testing.T) {
	t.Chdir(t.TempDir())
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"tools"})
	require.NoError(t, cmd.Execute())

	var got []host.ChatTool
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, "fetch", got[0].Name)
	assert.Equal(t, "object", got[0].InputSchema["type"])
}

func TestInitRefusesToOverwrite(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("lmbridge.yaml", []byte("provider: ollama\n"), 0o644))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"init"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
}

func TestInitWritesConfigFromWizard(t *testing.T) {
	t.Chdir(t.TempDir())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"phi3"}]}`))
	}))
	defer srv.Close()

	t.Setenv("LMBRIDGE_BASE_URL", srv.URL)

	// Provider, prefilled server URL, model, then keep every middleware.
	in := "\r\r\r\r"
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(in))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init", "-o", "conf/lmbridge.yaml"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "wrote conf/lmbridge.yaml")

	cfg, err := config.Load("conf/lmbridge.yaml")
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "phi3", cfg.Model)
	assert.Equal(t, srv.URL, cfg.BaseURL)
	assert.Empty(t, cfg.DisabledMiddlewares)
}
