// Package onboarding is the interactive setup behind "lmbridge init". It picks
// a provider, its credentials or server, a model and the middleware to turn
// off, and returns the result as a config.Config.
package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"lmbridge/internal/config"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var ErrAborted = errors.New("onboarding: setup aborted")

const DefaultOllamaURL = "http://localhost:11434"

var (
	titleStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1).
			Bold(true)
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(lipgloss.Color("205")).
			Padding(0, 1)
	tabStyle     = lipgloss.NewStyle().Padding(0, 1)
	focusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	docStyle     = lipgloss.NewStyle().Padding(1, 2)
)

type step int

const (
	stepProvider step = iota
	stepEndpoint      // API key, or the server URL for ollama
	stepModel
	stepMiddlewares
	stepDone
)

var tabs = []string{"Provider", "Endpoint", "Model", "Middleware"}

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title }

var providers = []list.Item{
	item{title: "ollama", desc: "Local execution via Ollama"},
	item{title: "openai", desc: "OpenAI GPT models (requires API key)"},
	item{title: "anthropic", desc: "Claude models (requires API key)"},
	item{title: "gemini", desc: "Google Gemini models (requires API key)"},
}

var cloudModels = map[string][]list.Item{
	"openai": {
		item{title: "gpt-4o", desc: "Best OpenAI model"},
		item{title: "gpt-4o-mini", desc: "Fast OpenAI model"},
	},
	"anthropic": {
		item{title: "claude-3-5-sonnet-latest", desc: "Best Anthropic model"},
	},
	"gemini": {
		item{title: "gemini-2.5-flash", desc: "Fast Google model"},
		item{title: "gemini-2.5-pro", desc: "Powerful Google model"},
	},
}

// Options configure a Wizard.
type Options struct {
	// OllamaURL prefills the server prompt. Defaults to DefaultOllamaURL.
	OllamaURL string
	// HTTPClient lists local Ollama models. Defaults to a 2s-timeout client.
	HTTPClient *http.Client
	// Middlewares are the middleware IDs offered for disabling.
	Middlewares []string
}

// Wizard is the bubbletea model of the setup flow.
type Wizard struct {
	opts Options
	step step

	provider string
	baseURL  string
	apiKey   string
	model    string
	mwIDs    []string
	disabled map[string]bool

	list    list.Model
	input   textinput.Model
	cursor  int
	aborted bool
	width   int
}

func New(opts Options) Wizard {
	if opts.OllamaURL == "" {
		opts.OllamaURL = DefaultOllamaURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 2 * time.Second}
	}

	l := list.New(providers, list.NewDefaultDelegate(), 60, 14)
	l.Title = "Select provider"
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	ti := textinput.New()
	ti.Focus()

	ids := slices.Clone(opts.Middlewares)
	slices.Sort(ids)

	return Wizard{
		opts:     opts,
		list:     l,
		input:    ti,
		mwIDs:    ids,
		disabled: map[string]bool{},
		width:    70,
	}
}

func (w Wizard) Init() tea.Cmd {
	return nil
}

func (w Wizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			w.aborted = true
			return w, tea.Quit
		}
	case tea.WindowSizeMsg:
		w.width = msg.Width
		w.list.SetSize(max(msg.Width-10, 20), max(msg.Height-12, 6))
	}

	key, _ := msg.(tea.KeyMsg)
	enter := key.String() == "enter"
	var cmd tea.Cmd

	switch w.step {
	case stepProvider:
		if !enter {
			w.list, cmd = w.list.Update(msg)
			break
		}
		if it, ok := w.list.SelectedItem().(item); ok {
			w.chooseProvider(it.title)
		}

	case stepEndpoint:
		if !enter {
			w.input, cmd = w.input.Update(msg)
			break
		}
		value := strings.TrimSpace(w.input.Value())
		if w.provider == "ollama" {
			w.baseURL = value
			if w.baseURL == "" {
				w.baseURL = DefaultOllamaURL
			}
			w.showModels("Select local model", w.ollamaModels())
		} else {
			w.apiKey = value
			w.showModels("Select model", cloudModels[w.provider])
		}

	case stepModel:
		if !enter {
			w.list, cmd = w.list.Update(msg)
			break
		}
		if it, ok := w.list.SelectedItem().(item); ok {
			w.model = it.title
			w.step = stepMiddlewares
			if len(w.mwIDs) == 0 {
				w.step = stepDone
				return w, tea.Quit
			}
		}

	case stepMiddlewares:
		switch key.String() {
		case "up", "k":
			if w.cursor > 0 {
				w.cursor--
			}
		case "down", "j":
			if w.cursor < len(w.mwIDs)-1 {
				w.cursor++
			}
		case " ", "space":
			id := w.mwIDs[w.cursor]
			w.disabled[id] = !w.disabled[id]
		case "enter":
			w.step = stepDone
			return w, tea.Quit
		}
	}
	return w, cmd
}

func (w *Wizard) chooseProvider(name string) {
	w.provider = name
	w.step = stepEndpoint
	w.input.Reset()
	if name == "ollama" {
		w.input.Prompt = "Ollama server URL: "
		w.input.EchoMode = textinput.EchoNormal
		w.input.SetValue(w.opts.OllamaURL)
		w.input.CursorEnd()
		return
	}
	w.input.Prompt = fmt.Sprintf("%s API key (empty to use the environment): ", name)
	w.input.EchoMode = textinput.EchoPassword
}

func (w *Wizard) showModels(title string, items []list.Item) {
	w.list.SetItems(items)
	w.list.Select(0)
	w.list.Title = title
	w.step = stepModel
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ollamaModels lists the models the server has pulled, or a default when the
// server cannot be reached.
func (w *Wizard) ollamaModels() []list.Item {
	fallback := []list.Item{item{title: "llama3.2", desc: "Default (Ollama not responding)"}}

	resp, err := w.opts.HTTPClient.Get(strings.TrimRight(w.baseURL, "/") + "/api/tags")
	if err != nil {
		return fallback
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fallback
	}
	var tags ollamaTags
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil || len(tags.Models) == 0 {
		return fallback
	}
	items := make([]list.Item, 0, len(tags.Models))
	for _, m := range tags.Models {
		items = append(items, item{title: m.Name, desc: "Local Ollama model"})
	}
	return items
}

func (w Wizard) View() string {
	if w.aborted || w.step == stepDone {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(" lmbridge setup "))
	b.WriteString("\n\n")

	rendered := make([]string, len(tabs))
	for i, t := range tabs {
		if step(i) == w.step {
			rendered[i] = activeTabStyle.Render(t)
		} else {
			rendered[i] = tabStyle.Render(t)
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	b.WriteString("\n\n")

	switch w.step {
	case stepProvider, stepModel:
		b.WriteString(w.list.View())
	case stepEndpoint:
		b.WriteString(w.input.View())
		b.WriteString("\n\n" + helpStyle.Render("enter: continue"))
	case stepMiddlewares:
		b.WriteString("Toggle middleware with space, enter to finish.\n\n")
		for i, id := range w.mwIDs {
			mark := "x"
			if w.disabled[id] {
				mark = " "
			}
			line := fmt.Sprintf("[%s] %s", mark, id)
			if i == w.cursor {
				b.WriteString(focusedStyle.Render("> "+line) + "\n")
			} else {
				b.WriteString("  " + line + "\n")
			}
		}
	}
	b.WriteString("\n" + helpStyle.Render("esc/ctrl+c: quit • ↑/↓: navigate • enter: select"))
	return docStyle.Width(w.width).Render(b.String())
}

// Config returns the choices made so far.
func (w Wizard) Config() config.Config {
	cfg := config.Config{
		Provider: w.provider,
		Model:    w.model,
		BaseURL:  w.baseURL,
		APIKey:   w.apiKey,
	}
	for _, id := range w.mwIDs {
		if w.disabled[id] {
			cfg.DisabledMiddlewares = append(cfg.DisabledMiddlewares, id)
		}
	}
	return cfg
}

// Run drives a Wizard on in and out until it finishes. It returns ErrAborted
// if the user quits first.
func Run(ctx context.Context, in io.Reader, out io.Writer, opts Options) (config.Config, error) {
	progOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(out)}
	if f, ok := in.(*os.File); !ok || f != os.Stdin {
		progOpts = append(progOpts, tea.WithInput(in))
	}
	final, err := tea.NewProgram(New(opts), progOpts...).Run()
	if err != nil {
		return config.Config{}, fmt.Errorf("onboarding: %w", err)
	}
	w, ok := final.(Wizard)
	if !ok || w.aborted || w.step != stepDone {
		return config.Config{}, ErrAborted
	}
	return w.Config(), nil
}
