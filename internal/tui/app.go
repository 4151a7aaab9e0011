// Package tui is the terminal front end: a documents tab, a query tab and a
// models tab, talking to the docsift API.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/client"
	"github.com/docsift/docsift/internal/db"
	"github.com/docsift/docsift/internal/ollama"
	"github.com/docsift/docsift/internal/rag"
)

// API is the part of the docsift API the TUI uses
type API interface {
	ListDocuments(ctx context.Context) ([]db.Document, error)
	Upload(ctx context.Context, path string) (*client.SubmitResult, error)
	Process(ctx context.Context, id uuid.UUID) (*client.SubmitResult, error)
	Query(ctx context.Context, question string, docIDs []uuid.UUID) (*rag.QueryResult, error)
}

// ModelLister lists locally available Ollama models
type ModelLister interface {
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)
}

type tab int

const (
	documentsTab tab = iota
	queryTab
	modelsTab
)

var tabNames = []string{"1 Documents", "2 Query", "3 Models"}

// App is the root bubbletea model
type App struct {
	active tab
	width  int
	height int

	documentsView *DocumentsView
	queryView     *QueryView
	modelsView    *ModelsView
}

var _ tea.Model = (*App)(nil)

// NewApp creates the TUI. lister may be nil when Ollama is not reachable
// from this machine.
func NewApp(api API, lister ModelLister, model string) *App {
	docs := NewDocumentsView(api)
	return &App{
		documentsView: docs,
		queryView:     NewQueryView(api, docs.MarkedIDs),
		modelsView:    NewModelsView(lister, model),
	}
}

// Init loads documents and models
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.documentsView.Init(), a.modelsView.Init(), textinput.Blink)
}

// typing reports whether the active tab has a focused text field
func (a *App) typing() bool {
	switch a.active {
	case queryTab:
		return true
	case documentsTab:
		return a.documentsView.Typing()
	}
	return false
}

// Update routes keys to the active tab and everything else to every tab
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "tab":
			a.active = (a.active + 1) % tab(len(tabNames))
			return a, nil
		case "esc":
			if a.active == documentsTab && !a.documentsView.Typing() {
				return a, tea.Quit
			}
			if a.active != documentsTab {
				a.active = documentsTab
				return a, nil
			}
		}
		if !a.typing() {
			switch msg.String() {
			case "q":
				return a, tea.Quit
			case "1":
				a.active = documentsTab
				return a, nil
			case "2":
				a.active = queryTab
				return a, nil
			case "3":
				a.active = modelsTab
				return a, nil
			}
		}

		switch a.active {
		case documentsTab:
			return a, a.documentsView.Update(msg)
		case queryTab:
			return a, a.queryView.Update(msg)
		default:
			return a, a.modelsView.Update(msg)
		}
	}

	return a, tea.Batch(
		a.documentsView.Update(msg),
		a.queryView.Update(msg),
		a.modelsView.Update(msg),
	)
}

// View renders the tab bar and the active tab
func (a *App) View() string {
	tabs := make([]string, len(tabNames))
	for i, name := range tabNames {
		if tab(i) == a.active {
			tabs[i] = activeTabStyle.Render(name)
		} else {
			tabs[i] = inactiveTabStyle.Render(name)
		}
	}

	var body string
	switch a.active {
	case documentsTab:
		body = a.documentsView.View()
	case queryTab:
		body = a.queryView.View()
	default:
		body = a.modelsView.View()
	}

	footer := helpStyle.Render(strings.Join([]string{"Tab: Switch", "Esc: Back", "Ctrl+C: Quit"}, " | "))
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...),
		"",
		body,
		"",
		footer,
	)
}

// Run starts the TUI in the alternate screen
func Run(api API, lister ModelLister, model string) error {
	_, err := tea.NewProgram(NewApp(api, lister, model), tea.WithAltScreen()).Run()
	return err
}
