package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/docsift/docsift/internal/ollama"
)

// ModelsView shows the models available in Ollama and which one answers queries
type ModelsView struct {
	lister       ModelLister
	models       []ollama.ModelInfo
	selected     int
	currentModel string
	loading      bool
	errorMsg     string
}

// NewModelsView creates a new models view
func NewModelsView(lister ModelLister, currentModel string) *ModelsView {
	return &ModelsView{
		lister:       lister,
		currentModel: currentModel,
		models:       []ollama.ModelInfo{},
	}
}

// Init loads the model list
func (mv *ModelsView) Init() tea.Cmd {
	if mv.lister == nil {
		return nil
	}
	mv.loading = true
	return mv.loadModels
}

// Update handles updates
func (mv *ModelsView) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if mv.selected < len(mv.models)-1 {
				mv.selected++
			}
		case "k", "up":
			if mv.selected > 0 {
				mv.selected--
			}
		case "r":
			if mv.lister != nil {
				mv.loading = true
				return mv.loadModels
			}
		}
	case modelsLoadedMsg:
		mv.models = msg.models
		mv.loading = false
		mv.errorMsg = ""
		for i, model := range mv.models {
			if model.Name == mv.currentModel {
				mv.selected = i
				break
			}
		}
	case modelsErrorMsg:
		mv.errorMsg = msg.err.Error()
		mv.loading = false
	}
	return nil
}

// View renders the models view
func (mv *ModelsView) View() string {
	var lines []string

	lines = append(lines, titleStyle.Render("Ollama Models"))
	lines = append(lines, "")

	if mv.loading {
		lines = append(lines, "Loading models...")
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	if mv.errorMsg != "" {
		lines = append(lines, errorStyle.Render("Error: "+mv.errorMsg))
		lines = append(lines, "")
	}

	current := mv.currentModel
	if current == "" {
		current = "(chosen by the server)"
	}
	lines = append(lines, currentStyle.Render(fmt.Sprintf("Answering with: %s", current)))
	lines = append(lines, "")

	if len(mv.models) == 0 {
		lines = append(lines, "No models found. Make sure Ollama is running.")
	} else {
		for i, model := range mv.models {
			style := lipgloss.NewStyle()
			if i == mv.selected {
				style = selectedStyle
			}
			if model.Name == mv.currentModel {
				style = currentStyle
			}

			sizeMB := float64(model.Size) / (1024 * 1024)
			lines = append(lines, style.Render(fmt.Sprintf("%s %.2f MB", model.Name, sizeMB)))
		}
	}

	lines = append(lines, "")
	lines = append(lines, helpStyle.Render("j/k: Navigate | r: Reload"))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// loadModels loads available models
func (mv *ModelsView) loadModels() tea.Msg {
	models, err := mv.lister.ListModels(context.Background())
	if err != nil {
		return modelsErrorMsg{err: err}
	}
	return modelsLoadedMsg{models: models}
}

// modelsLoadedMsg signals models have been loaded
type modelsLoadedMsg struct {
	models []ollama.ModelInfo
}

type modelsErrorMsg struct {
	err error
}
