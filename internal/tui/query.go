package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/rag"
)

// QueryView asks questions and shows per-document answers and themes
type QueryView struct {
	api    API
	scope  func() []uuid.UUID
	input  textinput.Model
	width  int
	offset int

	question string
	result   *rag.QueryResult
	loading  bool
	errorMsg string
}

// NewQueryView creates a query view; scope returns the documents to search
func NewQueryView(api API, scope func() []uuid.UUID) *QueryView {
	ti := textinput.New()
	ti.Placeholder = "Ask a question about your documents..."
	ti.CharLimit = 512
	ti.Width = 76
	ti.Focus()

	return &QueryView{api: api, scope: scope, input: ti, width: 80}
}

type queryResultMsg struct {
	question string
	result   *rag.QueryResult
}

type queryErrorMsg struct {
	err error
}

// Update handles messages for the view
func (qv *QueryView) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		qv.width = msg.Width
		qv.input.Width = max(msg.Width-4, 20)
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			question := strings.TrimSpace(qv.input.Value())
			if question == "" || qv.loading {
				return nil
			}
			qv.loading = true
			qv.errorMsg = ""
			qv.offset = 0
			qv.input.Reset()
			return qv.runQuery(question, qv.scope())
		case tea.KeyPgDown:
			qv.offset += 10
			return nil
		case tea.KeyPgUp:
			qv.offset = max(qv.offset-10, 0)
			return nil
		}
		var cmd tea.Cmd
		qv.input, cmd = qv.input.Update(msg)
		return cmd
	case queryResultMsg:
		qv.loading = false
		qv.question = msg.question
		qv.result = msg.result
	case queryErrorMsg:
		qv.loading = false
		qv.errorMsg = msg.err.Error()
	default:
		// cursor blink
		var cmd tea.Cmd
		qv.input, cmd = qv.input.Update(msg)
		return cmd
	}
	return nil
}

// View renders the query view
func (qv *QueryView) View() string {
	var lines []string

	scope := "all processed documents"
	if ids := qv.scope(); ids != nil {
		scope = fmt.Sprintf("%d marked document(s)", len(ids))
	}
	lines = append(lines, titleStyle.Render("Query")+helpStyle.Render("  searching "+scope))
	lines = append(lines, "")
	lines = append(lines, qv.input.View())
	lines = append(lines, "")

	switch {
	case qv.loading:
		lines = append(lines, "Thinking...")
	case qv.errorMsg != "":
		lines = append(lines, errorStyle.Render("Error: "+qv.errorMsg))
	case qv.result != nil:
		body := strings.Split(renderResult(qv.question, qv.result, qv.width), "\n")
		if qv.offset >= len(body) {
			qv.offset = max(len(body)-1, 0)
		}
		lines = append(lines, body[qv.offset:]...)
	}

	lines = append(lines, "")
	lines = append(lines, helpStyle.Render("Enter: Ask | PgUp/PgDn: Scroll | Esc: Back"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderResult lays out answers by filename followed by the themes
func renderResult(question string, result *rag.QueryResult, width int) string {
	if len(result.DocumentResponses) == 0 {
		return "No relevant passages found for: " + question
	}

	wrap := lipgloss.NewStyle().Width(max(width-4, 20))
	var b strings.Builder

	names := make([]string, 0, len(result.DocumentResponses))
	for name := range result.DocumentResponses {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		answer := result.DocumentResponses[name]
		refs := make([]string, len(answer.Citations))
		for i, c := range answer.Citations {
			refs[i] = fmt.Sprintf("p%d ¶%d", c.Page, c.Paragraph)
		}
		b.WriteString(currentStyle.Render(name) + "\n")
		b.WriteString(wrap.Render(answer.Response) + "\n")
		if len(refs) > 0 {
			b.WriteString(citationStyle.Render("Sources: "+strings.Join(refs, ", ")) + "\n")
		}
		b.WriteString("\n")
	}

	var themes []string
	for _, t := range result.Themes {
		themes = append(themes, fmt.Sprintf("%s\n%s\n%s",
			selectedStyle.Render(t.Theme),
			wrap.Render(t.Description),
			citationStyle.Render("Documents: "+strings.Join(t.Documents, ", ")),
		))
	}
	if len(themes) > 0 {
		b.WriteString(panelStyle.Render(titleStyle.Render("Themes") + "\n\n" + strings.Join(themes, "\n\n")))
	}

	return strings.TrimRight(b.String(), "\n")
}

func (qv *QueryView) runQuery(question string, ids []uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		result, err := qv.api.Query(context.Background(), question, ids)
		if err != nil {
			return queryErrorMsg{err: err}
		}
		return queryResultMsg{question: question, result: result}
	}
}
