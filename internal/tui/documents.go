package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/db"
)

// DocumentsView lists documents and their processing status
type DocumentsView struct {
	api       API
	documents []db.Document
	selected  int
	marked    map[uuid.UUID]bool

	adding   bool
	path     textinput.Model
	loading  bool
	status   string
	errorMsg string
}

// NewDocumentsView creates a new documents view
func NewDocumentsView(api API) *DocumentsView {
	ti := textinput.New()
	ti.Placeholder = "/path/to/file.pdf"
	ti.CharLimit = 1024
	ti.Width = 60

	return &DocumentsView{
		api:    api,
		path:   ti,
		marked: make(map[uuid.UUID]bool),
	}
}

type documentsLoadedMsg struct {
	documents []db.Document
}

type documentSubmittedMsg struct {
	id     uuid.UUID
	name   string
	status string
}

type documentsErrorMsg struct {
	err error
}

// Init loads the document list
func (dv *DocumentsView) Init() tea.Cmd {
	dv.loading = true
	return dv.loadDocuments
}

// Typing reports whether keys should go to the path input
func (dv *DocumentsView) Typing() bool {
	return dv.adding
}

// MarkedIDs returns the documents chosen for querying, nil when none are
func (dv *DocumentsView) MarkedIDs() []uuid.UUID {
	if len(dv.marked) == 0 {
		return nil
	}
	var ids []uuid.UUID
	for _, doc := range dv.documents {
		if dv.marked[doc.ID] {
			ids = append(ids, doc.ID)
		}
	}
	return ids
}

// Update handles messages for the view
func (dv *DocumentsView) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if dv.adding {
			return dv.updateAdding(msg)
		}
		switch msg.String() {
		case "j", "down":
			if dv.selected < len(dv.documents)-1 {
				dv.selected++
			}
		case "k", "up":
			if dv.selected > 0 {
				dv.selected--
			}
		case " ", "x":
			if doc, ok := dv.current(); ok {
				if dv.marked[doc.ID] {
					delete(dv.marked, doc.ID)
				} else {
					dv.marked[doc.ID] = true
				}
			}
		case "p":
			if doc, ok := dv.current(); ok {
				dv.status = "Submitting " + doc.OriginalFilename + "..."
				return dv.processDocument(doc)
			}
		case "a":
			dv.adding = true
			dv.path.Reset()
			return dv.path.Focus()
		case "r":
			dv.loading = true
			return dv.loadDocuments
		}
	case documentsLoadedMsg:
		dv.loading = false
		dv.errorMsg = ""
		dv.documents = msg.documents
		if dv.selected >= len(dv.documents) {
			dv.selected = max(len(dv.documents)-1, 0)
		}
		known := make(map[uuid.UUID]bool, len(dv.documents))
		for _, d := range dv.documents {
			known[d.ID] = true
		}
		for id := range dv.marked {
			if !known[id] {
				delete(dv.marked, id)
			}
		}
	case documentSubmittedMsg:
		dv.errorMsg = ""
		dv.status = fmt.Sprintf("%s: %s", msg.name, msg.status)
		return dv.loadDocuments
	case documentsErrorMsg:
		dv.loading = false
		dv.status = ""
		dv.errorMsg = msg.err.Error()
	default:
		var cmd tea.Cmd
		dv.path, cmd = dv.path.Update(msg)
		return cmd
	}
	return nil
}

func (dv *DocumentsView) updateAdding(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		dv.adding = false
		dv.path.Blur()
		return nil
	case tea.KeyEnter:
		path := strings.TrimSpace(dv.path.Value())
		dv.adding = false
		dv.path.Blur()
		if path == "" {
			return nil
		}
		dv.status = "Uploading " + path + "..."
		return dv.uploadDocument(path)
	}
	var cmd tea.Cmd
	dv.path, cmd = dv.path.Update(msg)
	return cmd
}

func (dv *DocumentsView) current() (db.Document, bool) {
	if dv.selected < 0 || dv.selected >= len(dv.documents) {
		return db.Document{}, false
	}
	return dv.documents[dv.selected], true
}

// View renders the documents view
func (dv *DocumentsView) View() string {
	var lines []string

	lines = append(lines, titleStyle.Render("Documents"))
	lines = append(lines, "")

	if dv.errorMsg != "" {
		lines = append(lines, errorStyle.Render("Error: "+dv.errorMsg))
		lines = append(lines, "")
	}

	switch {
	case dv.loading && len(dv.documents) == 0:
		lines = append(lines, "Loading documents...")
	case len(dv.documents) == 0:
		lines = append(lines, "No documents yet. Press a to upload a PDF.")
	default:
		for i, doc := range dv.documents {
			mark := "[ ]"
			if dv.marked[doc.ID] {
				mark = "[x]"
			}
			line := fmt.Sprintf("%s %-40s %s", mark, truncate(doc.OriginalFilename, 40), documentStatus(doc))
			if i == dv.selected {
				line = selectedStyle.Render(line)
			}
			lines = append(lines, line)
		}
	}

	if dv.status != "" {
		lines = append(lines, "")
		lines = append(lines, currentStyle.Render(dv.status))
	}

	lines = append(lines, "")
	if dv.adding {
		lines = append(lines, "Path to PDF (Enter to upload, Esc to cancel):")
		lines = append(lines, dv.path.View())
	} else {
		lines = append(lines, helpStyle.Render("j/k: Navigate | Space: Mark for query | p: Process | a: Upload | r: Reload"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func documentStatus(doc db.Document) string {
	switch {
	case doc.IsProcessed:
		pages := ""
		if doc.PageCount != nil {
			pages = fmt.Sprintf(" (%d pages)", *doc.PageCount)
		}
		return okStyle.Render("Processed" + pages)
	case doc.ProcessingError != nil && *doc.ProcessingError != "":
		return errorStyle.Render("Failed: " + truncate(*doc.ProcessingError, 50))
	default:
		return helpStyle.Render("Processing")
	}
}

func (dv *DocumentsView) loadDocuments() tea.Msg {
	docs, err := dv.api.ListDocuments(context.Background())
	if err != nil {
		return documentsErrorMsg{err: err}
	}
	return documentsLoadedMsg{documents: docs}
}

func (dv *DocumentsView) processDocument(doc db.Document) tea.Cmd {
	return func() tea.Msg {
		out, err := dv.api.Process(context.Background(), doc.ID)
		if err != nil {
			return documentsErrorMsg{err: err}
		}
		return documentSubmittedMsg{id: doc.ID, name: doc.OriginalFilename, status: out.Status}
	}
}

func (dv *DocumentsView) uploadDocument(path string) tea.Cmd {
	return func() tea.Msg {
		out, err := dv.api.Upload(context.Background(), path)
		if err != nil {
			return documentsErrorMsg{err: err}
		}
		return documentSubmittedMsg{id: out.ID, name: out.Filename, status: out.Status}
	}
}
