package rag

import "strings"

const (
	themePrefix       = "THEME:"
	documentsPrefix   = "DOCUMENTS:"
	descriptionPrefix = "DESCRIPTION:"
)

// Theme is a topic shared by one or more document answers
type Theme struct {
	Theme       string   `json:"theme"`
	Description string   `json:"description"`
	Documents   []string `json:"documents"`
}

// ParseThemes reads THEME/DOCUMENTS/DESCRIPTION blocks from model output.
// A THEME line starts a new record; DOCUMENTS and DESCRIPTION fill the
// current one and are ignored before the first THEME. Records missing
// fields are kept with those fields empty. Any other line is skipped.
func ParseThemes(text string) []Theme {
	themes := []Theme{}
	var current *Theme

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, themePrefix):
			if current != nil {
				themes = append(themes, *current)
			}
			current = &Theme{
				Theme:     strings.TrimSpace(line[len(themePrefix):]),
				Documents: []string{},
			}
		case current == nil:
		case strings.HasPrefix(line, documentsPrefix):
			current.Documents = splitDocuments(line[len(documentsPrefix):])
		case strings.HasPrefix(line, descriptionPrefix):
			current.Description = strings.TrimSpace(line[len(descriptionPrefix):])
		}
	}
	if current != nil {
		themes = append(themes, *current)
	}

	return themes
}

func splitDocuments(list string) []string {
	docs := []string{}
	for _, d := range strings.Split(list, ",") {
		if d = strings.TrimSpace(d); d != "" {
			docs = append(docs, d)
		}
	}
	return docs
}
