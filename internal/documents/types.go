package documents

// Page is the text of one physical PDF page
type Page struct {
	DocID  string `json:"doc_id"`
	Number int    `json:"page"`
	Text   string `json:"text"`
}

// Chunk is a window of one paragraph of one page. Paragraph numbering is
// 1-based and restarts on every page.
type Chunk struct {
	DocID     string `json:"doc_id"`
	Page      int    `json:"page"`
	Paragraph int    `json:"paragraph"`
	Text      string `json:"text"`
}
