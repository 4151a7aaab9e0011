package rag

import (
	"fmt"
	"sort"
	"strings"
)

// NotAvailable is the reply the model is told to give when the context lacks the answer
const NotAvailable = "answer not available in pdf"

// Citation formats a page/paragraph locator the way it appears in prompts
func Citation(page, paragraph int) string {
	return fmt.Sprintf("[Page %d, Paragraph %d]", page, paragraph)
}

// BuildContext joins chunks, each prefixed with its citation, in retrieval order
func BuildContext(chunks []RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, Citation(c.Page, c.Paragraph)+" "+c.Text)
	}
	return strings.Join(parts, "\n\n")
}

// BuildAnswerPrompt creates the per-document answer prompt
func BuildAnswerPrompt(context, question string) string {
	var parts []string

	parts = append(parts, "You are an expert assistant. Using only the context taken from one document, give a precise answer to the question with clear citations.")
	parts = append(parts, fmt.Sprintf("If the answer is not in the context, reply exactly %q. Do not make up an answer.", NotAvailable))
	parts = append(parts, "")
	parts = append(parts, "Context:")
	parts = append(parts, context)
	parts = append(parts, "")
	parts = append(parts, "Question: "+question)
	parts = append(parts, "")
	parts = append(parts, "Answer with citations (page, paragraph).")

	return strings.Join(parts, "\n")
}

// BuildThemePrompt creates the cross-document theme prompt. Responses are
// listed by filename so the prompt is stable for a given set of answers.
func BuildThemePrompt(answers map[string]DocumentAnswer) string {
	names := make([]string, 0, len(answers))
	for name := range answers {
		names = append(names, name)
	}
	sort.Strings(names)

	var responses strings.Builder
	for _, name := range names {
		fmt.Fprintf(&responses, "Document: %s\nResponse:\n%s\n\n", name, answers[name].Response)
	}

	var parts []string

	parts = append(parts, "Identify the key themes in the document responses below. Give each theme a short headline of a few words, a brief description, and the documents that share it.")
	parts = append(parts, "")
	parts = append(parts, "Document Responses:")
	parts = append(parts, responses.String())
	parts = append(parts, "Format your response exactly like this:")
	parts = append(parts, "THEME: [theme name]")
	parts = append(parts, "DOCUMENTS: [comma-separated list of document names]")
	parts = append(parts, "DESCRIPTION: [brief description]")
	parts = append(parts, "")
	parts = append(parts, "Repeat this format for each theme you identify.")

	return strings.Join(parts, "\n")
}
