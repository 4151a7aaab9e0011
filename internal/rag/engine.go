package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/db"
	"github.com/docsift/docsift/internal/logger"
)

// ErrEmptyQuestion is returned for blank questions
var ErrEmptyQuestion = errors.New("question cannot be empty")

// QueryResult maps each answering document's filename to its answer, plus
// the themes found across them
type QueryResult struct {
	DocumentResponses map[string]DocumentAnswer `json:"document_responses"`
	Themes            []Theme                   `json:"themes"`
}

// EmptyResult is returned when no document produced retrieved chunks
func EmptyResult() *QueryResult {
	return &QueryResult{DocumentResponses: map[string]DocumentAnswer{}, Themes: []Theme{}}
}

// QueryEngine runs the retrieve, answer, theme pipeline
type QueryEngine struct {
	retriever *Retriever
	docs      db.DocumentStore
	synth     *Synthesizer
	log       *logger.Logger
}

// NewQueryEngine creates a query engine
func NewQueryEngine(retriever *Retriever, docs db.DocumentStore, synth *Synthesizer, log *logger.Logger) *QueryEngine {
	return &QueryEngine{retriever: retriever, docs: docs, synth: synth, log: log}
}

// ProcessUserQuery answers question against docIDs (all searchable documents
// when nil) using k chunks per document
func (e *QueryEngine) ProcessUserQuery(ctx context.Context, question string, docIDs []uuid.UUID, k int) (*QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	hits, err := e.retriever.Retrieve(ctx, question, docIDs, k)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	grouped, err := e.groupByFilename(ctx, hits)
	if err != nil {
		return nil, err
	}
	if len(grouped) == 0 {
		e.log.Info("no relevant chunks found", "question", question)
		return EmptyResult(), nil
	}

	answers, err := e.synth.AnswerAll(ctx, question, grouped)
	if err != nil {
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}

	themes, err := e.synth.SynthesizeThemes(ctx, answers)
	if err != nil {
		return nil, err
	}

	e.log.Info("query answered", "documents", len(answers), "themes", len(themes))
	return &QueryResult{DocumentResponses: answers, Themes: themes}, nil
}

// groupByFilename keys retrieved chunks by the documents' original filenames.
// Hits for documents without a metadata record are dropped. When two documents
// share a filename the later one (by id) gets its id appended.
func (e *QueryEngine) groupByFilename(ctx context.Context, hits map[uuid.UUID][]RetrievedChunk) (map[string][]RetrievedChunk, error) {
	grouped := make(map[string][]RetrievedChunk, len(hits))
	if len(hits) == 0 {
		return grouped, nil
	}

	ids := make([]uuid.UUID, 0, len(hits))
	for id := range hits {
		ids = append(ids, id)
	}
	docs, err := e.docs.GetDocumentsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up documents: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].OriginalFilename != docs[j].OriginalFilename {
			return docs[i].OriginalFilename < docs[j].OriginalFilename
		}
		return docs[i].ID.String() < docs[j].ID.String()
	})

	for _, doc := range docs {
		name := doc.OriginalFilename
		if _, taken := grouped[name]; taken {
			name = fmt.Sprintf("%s (%s)", name, doc.ID)
		}
		grouped[name] = hits[doc.ID]
	}
	return grouped, nil
}
