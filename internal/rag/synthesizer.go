package rag

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/docsift/docsift/internal/logger"
	"github.com/docsift/docsift/internal/ollama"
)

const (
	DefaultTemperature    = 0.3
	DefaultMaxConcurrency = 4
)

// CitationRef locates a retrieved chunk in its document
type CitationRef struct {
	Page      int `json:"page"`
	Paragraph int `json:"paragraph"`
}

// DocumentAnswer is the grounded answer for one document
type DocumentAnswer struct {
	Response  string        `json:"response"`
	Citations []CitationRef `json:"citations"`
}

// Synthesizer turns retrieved chunks into per-document answers and themes
type Synthesizer struct {
	gen            ollama.Generator
	temperature    float64
	maxConcurrency int
	log            *logger.Logger
}

// SynthesizerOption configures a Synthesizer
type SynthesizerOption func(*Synthesizer)

// WithTemperature sets the sampling temperature for every generation call
func WithTemperature(t float64) SynthesizerOption {
	return func(s *Synthesizer) {
		if t >= 0 {
			s.temperature = t
		}
	}
}

// WithMaxConcurrency bounds the number of documents answered at once
func WithMaxConcurrency(n int) SynthesizerOption {
	return func(s *Synthesizer) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// NewSynthesizer creates a synthesizer backed by gen
func NewSynthesizer(gen ollama.Generator, log *logger.Logger, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		gen:            gen,
		temperature:    DefaultTemperature,
		maxConcurrency: DefaultMaxConcurrency,
		log:            log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnswerDocument answers question from one document's chunks. The citations
// are the chunks' locators in retrieval order.
func (s *Synthesizer) AnswerDocument(ctx context.Context, question string, chunks []RetrievedChunk) (DocumentAnswer, error) {
	prompt := BuildAnswerPrompt(BuildContext(chunks), question)

	response, err := s.gen.Generate(ctx, prompt, s.temperature)
	if err != nil {
		return DocumentAnswer{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	citations := make([]CitationRef, len(chunks))
	for i, c := range chunks {
		citations[i] = CitationRef{Page: c.Page, Paragraph: c.Paragraph}
	}
	return DocumentAnswer{Response: response, Citations: citations}, nil
}

// AnswerAll answers every document concurrently. The first failure cancels
// the remaining calls and is returned; no partial result is produced.
func (s *Synthesizer) AnswerAll(ctx context.Context, question string, grouped map[string][]RetrievedChunk) (map[string]DocumentAnswer, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)

	var mu sync.Mutex
	answers := make(map[string]DocumentAnswer, len(grouped))

	for name, chunks := range grouped {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			answer, err := s.AnswerDocument(gctx, question, chunks)
			if err != nil {
				return fmt.Errorf("document %s: %w", name, err)
			}
			mu.Lock()
			answers[name] = answer
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return answers, nil
}

// SynthesizeThemes asks for themes shared across the answers and parses them
func (s *Synthesizer) SynthesizeThemes(ctx context.Context, answers map[string]DocumentAnswer) ([]Theme, error) {
	text, err := s.gen.Generate(ctx, BuildThemePrompt(answers), s.temperature)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize themes: %w", err)
	}

	themes := ParseThemes(text)
	s.log.Debug("synthesized themes", "documents", len(answers), "themes", len(themes))
	return themes, nil
}
