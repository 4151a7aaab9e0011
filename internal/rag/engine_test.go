package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/logger"
)

const themeOutput = `THEME: Renewable energy
DOCUMENTS: solar.pdf, wind.pdf
DESCRIPTION: Both documents describe clean generation.`

func answeringGenerator() *fakeGenerator {
	return &fakeGenerator{respond: func(prompt string) (string, error) {
		if isThemePrompt(prompt) {
			return themeOutput, nil
		}
		return "Answer citing [Page 1, Paragraph 1]", nil
	}}
}

func TestQueryEngine_ProcessUserQuery(t *testing.T) {
	f := newFixture(t)
	f.addDocument(t, "solar.pdf", true, "solar panels convert sunlight", "energy from the sun")
	f.addDocument(t, "wind.pdf", true, "wind turbines generate energy")
	gen := answeringGenerator()

	engine := NewQueryEngine(f.retriever(5), f.docs, NewSynthesizer(gen, logger.Nop(), WithTemperature(0.3)), logger.Nop())
	result, err := engine.ProcessUserQuery(context.Background(), "how is energy generated?", nil, 5)
	require.NoError(t, err)

	require.Len(t, result.DocumentResponses, 2)
	solar := result.DocumentResponses["solar.pdf"]
	assert.Equal(t, "Answer citing [Page 1, Paragraph 1]", solar.Response)
	assert.ElementsMatch(t, []CitationRef{{Page: 1, Paragraph: 1}, {Page: 1, Paragraph: 2}}, solar.Citations)
	assert.Equal(t, []CitationRef{{Page: 1, Paragraph: 1}}, result.DocumentResponses["wind.pdf"].Citations)

	require.Len(t, result.Themes, 1)
	assert.Equal(t, "Renewable energy", result.Themes[0].Theme)
	assert.Equal(t, []string{"solar.pdf", "wind.pdf"}, result.Themes[0].Documents)

	// two answers then one theme call, all at the configured temperature
	prompts := gen.Prompts()
	require.Len(t, prompts, 3)
	assert.True(t, isThemePrompt(prompts[2]))
	assert.Contains(t, prompts[2], "Document: solar.pdf")
	for _, temp := range gen.temps {
		assert.Equal(t, 0.3, temp)
	}
}

func TestQueryEngine_AnswerPromptCarriesCitations(t *testing.T) {
	f := newFixture(t)
	f.addDocument(t, "one.pdf", true, "the only paragraph")
	gen := answeringGenerator()

	engine := NewQueryEngine(f.retriever(5), f.docs, NewSynthesizer(gen, logger.Nop()), logger.Nop())
	_, err := engine.ProcessUserQuery(context.Background(), "paragraph?", nil, 5)
	require.NoError(t, err)

	prompts := gen.Prompts()
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0], "[Page 1, Paragraph 1] the only paragraph")
	assert.Contains(t, prompts[0], "Question: paragraph?")
}

func TestQueryEngine_EmptyResults(t *testing.T) {
	f := newFixture(t)
	f.addDocument(t, "a.pdf", true, "indexed text")
	gen := answeringGenerator()
	engine := NewQueryEngine(f.retriever(5), f.docs, NewSynthesizer(gen, logger.Nop()), logger.Nop())

	result, err := engine.ProcessUserQuery(context.Background(), "anything", []uuid.UUID{}, 5)
	require.NoError(t, err)
	assert.Equal(t, EmptyResult(), result)
	assert.NotNil(t, result.DocumentResponses)
	assert.NotNil(t, result.Themes)
	assert.Empty(t, gen.Prompts())

	empty := newFixture(t)
	engine = NewQueryEngine(empty.retriever(5), empty.docs, NewSynthesizer(gen, logger.Nop()), logger.Nop())
	result, err = engine.ProcessUserQuery(context.Background(), "anything", nil, 5)
	require.NoError(t, err)
	assert.Equal(t, EmptyResult(), result)
}

func TestQueryEngine_EmptyQuestion(t *testing.T) {
	f := newFixture(t)
	engine := NewQueryEngine(f.retriever(5), f.docs, NewSynthesizer(answeringGenerator(), logger.Nop()), logger.Nop())

	_, err := engine.ProcessUserQuery(context.Background(), "   ", nil, 5)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestQueryEngine_ProviderFailureFailsWholeQuery(t *testing.T) {
	f := newFixture(t)
	f.addDocument(t, "a.pdf", true, "alpha text")
	f.addDocument(t, "b.pdf", true, "alpha words")
	outage := errors.New("provider outage")
	gen := &fakeGenerator{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "alpha words") {
			return "", outage
		}
		return "fine", nil
	}}

	engine := NewQueryEngine(f.retriever(5), f.docs, NewSynthesizer(gen, logger.Nop()), logger.Nop())
	result, err := engine.ProcessUserQuery(context.Background(), "alpha", nil, 5)
	assert.ErrorIs(t, err, outage)
	assert.Nil(t, result)
	for _, p := range gen.Prompts() {
		assert.False(t, isThemePrompt(p), "themes must not run after a failed answer")
	}
}

func TestQueryEngine_ThemeFailure(t *testing.T) {
	f := newFixture(t)
	f.addDocument(t, "a.pdf", true, "alpha text")
	gen := &fakeGenerator{respond: func(prompt string) (string, error) {
		if isThemePrompt(prompt) {
			return "", errors.New("theme call failed")
		}
		return "answer", nil
	}}

	engine := NewQueryEngine(f.retriever(5), f.docs, NewSynthesizer(gen, logger.Nop()), logger.Nop())
	_, err := engine.ProcessUserQuery(context.Background(), "alpha", nil, 5)
	assert.ErrorContains(t, err, "theme call failed")
}

func TestQueryEngine_DuplicateFilenamesKeptApart(t *testing.T) {
	f := newFixture(t)
	first := f.addDocument(t, "report.pdf", true, "alpha text")
	second := f.addDocument(t, "report.pdf", true, "alpha words")

	engine := NewQueryEngine(f.retriever(5), f.docs, NewSynthesizer(answeringGenerator(), logger.Nop()), logger.Nop())
	result, err := engine.ProcessUserQuery(context.Background(), "alpha", nil, 5)
	require.NoError(t, err)
	require.Len(t, result.DocumentResponses, 2)

	lower, higher := first.ID, second.ID
	if higher.String() < lower.String() {
		lower, higher = higher, lower
	}
	assert.Contains(t, result.DocumentResponses, "report.pdf")
	assert.Contains(t, result.DocumentResponses, fmt.Sprintf("report.pdf (%s)", higher))
}

func TestSynthesizer_AnswerAllRespectsConcurrencyLimit(t *testing.T) {
	gen := &fakeGenerator{
		respond: func(string) (string, error) { return "ok", nil },
		gate:    make(chan struct{}),
	}
	s := NewSynthesizer(gen, logger.Nop(), WithMaxConcurrency(2))

	grouped := make(map[string][]RetrievedChunk)
	for i := 0; i < 6; i++ {
		grouped[fmt.Sprintf("doc%d.pdf", i)] = []RetrievedChunk{{Chunk: chunk(1, 1, "text")}}
	}

	done := make(chan struct{})
	var answers map[string]DocumentAnswer
	var err error
	go func() {
		answers, err = s.AnswerAll(context.Background(), "q", grouped)
		close(done)
	}()

	// release calls one at a time so the limit is observable
	for i := 0; i < 6; i++ {
		select {
		case gen.gate <- struct{}{}:
		case <-time.After(5 * time.Second):
			t.Fatal("generator never called")
		}
	}
	<-done

	require.NoError(t, err)
	assert.Len(t, answers, 6)
	gen.mu.Lock()
	defer gen.mu.Unlock()
	assert.LessOrEqual(t, gen.maxInFlight, 2)
	assert.Greater(t, gen.maxInFlight, 0)
}

func TestSynthesizer_Defaults(t *testing.T) {
	s := NewSynthesizer(answeringGenerator(), logger.Nop(), WithTemperature(-1), WithMaxConcurrency(0))
	assert.Equal(t, DefaultTemperature, s.temperature)
	assert.Equal(t, DefaultMaxConcurrency, s.maxConcurrency)
}
