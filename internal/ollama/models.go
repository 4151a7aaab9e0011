package ollama

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// ErrNoModels is returned when Ollama has no model that can answer questions
var ErrNoModels = errors.New("no generation models available")

// ModelInfo is one locally installed model as reported by /api/tags
type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// Tags lists the models installed in the Ollama instance
func (c *Client) Tags(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: failed to decode model list: %v", ErrProvider, err)
	}
	return tags.Models, nil
}

// answerModelFamilies are preferred for grounded question answering, best first
var answerModelFamilies = []string{
	"llama3.2",
	"llama3.1",
	"qwen2.5",
	"mistral",
	"llama3",
	"gemma",
}

// ChooseAnswerModel picks the model used for answers from installed. Known
// chat families win in preference order; otherwise the largest model. Embedding
// models are never chosen.
func ChooseAnswerModel(installed []ModelInfo) (string, error) {
	chat := slices.DeleteFunc(slices.Clone(installed), func(m ModelInfo) bool {
		return strings.Contains(strings.ToLower(m.Name), "embed")
	})
	if len(chat) == 0 {
		return "", ErrNoModels
	}

	for _, family := range answerModelFamilies {
		i := slices.IndexFunc(chat, func(m ModelInfo) bool {
			return strings.Contains(strings.ToLower(m.Name), family)
		})
		if i >= 0 {
			return chat[i].Name, nil
		}
	}

	largest := slices.MaxFunc(chat, func(a, b ModelInfo) int { return cmp.Compare(a.Size, b.Size) })
	return largest.Name, nil
}

// ModelSelector resolves which installed model answers questions
type ModelSelector struct {
	client *Client
}

// NewModelSelector creates a selector backed by client
func NewModelSelector(client *Client) *ModelSelector {
	return &ModelSelector{client: client}
}

// ListModels returns the installed models
func (ms *ModelSelector) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return ms.client.Tags(ctx)
}

// SelectBestModel lists installed models and chooses one with ChooseAnswerModel
func (ms *ModelSelector) SelectBestModel(ctx context.Context) (string, error) {
	installed, err := ms.client.Tags(ctx)
	if err != nil {
		return "", err
	}
	return ChooseAnswerModel(installed)
}

// GetDefaultModel returns preferred when it is installed and falls back to
// ChooseAnswerModel otherwise. The model list is fetched once.
func (ms *ModelSelector) GetDefaultModel(ctx context.Context, preferred string) (string, error) {
	installed, err := ms.client.Tags(ctx)
	if err != nil {
		return "", err
	}
	if preferred != "" && slices.ContainsFunc(installed, func(m ModelInfo) bool { return m.Name == preferred }) {
		return preferred, nil
	}
	return ChooseAnswerModel(installed)
}
