package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider talks to an Ollama server over its HTTP API.
type OllamaProvider struct {
	BaseURL        string
	ModelName      string
	EmbeddingModel string
	Temperature    float64
	Client         *http.Client
}

var _ Provider = &OllamaProvider{}

func NewOllamaProvider(baseURL, modelName string) *OllamaProvider {
	return &OllamaProvider{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		ModelName:      modelName,
		EmbeddingModel: "nomic-embed-text",
		Temperature:    0.2,
		Client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// #region wire
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// #endregion wire

// #region chat
func (o *OllamaProvider) Chat(ctx context.Context, history []Message, opts ...Option) (string, error) {
	options := ApplyOptions(Options{Temperature: o.Temperature, Model: o.ModelName}, opts...)

	msgs := make([]ollamaMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = "assistant"
		}
		msgs[i] = ollamaMessage{Role: role, Content: msg.Content}
	}

	payload := ollamaChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   false,
		Options:  &ollamaOptions{Temperature: options.Temperature, NumPredict: options.MaxTokens},
	}
	if options.JSON {
		payload.Format = "json"
	}

	var resp ollamaChatResponse
	if err := o.post(ctx, "/api/chat", payload, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return o.Chat(ctx, []Message{{Role: "user", Content: prompt}}, opts...)
}

// #endregion chat

// #region embed
// Embed returns the embedding of text from the configured embedding model.
func (o *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaEmbedResponse
	if err := o.post(ctx, "/api/embeddings", ollamaEmbedRequest{Model: o.EmbeddingModel, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding")
	}
	return resp.Embedding, nil
}

// #endregion embed

func (o *OllamaProvider) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama error: status %d, body: %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
