package openai_provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hagwon-ai/hagwon/provider"
)

const (
	chatCompletionsURL = "https://api.openai.com/v1/chat/completions"
	embeddingsURL      = "https://api.openai.com/v1/embeddings"
)

// Client implements provider.Provider using OpenAI's HTTP API
type Client struct {
	apiKey              string
	completionModel     string
	embeddingModel      string
	embeddingDimensions int
	temperature         float64
	maxTokens           int
	httpClient          *http.Client
}

// request represents a request to the chat completions API
type request struct {
	Model       string             `json:"model"`
	Messages    []provider.Message `json:"messages"`
	Temperature float64            `json:"temperature"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

// response represents a response from the chat completions API
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a new OpenAI client
func NewClient(apiKey, completionModel, embeddingModel string, embeddingDimensions int, temperature float64, maxTokens int, timeout time.Duration) *Client {
	return &Client{
		apiKey:              apiKey,
		completionModel:     completionModel,
		embeddingModel:      embeddingModel,
		embeddingDimensions: embeddingDimensions,
		temperature:         temperature,
		maxTokens:           maxTokens,
		httpClient:          &http.Client{Timeout: timeout},
	}
}

func (c *Client) buildRequest(messages []provider.Message, opts provider.CompletionOptions, stream bool) request {
	req := request{
		Model:       c.completionModel,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.Temperature != 0 {
		req.Temperature = opts.Temperature
	}
	if opts.MaxTokens != 0 {
		req.MaxTokens = opts.MaxTokens
	}
	return req
}

// ChatCompletion sends a blocking completion request and returns the full answer.
func (c *Client) ChatCompletion(ctx context.Context, messages []provider.Message, opts provider.CompletionOptions) (string, error) {
	requestBody := c.buildRequest(messages, opts, false)

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", chatCompletionsURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var openaiResp response
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(openaiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return openaiResp.Choices[0].Message.Content, nil
}

// StreamCompletion sends a streaming completion request. Chunks arrive on the
// returned channel; the last chunk has Done set and the channel is then closed.
func (c *Client) StreamCompletion(ctx context.Context, messages []provider.Message, opts provider.CompletionOptions) (<-chan provider.StreamChunk, error) {
	requestBody := c.buildRequest(messages, opts, true)

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", chatCompletionsURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	out := make(chan provider.StreamChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				break
			}
			var delta struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
					FinishReason *string `json:"finish_reason"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(payload), &delta); err != nil {
				continue
			}
			if len(delta.Choices) == 0 {
				continue
			}
			if content := delta.Choices[0].Delta.Content; content != "" {
				select {
				case out <- provider.StreamChunk{Content: content}:
				case <-ctx.Done():
					return
				}
			}
			if delta.Choices[0].FinishReason != nil {
				break
			}
		}
		select {
		case out <- provider.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// CreateEmbedding generates embeddings for the given texts
func (c *Client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	requestBody := map[string]interface{}{
		"model": c.embeddingModel,
		"input": texts,
	}
	if c.embeddingDimensions > 0 {
		requestBody["dimensions"] = c.embeddingDimensions
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", embeddingsURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var openaiResp struct {
		Data []struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	vecs := make([][]float32, len(openaiResp.Data))
	for i, d := range openaiResp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
