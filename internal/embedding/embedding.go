package embedding

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/hagwon-ai/hagwon/provider"
)

const maxInputChars = 8000

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^\w\s가-힣]`)
)

// Client turns text into validated embedding vectors via an LLM provider.
type Client struct {
	provider   provider.Provider
	dimensions int
	batchSize  int
}

// NewClient creates an embedding client. dimensions is the expected vector
// width; batchSize bounds how many texts go into one provider call.
func NewClient(p provider.Provider, dimensions, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Client{provider: p, dimensions: dimensions, batchSize: batchSize}
}

// PreprocessText normalises text before embedding: characters outside
// word/space/hangul ranges become spaces so token boundaries survive,
// whitespace runs collapse to a single space, and the result is trimmed
// and capped.
func PreprocessText(text string) string {
	text = disallowed.ReplaceAllString(text, " ")
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > maxInputChars {
		runes = runes[:maxInputChars]
	}
	return string(runes)
}

// Generate embeds a single text.
func (c *Client) Generate(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.GenerateBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}

// GenerateBatch embeds texts in provider calls of at most the configured
// batch size, preprocessing and validating every vector. Any invalid vector
// fails the whole batch.
func (c *Client) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = PreprocessText(t)
	}

	out := make([][]float32, 0, len(inputs))
	for start := 0; start < len(inputs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		vecs, err := c.provider.CreateEmbedding(ctx, inputs[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-start, len(vecs))
		}
		for i, v := range vecs {
			if err := c.Validate(v); err != nil {
				return nil, fmt.Errorf("embedding %d invalid: %w", start+i, err)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Validate checks that a vector has the configured dimension and contains
// only finite values.
func (c *Client) Validate(vec []float32) error {
	if len(vec) != c.dimensions {
		return fmt.Errorf("dimension mismatch: got %d, want %d", len(vec), c.dimensions)
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite value at index %d", i)
		}
	}
	return nil
}

// CosineSimilarity returns the cosine of the angle between two vectors.
// Mismatched lengths or a zero-norm vector yield 0 rather than an error.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
