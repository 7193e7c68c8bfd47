package search

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/hagwon-ai/hagwon/config"
	"github.com/hagwon-ai/hagwon/internal/embedding"
	"github.com/hagwon-ai/hagwon/internal/store"
	"github.com/hagwon-ai/hagwon/tools/websearch"
)

// Source tags where a hybrid result came from.
type Source string

const (
	SourceVector Source = "vector"
	SourceWeb    Source = "web"
)

// minVectorResults is the count below which web search supplements the
// vector hits even when they exist.
const minVectorResults = 3

// HybridResult is one retrieval hit. Vector hits carry FileName, ChunkIndex
// and Similarity; web hits carry URL, Title and Snippet.
type HybridResult struct {
	Content    string    `json:"content"`
	Source     Source    `json:"source"`
	FileName   string    `json:"file_name,omitempty"`
	ChunkIndex int       `json:"chunk_index,omitempty"`
	Similarity float64   `json:"similarity,omitempty"`
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title,omitempty"`
	Snippet    string    `json:"snippet,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Options tune one retrieval call.
type Options struct {
	Subject          string
	IncludeWebSearch bool
	VectorThreshold  float64
	MaxVectorResults int
	MaxWebResults    int
}

// Embedder produces a query vector.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearcher is the vector index surface the retriever needs.
type ChunkSearcher interface {
	SearchSimilar(ctx context.Context, vector []float32, opts store.SearchOptions) ([]store.ChunkSearchResult, error)
	ScanSimilar(ctx context.Context, vector []float32, opts store.SearchOptions, cosine func(a, b []float32) float64) ([]store.ChunkSearchResult, error)
}

// HybridRetriever combines the vector index with web search. Vector results
// are authoritative; web search only fills in when they are sparse or weak,
// and a web failure never discards vector hits.
type HybridRetriever struct {
	embedder Embedder
	chunks   ChunkSearcher
	web      websearch.Searcher
	cfg      config.SearchConfig
	logger   *log.Logger
}

func NewHybridRetriever(embedder Embedder, chunks ChunkSearcher, web websearch.Searcher, cfg config.SearchConfig) *HybridRetriever {
	return &HybridRetriever{
		embedder: embedder,
		chunks:   chunks,
		web:      web,
		cfg:      cfg,
		logger:   log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}
}

// Retrieve runs the hybrid pipeline for a query. The returned slice keeps
// vector hits ahead of web hits, vector hits in descending similarity and
// web hits in provider order.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, opts Options) ([]HybridResult, error) {
	if opts.VectorThreshold == 0 {
		opts.VectorThreshold = h.cfg.VectorThreshold
	}
	if opts.MaxVectorResults <= 0 {
		opts.MaxVectorResults = h.cfg.MaxVectorResults
	}
	if opts.MaxWebResults <= 0 {
		opts.MaxWebResults = h.cfg.MaxWebResults
	}

	queryVec, err := h.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	searchOpts := store.SearchOptions{
		Subject:             opts.Subject,
		Limit:               opts.MaxVectorResults,
		SimilarityThreshold: opts.VectorThreshold,
	}
	vectorHits, err := h.chunks.SearchSimilar(ctx, queryVec, searchOpts)
	if err != nil {
		h.logger.Printf("native vector search failed, falling back to scan: %v", err)
		vectorHits, err = h.chunks.ScanSimilar(ctx, queryVec, searchOpts, embedding.CosineSimilarity)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
	}

	now := time.Now()
	results := make([]HybridResult, 0, len(vectorHits))
	for _, hit := range vectorHits {
		results = append(results, HybridResult{
			Content:    hit.Content,
			Source:     SourceVector,
			FileName:   hit.Title,
			ChunkIndex: hit.ChunkIndex,
			Similarity: hit.Similarity,
			Timestamp:  now,
		})
	}

	highQuality := false
	for _, hit := range vectorHits {
		if hit.Similarity > h.cfg.HighQualityScore {
			highQuality = true
			break
		}
	}

	if opts.IncludeWebSearch && h.web != nil && (!highQuality || len(vectorHits) < minVectorResults) {
		webHits, err := h.web.Search(ctx, query, opts.MaxWebResults)
		if err != nil {
			// vector results still stand on a web failure
			h.logger.Printf("web search failed: %v", err)
		} else {
			for _, hit := range webHits {
				content := hit.Content
				if content == "" {
					content = hit.Snippet
				}
				results = append(results, HybridResult{
					Content:   content,
					Source:    SourceWeb,
					URL:       hit.URL,
					Title:     hit.Title,
					Snippet:   hit.Snippet,
					Timestamp: now,
				})
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Source != results[j].Source {
			return results[i].Source == SourceVector
		}
		if results[i].Source == SourceVector {
			return results[i].Similarity > results[j].Similarity
		}
		return false
	})

	return results, nil
}
