package websearch

import (
	"context"

	"github.com/hagwon-ai/hagwon/tools/websearch/tavily"
)

// Result is one web search hit.
type Result = tavily.Result

// Searcher finds supplementary web material for a query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

type Provider string

const (
	TavilyProvider Provider = "tavily"
)

var ErrUnsupportedProvider = &Error{"unsupported provider"}

type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

// NewSearcher builds a Searcher for the given provider. An empty API key is
// allowed; the provider then returns no results rather than failing.
func NewSearcher(provider Provider, apiKey string) (Searcher, error) {
	switch provider {
	case TavilyProvider:
		return tavily.Search{APIKey: apiKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
