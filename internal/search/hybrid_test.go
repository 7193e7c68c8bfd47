package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/hagwon-ai/hagwon/config"
	"github.com/hagwon-ai/hagwon/internal/store"
	"github.com/hagwon-ai/hagwon/tools/websearch"
)

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type fakeChunks struct {
	native     []store.ChunkSearchResult
	nativeErr  error
	scanned    []store.ChunkSearchResult
	scanErr    error
	scanCalled bool
}

func (f *fakeChunks) SearchSimilar(ctx context.Context, vector []float32, opts store.SearchOptions) ([]store.ChunkSearchResult, error) {
	if f.nativeErr != nil {
		return nil, f.nativeErr
	}
	return f.native, nil
}

func (f *fakeChunks) ScanSimilar(ctx context.Context, vector []float32, opts store.SearchOptions, cosine func(a, b []float32) float64) ([]store.ChunkSearchResult, error) {
	f.scanCalled = true
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.scanned, nil
}

type fakeWeb struct {
	calls   int
	results []websearch.Result
	err     error
}

func (f *fakeWeb) Search(ctx context.Context, query string, maxResults int) ([]websearch.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		VectorThreshold:  0.7,
		HighQualityScore: 0.8,
		MaxVectorResults: 8,
		MaxWebResults:    3,
	}
}

func vectorHit(id string, sim float64) store.ChunkSearchResult {
	return store.ChunkSearchResult{ChunkID: id, Title: "doc.txt", Content: "내용 " + id, Similarity: sim}
}

func TestRetrieveSkipsWebWhenVectorIsStrong(t *testing.T) {
	chunks := &fakeChunks{native: []store.ChunkSearchResult{
		vectorHit("a", 0.92), vectorHit("b", 0.85), vectorHit("c", 0.81),
	}}
	web := &fakeWeb{results: []websearch.Result{{Title: "웹"}}}
	r := NewHybridRetriever(fakeEmbedder{}, chunks, web, testSearchConfig())

	results, err := r.Retrieve(context.Background(), "정규화란", Options{IncludeWebSearch: true})
	if err != nil {
		t.Fatal(err)
	}
	if web.calls != 0 {
		t.Errorf("web search called %d times with strong vector results", web.calls)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
}

func TestRetrieveSupplementsSparseVectorResults(t *testing.T) {
	// two strong hits are still below the minimum count, so web fills in
	chunks := &fakeChunks{native: []store.ChunkSearchResult{
		vectorHit("a", 0.92), vectorHit("b", 0.85),
	}}
	web := &fakeWeb{results: []websearch.Result{
		{Title: "블로그", URL: "https://blog.naver.com/x", Content: "웹 내용"},
	}}
	r := NewHybridRetriever(fakeEmbedder{}, chunks, web, testSearchConfig())

	results, err := r.Retrieve(context.Background(), "정규화란", Options{IncludeWebSearch: true})
	if err != nil {
		t.Fatal(err)
	}
	if web.calls != 1 {
		t.Fatalf("web calls = %d, want 1", web.calls)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Source != SourceVector || results[2].Source != SourceWeb {
		t.Errorf("ordering: %s, %s, %s", results[0].Source, results[1].Source, results[2].Source)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("vector results not sorted by similarity")
	}
	if results[2].URL != "https://blog.naver.com/x" {
		t.Errorf("web url = %q", results[2].URL)
	}
}

func TestRetrieveWebDisabledByOption(t *testing.T) {
	chunks := &fakeChunks{native: []store.ChunkSearchResult{vectorHit("a", 0.5)}}
	web := &fakeWeb{results: []websearch.Result{{Title: "웹"}}}
	r := NewHybridRetriever(fakeEmbedder{}, chunks, web, testSearchConfig())

	if _, err := r.Retrieve(context.Background(), "질문", Options{IncludeWebSearch: false}); err != nil {
		t.Fatal(err)
	}
	if web.calls != 0 {
		t.Errorf("web calls = %d, want 0", web.calls)
	}
}

func TestRetrieveKeepsVectorHitsOnWebFailure(t *testing.T) {
	chunks := &fakeChunks{native: []store.ChunkSearchResult{vectorHit("a", 0.75)}}
	web := &fakeWeb{err: fmt.Errorf("tavily down")}
	r := NewHybridRetriever(fakeEmbedder{}, chunks, web, testSearchConfig())

	results, err := r.Retrieve(context.Background(), "질문", Options{IncludeWebSearch: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Source != SourceVector {
		t.Errorf("vector results lost on web failure: %+v", results)
	}
}

func TestRetrieveFallsBackToScan(t *testing.T) {
	chunks := &fakeChunks{
		nativeErr: fmt.Errorf("operator does not exist: vector"),
		scanned:   []store.ChunkSearchResult{vectorHit("a", 0.9)},
	}
	r := NewHybridRetriever(fakeEmbedder{}, chunks, nil, testSearchConfig())

	results, err := r.Retrieve(context.Background(), "질문", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !chunks.scanCalled {
		t.Fatal("expected scan fallback")
	}
	if len(results) != 1 || results[0].FileName != "doc.txt" {
		t.Errorf("results = %+v", results)
	}
}

func TestRetrieveFailsWhenBothPathsFail(t *testing.T) {
	chunks := &fakeChunks{
		nativeErr: fmt.Errorf("native broken"),
		scanErr:   fmt.Errorf("scan broken"),
	}
	r := NewHybridRetriever(fakeEmbedder{}, chunks, nil, testSearchConfig())

	if _, err := r.Retrieve(context.Background(), "질문", Options{}); err == nil {
		t.Fatal("expected error when both search paths fail")
	}
}

func TestRetrieveEmbedderFailure(t *testing.T) {
	r := NewHybridRetriever(fakeEmbedder{err: fmt.Errorf("no api key")}, &fakeChunks{}, nil, testSearchConfig())
	if _, err := r.Retrieve(context.Background(), "질문", Options{}); err == nil {
		t.Fatal("expected embed error")
	}
}

func TestRetrieveUsesWebSnippetWhenContentEmpty(t *testing.T) {
	chunks := &fakeChunks{}
	web := &fakeWeb{results: []websearch.Result{{Title: "웹", Snippet: "요약문"}}}
	r := NewHybridRetriever(fakeEmbedder{}, chunks, web, testSearchConfig())

	results, err := r.Retrieve(context.Background(), "질문", Options{IncludeWebSearch: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Content != "요약문" {
		t.Errorf("results = %+v", results)
	}
}
