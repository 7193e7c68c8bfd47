package rag

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/hagwon-ai/hagwon/internal/search"
	"github.com/hagwon-ai/hagwon/provider"
)

type fakeRetriever struct {
	results []search.HybridResult
	err     error
	opts    search.Options
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, opts search.Options) ([]search.HybridResult, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeLLM struct {
	completions int
	answer      string
	err         error
	messages    []provider.Message
}

func (f *fakeLLM) ChatCompletion(ctx context.Context, messages []provider.Message, opts provider.CompletionOptions) (string, error) {
	f.completions++
	f.messages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeLLM) StreamCompletion(ctx context.Context, messages []provider.Message, opts provider.CompletionOptions) (<-chan provider.StreamChunk, error) {
	f.completions++
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan provider.StreamChunk, 2)
	out <- provider.StreamChunk{Content: f.answer}
	out <- provider.StreamChunk{Done: true}
	close(out)
	return out, nil
}

func (f *fakeLLM) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("not implemented")
}

func vectorSource(sim float64) search.HybridResult {
	return search.HybridResult{Source: search.SourceVector, FileName: "doc.txt", Content: "내용", Similarity: sim}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		sources []search.HybridResult
		want    ResponseType
	}{
		{"direct", []search.HybridResult{vectorSource(0.9), vectorSource(0.86)}, ResponseDirect},
		{"contextual", []search.HybridResult{vectorSource(0.75), vectorSource(0.72)}, ResponseContextual},
		{"general low similarity", []search.HybridResult{vectorSource(0.5)}, ResponseGeneral},
		{"general no sources", nil, ResponseGeneral},
		{"web hits do not raise grounding", []search.HybridResult{{Source: search.SourceWeb, Similarity: 0.99}}, ResponseGeneral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.sources); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestAnswerConfidence(t *testing.T) {
	t.Run("no sources general", func(t *testing.T) {
		if got := AnswerConfidence(nil, ResponseGeneral); got != 0.6 {
			t.Errorf("got %f, want 0.6", got)
		}
	})
	t.Run("no sources grounded", func(t *testing.T) {
		if got := AnswerConfidence(nil, ResponseDirect); got != 0.3 {
			t.Errorf("got %f, want 0.3", got)
		}
	})
	t.Run("direct with full sources", func(t *testing.T) {
		sources := []search.HybridResult{
			vectorSource(1), vectorSource(1), vectorSource(1), vectorSource(1), vectorSource(1),
		}
		if got := AnswerConfidence(sources, ResponseDirect); math.Abs(got-0.9) > 1e-9 {
			t.Errorf("got %f, want 0.9", got)
		}
	})
	t.Run("clamped to ceiling", func(t *testing.T) {
		sources := []search.HybridResult{vectorSource(1)}
		if got := AnswerConfidence(sources, ResponseDirect); got > 0.95 {
			t.Errorf("got %f, above ceiling", got)
		}
	})
	t.Run("web hits do not dilute the mean", func(t *testing.T) {
		vectorOnly := []search.HybridResult{vectorSource(0.9), vectorSource(0.95)}
		mixed := append([]search.HybridResult{}, vectorOnly...)
		mixed = append(mixed,
			search.HybridResult{Source: search.SourceWeb, Title: "웹"},
			search.HybridResult{Source: search.SourceWeb, Title: "웹2"},
		)
		want := AnswerConfidence(vectorOnly, ResponseDirect)
		if got := AnswerConfidence(mixed, ResponseDirect); math.Abs(got-want) > 1e-9 {
			t.Errorf("mixed sources scored %f, vector-only %f", got, want)
		}
	})
	t.Run("web only sources score like no sources", func(t *testing.T) {
		sources := []search.HybridResult{{Source: search.SourceWeb, Title: "웹"}}
		if got := AnswerConfidence(sources, ResponseGeneral); got != 0.6 {
			t.Errorf("got %f, want 0.6", got)
		}
	})
}

func TestAnswerDirect(t *testing.T) {
	retriever := &fakeRetriever{results: []search.HybridResult{vectorSource(0.9), vectorSource(0.88)}}
	llm := &fakeLLM{answer: "정규화는 이상 현상을 제거하는 설계 기법입니다."}
	o := NewOrchestrator(retriever, llm)

	resp, err := o.Answer(context.Background(), "정규화란?", Scope{Subject: "데이터베이스 구축"}, AskOptions{IncludeGeneralKnowledge: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ResponseType != ResponseDirect {
		t.Errorf("response type = %s", resp.ResponseType)
	}
	if resp.Answer != llm.answer {
		t.Errorf("answer = %q", resp.Answer)
	}
	if llm.completions != 1 {
		t.Errorf("completions = %d", llm.completions)
	}
	if len(resp.Sources) != 2 {
		t.Errorf("sources = %d", len(resp.Sources))
	}
	if resp.Confidence <= 0 || resp.Confidence > 0.95 {
		t.Errorf("confidence = %f", resp.Confidence)
	}
	// prompt should carry the retrieved material
	if !strings.Contains(llm.messages[len(llm.messages)-1].Content, "[참조 1]") {
		t.Error("user prompt missing references")
	}
}

func TestAnswerNoInfoShortCircuit(t *testing.T) {
	retriever := &fakeRetriever{}
	llm := &fakeLLM{answer: "호출되면 안 됨"}
	o := NewOrchestrator(retriever, llm)

	resp, err := o.Answer(context.Background(), "질문", Scope{}, AskOptions{IncludeGeneralKnowledge: false})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != NoInfoAnswer {
		t.Errorf("answer = %q", resp.Answer)
	}
	if llm.completions != 0 {
		t.Errorf("model called %d times on the no-info path", llm.completions)
	}
	if resp.Confidence != 0.6 {
		t.Errorf("confidence = %f", resp.Confidence)
	}
}

func TestAnswerGeneralKnowledgeAllowed(t *testing.T) {
	retriever := &fakeRetriever{}
	llm := &fakeLLM{answer: "일반 지식 기반 답변"}
	o := NewOrchestrator(retriever, llm)

	resp, err := o.Answer(context.Background(), "질문", Scope{Subject: "소프트웨어 설계"}, AskOptions{IncludeGeneralKnowledge: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ResponseType != ResponseGeneral {
		t.Errorf("response type = %s", resp.ResponseType)
	}
	if resp.Answer != llm.answer {
		t.Errorf("answer = %q", resp.Answer)
	}
	if llm.completions != 1 {
		t.Errorf("completions = %d", llm.completions)
	}
}

func TestAnswerCompletionFailureDegradesToApology(t *testing.T) {
	retriever := &fakeRetriever{results: []search.HybridResult{vectorSource(0.9)}}
	llm := &fakeLLM{err: fmt.Errorf("rate limited")}
	o := NewOrchestrator(retriever, llm)

	resp, err := o.Answer(context.Background(), "질문", Scope{}, AskOptions{IncludeGeneralKnowledge: true})
	if err != nil {
		t.Fatal("completion failure should not be a hard error")
	}
	if resp.Answer != ApologyAnswer {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 1 {
		t.Error("sources dropped on completion failure")
	}
}

func TestAnswerRetrievalFailureIsHardError(t *testing.T) {
	retriever := &fakeRetriever{err: fmt.Errorf("db down")}
	o := NewOrchestrator(retriever, &fakeLLM{})

	if _, err := o.Answer(context.Background(), "질문", Scope{}, AskOptions{}); err == nil {
		t.Fatal("expected retrieval error")
	}
}

func TestAnswerPassesScopeAndOptions(t *testing.T) {
	retriever := &fakeRetriever{results: []search.HybridResult{vectorSource(0.9)}}
	o := NewOrchestrator(retriever, &fakeLLM{answer: "답"})

	_, err := o.Answer(context.Background(), "질문", Scope{Subject: "소프트웨어 개발"}, AskOptions{
		MaxSources:          4,
		SimilarityThreshold: 0.75,
		IncludeWebSearch:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if retriever.opts.Subject != "소프트웨어 개발" {
		t.Errorf("subject = %q", retriever.opts.Subject)
	}
	if retriever.opts.MaxVectorResults != 4 || retriever.opts.VectorThreshold != 0.75 {
		t.Errorf("opts = %+v", retriever.opts)
	}
	if !retriever.opts.IncludeWebSearch {
		t.Error("web search flag dropped")
	}
}

func TestBuildMessagesTrimsHistory(t *testing.T) {
	o := NewOrchestrator(&fakeRetriever{}, &fakeLLM{})

	history := make([]provider.Message, 10)
	for i := range history {
		history[i] = provider.Message{Role: "user", Content: fmt.Sprintf("메시지 %d", i)}
	}
	messages := o.buildMessages("질문", Scope{}, nil, ResponseGeneral, history)

	// system + last 6 history + user
	if len(messages) != 8 {
		t.Fatalf("got %d messages, want 8", len(messages))
	}
	if messages[1].Content != "메시지 4" {
		t.Errorf("history not trimmed to tail, first kept = %q", messages[1].Content)
	}
	if messages[0].Role != "system" || messages[len(messages)-1].Role != "user" {
		t.Error("message frame broken")
	}
}

func TestStreamNoInfoSingleChunk(t *testing.T) {
	retriever := &fakeRetriever{}
	llm := &fakeLLM{}
	o := NewOrchestrator(retriever, llm)

	stream, resp, err := o.Stream(context.Background(), "질문", Scope{}, AskOptions{IncludeGeneralKnowledge: false})
	if err != nil {
		t.Fatal(err)
	}
	if llm.completions != 0 {
		t.Errorf("model called %d times", llm.completions)
	}

	var chunks []provider.StreamChunk
	for c := range stream {
		chunks = append(chunks, c)
	}
	if len(chunks) != 2 || chunks[0].Content != NoInfoAnswer || !chunks[1].Done {
		t.Errorf("chunks = %+v", chunks)
	}
	if resp.Answer != NoInfoAnswer {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestStreamCompletionFailureDeliversApology(t *testing.T) {
	retriever := &fakeRetriever{results: []search.HybridResult{vectorSource(0.9)}}
	llm := &fakeLLM{err: fmt.Errorf("stream refused")}
	o := NewOrchestrator(retriever, llm)

	stream, resp, err := o.Stream(context.Background(), "질문", Scope{}, AskOptions{IncludeGeneralKnowledge: true})
	if err != nil {
		t.Fatal("stream setup failure should degrade, not error")
	}
	var content strings.Builder
	for c := range stream {
		content.WriteString(c.Content)
	}
	if content.String() != ApologyAnswer {
		t.Errorf("streamed %q", content.String())
	}
	if resp.Answer != ApologyAnswer {
		t.Errorf("answer = %q", resp.Answer)
	}
}
