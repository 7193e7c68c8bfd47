package rag

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hagwon-ai/hagwon/internal/search"
	"github.com/hagwon-ai/hagwon/provider"
)

// ResponseType classifies how grounded an answer is.
type ResponseType string

const (
	ResponseDirect     ResponseType = "direct"
	ResponseContextual ResponseType = "contextual"
	ResponseGeneral    ResponseType = "general"
)

// Mean-similarity cutoffs that decide the response type.
const (
	directSimilarity     = 0.85
	contextualSimilarity = 0.70
)

var answersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "hagwon_answers_total",
	Help: "Answers generated, labelled by response type.",
}, []string{"response_type"})

// Retriever is the hybrid retrieval surface the orchestrator needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts search.Options) ([]search.HybridResult, error)
}

// Scope narrows retrieval to a study room's subject and category.
type Scope struct {
	Subject  string
	Category string
}

// AskOptions tune one question.
type AskOptions struct {
	MaxSources              int
	SimilarityThreshold     float64
	IncludeWebSearch        bool
	IncludeGeneralKnowledge bool
	History                 []provider.Message
}

// Response is a complete grounded answer.
type Response struct {
	Answer       string                `json:"answer"`
	Sources      []search.HybridResult `json:"sources"`
	Quality      search.Quality        `json:"quality"`
	Confidence   float64               `json:"confidence"`
	ResponseType ResponseType          `json:"response_type"`
	ResponseTime time.Duration         `json:"response_time"`
}

// Orchestrator wires retrieval, prompting and completion into the question
// answering pipeline.
type Orchestrator struct {
	retriever Retriever
	llm       provider.Provider
	logger    *log.Logger
}

func NewOrchestrator(retriever Retriever, llm provider.Provider) *Orchestrator {
	return &Orchestrator{
		retriever: retriever,
		llm:       llm,
		logger:    log.New(log.Writer(), "[RAG] ", log.LstdFlags),
	}
}

// Answer runs the full pipeline for a question. A retrieval failure is a
// hard error; a completion failure degrades to a fixed apology so the
// caller still gets the sources.
func (o *Orchestrator) Answer(ctx context.Context, question string, scope Scope, opts AskOptions) (Response, error) {
	started := time.Now()

	sources, err := o.retriever.Retrieve(ctx, question, search.Options{
		Subject:          scope.Subject,
		IncludeWebSearch: opts.IncludeWebSearch,
		VectorThreshold:  opts.SimilarityThreshold,
		MaxVectorResults: opts.MaxSources,
	})
	if err != nil {
		return Response{}, fmt.Errorf("retrieval failed: %w", err)
	}

	quality := search.Evaluate(sources)
	responseType := classify(sources)

	resp := Response{
		Sources:      sources,
		Quality:      quality,
		ResponseType: responseType,
	}

	if responseType == ResponseGeneral && !opts.IncludeGeneralKnowledge {
		resp.Answer = NoInfoAnswer
		resp.Confidence = AnswerConfidence(sources, responseType)
		resp.ResponseTime = time.Since(started)
		answersTotal.WithLabelValues(string(responseType)).Inc()
		return resp, nil
	}

	messages := o.buildMessages(question, scope, sources, responseType, opts.History)
	answer, err := o.llm.ChatCompletion(ctx, messages, provider.CompletionOptions{Temperature: 0.3})
	if err != nil {
		o.logger.Printf("completion failed: %v", err)
		answer = ApologyAnswer
	}

	resp.Answer = answer
	resp.Confidence = AnswerConfidence(sources, responseType)
	resp.ResponseTime = time.Since(started)
	answersTotal.WithLabelValues(string(responseType)).Inc()
	return resp, nil
}

// Stream is Answer with a streamed completion. The fixed no-information
// answer is delivered as a single chunk without calling the model.
func (o *Orchestrator) Stream(ctx context.Context, question string, scope Scope, opts AskOptions) (<-chan provider.StreamChunk, Response, error) {
	started := time.Now()

	sources, err := o.retriever.Retrieve(ctx, question, search.Options{
		Subject:          scope.Subject,
		IncludeWebSearch: opts.IncludeWebSearch,
		VectorThreshold:  opts.SimilarityThreshold,
		MaxVectorResults: opts.MaxSources,
	})
	if err != nil {
		return nil, Response{}, fmt.Errorf("retrieval failed: %w", err)
	}

	quality := search.Evaluate(sources)
	responseType := classify(sources)
	resp := Response{
		Sources:      sources,
		Quality:      quality,
		ResponseType: responseType,
		Confidence:   AnswerConfidence(sources, responseType),
		ResponseTime: time.Since(started),
	}
	answersTotal.WithLabelValues(string(responseType)).Inc()

	if responseType == ResponseGeneral && !opts.IncludeGeneralKnowledge {
		out := make(chan provider.StreamChunk, 2)
		out <- provider.StreamChunk{Content: NoInfoAnswer}
		out <- provider.StreamChunk{Done: true}
		close(out)
		resp.Answer = NoInfoAnswer
		return out, resp, nil
	}

	messages := o.buildMessages(question, scope, sources, responseType, opts.History)
	stream, err := o.llm.StreamCompletion(ctx, messages, provider.CompletionOptions{Temperature: 0.3})
	if err != nil {
		o.logger.Printf("stream completion failed: %v", err)
		out := make(chan provider.StreamChunk, 2)
		out <- provider.StreamChunk{Content: ApologyAnswer}
		out <- provider.StreamChunk{Done: true}
		close(out)
		resp.Answer = ApologyAnswer
		return out, resp, nil
	}
	return stream, resp, nil
}

func (o *Orchestrator) buildMessages(question string, scope Scope, sources []search.HybridResult, responseType ResponseType, history []provider.Message) []provider.Message {
	var system, user string
	switch responseType {
	case ResponseDirect:
		system = directSystemPrompt(scope.Subject)
		user = directUserPrompt(question, sources)
	case ResponseContextual:
		system = contextualSystemPrompt(scope.Subject)
		user = contextualUserPrompt(question, sources)
	default:
		system = generalSystemPrompt(scope.Subject)
		user = generalUserPrompt(question, scope.Subject, scope.Category)
	}

	messages := make([]provider.Message, 0, len(history)+2)
	messages = append(messages, provider.Message{Role: "system", Content: system})
	// keep only the tail of the conversation
	if len(history) > 6 {
		history = history[len(history)-6:]
	}
	messages = append(messages, history...)
	messages = append(messages, provider.Message{Role: "user", Content: user})
	return messages
}

// classify decides the response type from the mean similarity of the vector
// hits alone; web hits never raise the grounding level.
func classify(sources []search.HybridResult) ResponseType {
	var (
		count  int
		simSum float64
	)
	for _, s := range sources {
		if s.Source == search.SourceVector {
			count++
			simSum += s.Similarity
		}
	}
	if count == 0 {
		return ResponseGeneral
	}
	avg := simSum / float64(count)
	switch {
	case avg >= directSimilarity:
		return ResponseDirect
	case avg >= contextualSimilarity:
		return ResponseContextual
	default:
		return ResponseGeneral
	}
}

// AnswerConfidence scores the final answer. This is distinct from the
// retrieval confidence in search.Evaluate: it starts from the response type
// and discounts by mean similarity and source count, both taken over the
// vector hits alone since web hits carry no similarity.
func AnswerConfidence(sources []search.HybridResult, responseType ResponseType) float64 {
	var (
		vectorCount int
		simSum      float64
	)
	for _, s := range sources {
		if s.Source == search.SourceVector {
			vectorCount++
			simSum += s.Similarity
		}
	}
	if vectorCount == 0 {
		if responseType == ResponseGeneral {
			return 0.6
		}
		return 0.3
	}
	avgSimilarity := simSum / float64(vectorCount)

	n := vectorCount
	if n > 5 {
		n = 5
	}
	sourceCount := float64(n) / 5

	var base float64
	switch responseType {
	case ResponseDirect:
		base = 0.9
	case ResponseContextual:
		base = 0.75
	case ResponseGeneral:
		base = 0.6
	}

	confidence := base * (0.7 + 0.3*avgSimilarity) * (0.8 + 0.2*sourceCount)
	if confidence < 0.1 {
		confidence = 0.1
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}
