package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hagwon-ai/hagwon/config"
	"github.com/hagwon-ai/hagwon/internal/chunker"
	"github.com/hagwon-ai/hagwon/internal/store"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	InsertDocument(ctx context.Context, title, content string) (string, error)
	InsertChunks(ctx context.Context, documentID string, chunks []store.ChunkRecord) error
	GetChunk(ctx context.Context, chunkID string) (store.ChunkRecord, bool, error)
	UpsertChunkEmbedding(ctx context.Context, chunkID string, vector []float32, modelName string) error
	EmbeddingStatus(ctx context.Context) (store.EmbeddingStatusReport, error)
}

// Embedder produces one vector per text.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Result describes one ingested document.
type Result struct {
	DocumentID string         `json:"document_id"`
	ChunkCount int            `json:"chunk_count"`
	Quality    chunker.Report `json:"quality"`
	Embedding  Tally          `json:"embedding"`
}

// Tally counts embedding outcomes across a batch. Per-item failures are
// tallied, never fatal.
type Tally struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Pipeline turns raw documents into embedded, searchable chunks.
type Pipeline struct {
	store     Store
	embedder  Embedder
	cfg       config.IngestConfig
	modelName string
	logger    *log.Logger
}

func NewPipeline(st Store, embedder Embedder, cfg config.IngestConfig, modelName string) *Pipeline {
	return &Pipeline{
		store:     st,
		embedder:  embedder,
		cfg:       cfg,
		modelName: modelName,
		logger:    log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
	}
}

// IngestDocument chunks, stores and embeds a document. A quality report is
// returned alongside the result; poor chunk quality is logged but does not
// block ingestion.
func (p *Pipeline) IngestDocument(ctx context.Context, title, content string) (Result, error) {
	chunks := chunker.Split(content, title, chunker.Options{
		MaxChunkSize: p.cfg.MaxChunkSize,
		Overlap:      p.cfg.ChunkOverlap,
		Type:         chunker.TypeAuto,
	})

	report := chunker.ValidateQuality(chunks)
	if !report.OK {
		p.logger.Printf("chunk quality issues for %q: %v", title, report.Issues)
	}

	docID, err := p.store.InsertDocument(ctx, title, content)
	if err != nil {
		return Result{}, fmt.Errorf("insert document: %w", err)
	}

	records := make([]store.ChunkRecord, len(chunks))
	for i, c := range chunks {
		meta := map[string]interface{}{
			"start_offset": c.StartOffset,
			"end_offset":   c.EndOffset,
			"total_chunks": c.Total,
		}
		if c.Exam != nil {
			meta["exam_year"] = c.Exam.Year
			meta["exam_round"] = c.Exam.Round
		}
		records[i] = store.ChunkRecord{
			Title:      title,
			Content:    c.Content,
			Subject:    c.Subject,
			ChunkIndex: c.Index,
			ChunkType:  string(c.Type),
			Metadata:   meta,
		}
	}
	if err := p.store.InsertChunks(ctx, docID, records); err != nil {
		return Result{}, fmt.Errorf("insert chunks: %w", err)
	}

	tally := p.embedChunks(ctx, records)

	return Result{
		DocumentID: docID,
		ChunkCount: len(records),
		Quality:    report,
		Embedding:  tally,
	}, nil
}

// EmbedMissing reconciles embedding coverage: it reads the status report and
// embeds exactly the chunks that lack a vector.
func (p *Pipeline) EmbedMissing(ctx context.Context) (Tally, error) {
	status, err := p.store.EmbeddingStatus(ctx)
	if err != nil {
		return Tally{}, fmt.Errorf("embedding status: %w", err)
	}
	if len(status.MissingIDs) == 0 {
		return Tally{}, nil
	}

	records := make([]store.ChunkRecord, 0, len(status.MissingIDs))
	var failed int
	for _, id := range status.MissingIDs {
		rec, ok, err := p.store.GetChunk(ctx, id)
		if err != nil || !ok {
			p.logger.Printf("chunk %s not loadable: %v", id, err)
			failed++
			continue
		}
		records = append(records, rec)
	}

	tally := p.embedChunks(ctx, records)
	tally.Failed += failed
	return tally, nil
}

// embedChunks runs the bounded embedding pool. Concurrency is limited by a
// semaphore and launches are spaced by the configured delay to stay under
// provider rate limits.
func (p *Pipeline) embedChunks(ctx context.Context, records []store.ChunkRecord) Tally {
	concurrency := p.cfg.EmbedConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu    sync.Mutex
		tally Tally
		wg    sync.WaitGroup
	)
	sem := make(chan struct{}, concurrency)

	for i := range records {
		rec := records[i]

		if p.cfg.EmbedDelay > 0 && i > 0 {
			select {
			case <-time.After(p.cfg.EmbedDelay):
			case <-ctx.Done():
				mu.Lock()
				tally.Failed += len(records) - i
				mu.Unlock()
				wg.Wait()
				return tally
			}
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			err := p.embedOne(ctx, rec)
			mu.Lock()
			if err != nil {
				p.logger.Printf("embedding chunk %s failed: %v", rec.ID, err)
				tally.Failed++
			} else {
				tally.Success++
			}
			mu.Unlock()
		}()
	}

	wg.Wait()
	return tally
}

func (p *Pipeline) embedOne(ctx context.Context, rec store.ChunkRecord) error {
	text := rec.Title + "\n\n" + rec.Content
	vec, err := p.embedder.Generate(ctx, text)
	if err != nil {
		return err
	}
	return p.store.UpsertChunkEmbedding(ctx, rec.ID, vec, p.modelName)
}
