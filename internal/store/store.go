package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	DB *sql.DB
}

// DefaultEmbeddingDimensions indicates the expected length of vectors stored in pgvector columns.
const DefaultEmbeddingDimensions = 1536

// DocumentRecord is a source document as stored.
type DocumentRecord struct {
	ID        string
	Title     string
	Content   string
	CreatedAt time.Time
}

// ChunkRecord is one searchable chunk of a document.
type ChunkRecord struct {
	ID              string
	DocumentID      string
	Title           string
	Content         string
	Subject         string
	Category        string
	ChunkIndex      int
	ChunkType       string
	ImportanceScore float64
	Metadata        map[string]interface{}
}

// ChunkSearchResult is a chunk scored against a query vector.
type ChunkSearchResult struct {
	ChunkID         string
	Title           string
	Content         string
	Subject         string
	Category        string
	ChunkIndex      int
	Similarity      float64
	ImportanceScore float64
	Metadata        map[string]interface{}
}

// SearchOptions filter and bound a similarity search.
type SearchOptions struct {
	Subject             string
	Category            string
	Limit               int
	SimilarityThreshold float64
}

// EmbeddingStatusReport summarises embedding coverage over the chunk table.
type EmbeddingStatusReport struct {
	Total      int      `json:"total_chunks"`
	Embedded   int      `json:"embedded_chunks"`
	MissingIDs []string `json:"missing_embeddings"`
}

// InsertDocument stores a document and returns its generated id.
func (s *Store) InsertDocument(ctx context.Context, title, content string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("title required")
	}
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO documents (id, title, content, created_at)
VALUES ($1,$2,$3,NOW());
`, id, title, content)
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

// InsertChunks stores chunks for a document in one transaction. Chunks
// without an id get one assigned; the assigned ids are written back.
func (s *Store) InsertChunks(ctx context.Context, documentID string, chunks []ChunkRecord) (err error) {
	if documentID == "" {
		return fmt.Errorf("document_id required")
	}
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO knowledge_chunks (id, document_id, title, content, subject, category, chunk_index, chunk_type, importance_score, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW());
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		rec := &chunks[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		meta := rec.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, documentID, rec.Title, rec.Content, rec.Subject, rec.Category, rec.ChunkIndex, rec.ChunkType, rec.ImportanceScore, metaBytes); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	return nil
}

// DeleteDocument removes a document with its chunks and their embeddings.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) (err error) {
	if documentID == "" {
		return fmt.Errorf("document_id required")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
DELETE FROM chunk_embeddings WHERE chunk_id IN (SELECT id FROM knowledge_chunks WHERE document_id=$1)`, documentID); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// UpsertChunkEmbedding stores or updates the embedding vector for a chunk.
func (s *Store) UpsertChunkEmbedding(ctx context.Context, chunkID string, vector []float32, modelName string) error {
	if chunkID == "" {
		return fmt.Errorf("chunk_id required")
	}
	if len(vector) == 0 {
		return fmt.Errorf("embedding vector required")
	}
	vectorLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO chunk_embeddings (chunk_id, embedding, model_name, created_at)
VALUES ($1,$2::vector,$3,NOW())
ON CONFLICT (chunk_id) DO UPDATE SET
  embedding = EXCLUDED.embedding,
  model_name = EXCLUDED.model_name,
  created_at = NOW();
`, chunkID, vectorLiteral, modelName)
	return err
}

// SearchSimilar returns the chunks closest to the query vector using the
// native pgvector distance operator. Similarity and distance are
// complementary, so the threshold becomes a maximum distance.
func (s *Store) SearchSimilar(ctx context.Context, vector []float32, opts SearchOptions) ([]ChunkSearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	maxDistance := math.Max(0, 1-opts.SimilarityThreshold)
	rows, err := s.DB.QueryContext(ctx, `
SELECT kc.id, kc.title, kc.content, kc.subject, kc.category, kc.chunk_index, kc.importance_score, kc.metadata, ce.embedding <=> $1::vector AS distance
FROM knowledge_chunks kc
JOIN chunk_embeddings ce ON kc.id = ce.chunk_id
WHERE ($2 = '' OR kc.subject = $2)
  AND ($3 = '' OR kc.category = $3)
  AND ce.embedding <=> $1::vector <= $4
ORDER BY ce.embedding <=> $1::vector ASC, kc.importance_score DESC
LIMIT $5
`, vecLiteral, opts.Subject, opts.Category, maxDistance, opts.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ChunkSearchResult
	for rows.Next() {
		var (
			res       ChunkSearchResult
			metaBytes []byte
			distance  float64
		)
		if err := rows.Scan(&res.ChunkID, &res.Title, &res.Content, &res.Subject, &res.Category, &res.ChunkIndex, &res.ImportanceScore, &metaBytes, &distance); err != nil {
			return nil, err
		}
		res.Similarity = 1 - distance
		if len(metaBytes) > 0 {
			_ = json.Unmarshal(metaBytes, &res.Metadata)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// scanCandidateLimit caps how many embedded rows the fallback scan pulls.
const scanCandidateLimit = 10000

// ScanSimilar is the fallback search path for databases without the pgvector
// operator: it loads embedded chunks and scores them client-side with the
// supplied cosine function. Ordering matches SearchSimilar; recall is
// bounded by the candidate cap, which prefers high-importance chunks.
func (s *Store) ScanSimilar(ctx context.Context, vector []float32, opts SearchOptions, cosine func(a, b []float32) float64) ([]ChunkSearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT kc.id, kc.title, kc.content, kc.subject, kc.category, kc.chunk_index, kc.importance_score, kc.metadata, ce.embedding::text
FROM knowledge_chunks kc
JOIN chunk_embeddings ce ON kc.id = ce.chunk_id
WHERE ($1 = '' OR kc.subject = $1)
  AND ($2 = '' OR kc.category = $2)
ORDER BY kc.importance_score DESC
LIMIT $3
`, opts.Subject, opts.Category, scanCandidateLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ChunkSearchResult
	for rows.Next() {
		var (
			res        ChunkSearchResult
			metaBytes  []byte
			vecLiteral string
		)
		if err := rows.Scan(&res.ChunkID, &res.Title, &res.Content, &res.Subject, &res.Category, &res.ChunkIndex, &res.ImportanceScore, &metaBytes, &vecLiteral); err != nil {
			return nil, err
		}
		embedded, err := decodeVectorLiteral(vecLiteral)
		if err != nil {
			continue
		}
		similarity := cosine(vector, embedded)
		if similarity < opts.SimilarityThreshold {
			continue
		}
		res.Similarity = similarity
		if len(metaBytes) > 0 {
			_ = json.Unmarshal(metaBytes, &res.Metadata)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ImportanceScore > results[j].ImportanceScore
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// EmbeddingStatus reports how many chunks carry an embedding and which do not.
func (s *Store) EmbeddingStatus(ctx context.Context) (EmbeddingStatusReport, error) {
	var report EmbeddingStatusReport
	rows, err := s.DB.QueryContext(ctx, `
SELECT kc.id, ce.chunk_id IS NOT NULL AS embedded
FROM knowledge_chunks kc
LEFT JOIN chunk_embeddings ce ON kc.id = ce.chunk_id
ORDER BY kc.created_at
`)
	if err != nil {
		return report, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id       string
			embedded bool
		)
		if err := rows.Scan(&id, &embedded); err != nil {
			return report, err
		}
		report.Total++
		if embedded {
			report.Embedded++
		} else {
			report.MissingIDs = append(report.MissingIDs, id)
		}
	}
	return report, rows.Err()
}

// GetChunk loads one chunk by id.
func (s *Store) GetChunk(ctx context.Context, chunkID string) (ChunkRecord, bool, error) {
	var (
		rec       ChunkRecord
		metaBytes []byte
	)
	row := s.DB.QueryRowContext(ctx, `
SELECT id, document_id, title, content, subject, category, chunk_index, chunk_type, importance_score, metadata
FROM knowledge_chunks
WHERE id=$1
`, chunkID)
	err := row.Scan(&rec.ID, &rec.DocumentID, &rec.Title, &rec.Content, &rec.Subject, &rec.Category, &rec.ChunkIndex, &rec.ChunkType, &rec.ImportanceScore, &metaBytes)
	if err == sql.ErrNoRows {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	if len(metaBytes) > 0 {
		_ = json.Unmarshal(metaBytes, &rec.Metadata)
	}
	return rec, true, nil
}

// ListDocuments returns stored documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, title, content, created_at
FROM documents
ORDER BY created_at DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []DocumentRecord
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}

func decodeVectorLiteral(lit string) ([]float32, error) {
	lit = strings.TrimSpace(lit)
	if lit == "" {
		return nil, fmt.Errorf("empty vector literal")
	}
	lit = strings.TrimPrefix(lit, "[")
	lit = strings.TrimSuffix(lit, "]")
	parts := strings.Split(lit, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector element: %w", err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}
