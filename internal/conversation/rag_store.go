package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/wolfman30/realty-inbox/pkg/logging"
)

// EmbeddingDimensions matches project_documents.embedding.
const EmbeddingDimensions = 1024

// DocumentChunk is one piece of project material to index.
type DocumentChunk struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Passage is a retrieved chunk with its cosine similarity to the query.
type Passage struct {
	ID         uuid.UUID
	Title      string
	Content    string
	Similarity float64
}

// PGVectorStore stores project documents and runs cosine searches with pgvector.
type PGVectorStore struct {
	pool     PgxPool
	embedder Embedder
	logger   *logging.Logger
}

func NewPGVectorStore(pool PgxPool, embedder Embedder, logger *logging.Logger) *PGVectorStore {
	if pool == nil {
		panic("conversation: vector store pool cannot be nil")
	}
	if embedder == nil {
		panic("conversation: embedder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PGVectorStore{pool: pool, embedder: embedder, logger: logger}
}

// AddDocuments embeds and stores chunks under a project. Blank chunks are skipped.
func (s *PGVectorStore) AddDocuments(ctx context.Context, tenantID, projectID uuid.UUID, chunks []DocumentChunk) (int, error) {
	kept := make([]DocumentChunk, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		content := strings.TrimSpace(c.Content)
		if content == "" {
			continue
		}
		c.Content = content
		kept = append(kept, c)
		texts = append(texts, strings.TrimSpace(c.Title+"\n"+content))
	}
	if len(kept) == 0 {
		return 0, nil
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("conversation: embed documents: %w", err)
	}
	if len(vectors) != len(kept) {
		return 0, errors.New("conversation: embedding response size mismatch")
	}

	query := `
		INSERT INTO project_documents (tenant_id, project_id, title, content, embedding)
		VALUES ($1, $2, $3, $4, $5::vector)
	`
	for i, chunk := range kept {
		if _, err := s.pool.Exec(ctx, query, tenantID, projectID, chunk.Title, chunk.Content, pgvector.NewVector(vectors[i])); err != nil {
			return i, fmt.Errorf("conversation: insert document: %w", err)
		}
	}
	s.logger.Info("project documents indexed", "tenant_id", tenantID, "project_id", projectID, "count", len(kept))
	return len(kept), nil
}

// SearchSimilar returns up to topK passages of one project, nearest first.
func (s *PGVectorStore) SearchSimilar(ctx context.Context, tenantID, projectID uuid.UUID, vector []float32, topK int) ([]Passage, error) {
	if topK <= 0 {
		topK = 4
	}
	query := `
		SELECT id, title, content, 1 - (embedding <=> $3::vector) AS similarity
		FROM project_documents
		WHERE tenant_id = $1 AND project_id = $2
		ORDER BY embedding <=> $3::vector
		LIMIT $4
	`
	rows, err := s.pool.Query(ctx, query, tenantID, projectID, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("conversation: vector search: %w", err)
	}
	defer rows.Close()

	var passages []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.Similarity); err != nil {
			return nil, fmt.Errorf("conversation: scan passage: %w", err)
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: vector search: %w", err)
	}
	return passages, nil
}

// Embed exposes the store's embedder for query vectors.
func (s *PGVectorStore) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embedder.Embed(ctx, texts)
}

// RetrievalResult is what a document search found. Found is false when no
// passage cleared the similarity threshold.
type RetrievalResult struct {
	Passages []Passage
	Found    bool
}

type vectorSearcher interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	SearchSimilar(ctx context.Context, tenantID, projectID uuid.UUID, vector []float32, topK int) ([]Passage, error)
}

// ProjectRetriever answers queries from a single project's documents.
type ProjectRetriever struct {
	store         vectorSearcher
	minSimilarity float64
	topK          int
}

func NewProjectRetriever(store vectorSearcher, minSimilarity float64, topK int) *ProjectRetriever {
	if store == nil {
		panic("conversation: retriever store cannot be nil")
	}
	if minSimilarity <= 0 {
		minSimilarity = 0.75
	}
	if topK <= 0 {
		topK = 4
	}
	return &ProjectRetriever{store: store, minSimilarity: minSimilarity, topK: topK}
}

func (r *ProjectRetriever) Search(ctx context.Context, tenantID, projectID uuid.UUID, query string) (RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || projectID == uuid.Nil {
		return RetrievalResult{}, nil
	}
	vectors, err := r.store.Embed(ctx, []string{query})
	if err != nil {
		return RetrievalResult{}, fmt.Errorf("conversation: embed query: %w", err)
	}
	if len(vectors) == 0 {
		return RetrievalResult{}, errors.New("conversation: embedding response was empty")
	}
	passages, err := r.store.SearchSimilar(ctx, tenantID, projectID, vectors[0], r.topK)
	if err != nil {
		return RetrievalResult{}, err
	}
	kept := passages[:0]
	for _, p := range passages {
		if p.Similarity >= r.minSimilarity {
			kept = append(kept, p)
		}
	}
	return RetrievalResult{Passages: kept, Found: len(kept) > 0}, nil
}
