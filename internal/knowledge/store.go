// Package knowledge persists knowledge-base chunks with vector embeddings
// in PostgreSQL + pgvector and serves filtered similarity search.
//
// The Store works on vectors it is handed; embedding happens upstream (see
// internal/ai and internal/ingest). Similarity is cosine, scored as
// 1 - distance, so 1.0 means identical direction.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"
)

var (
	// ErrStoreWrite indicates a failed insert or delete.
	ErrStoreWrite = errors.New("knowledge store write failed")

	// ErrStoreRead indicates a failed search or listing.
	ErrStoreRead = errors.New("knowledge store read failed")
)

// VectorDimension is the embedding width the kb_chunks schema declares.
// gemini-embedding-001 is truncated to this via OutputDimensionality.
const VectorDimension int32 = 768

// searchTimeout caps a single vector search so a slow index scan cannot
// stall a conversation turn indefinitely.
const searchTimeout = 10 * time.Second

// Store manages chunk persistence and similarity search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries Querier
	logger  *slog.Logger
}

// New creates a Store over the given querier. Pass NewQueries(pool) in
// production, a mock in tests.
func New(queries Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{queries: queries, logger: logger}
}

// Upsert writes one chunk with its vector and returns the stored id.
// Dedup across re-ingests is by Clear-before-ingest, not by a natural key;
// calling Upsert twice with the same chunk stores it twice.
func (s *Store) Upsert(ctx context.Context, chunk Chunk, vector []float32) (int64, error) {
	if len(vector) == 0 {
		return 0, fmt.Errorf("%w: empty vector for %s#%d", ErrStoreWrite, chunk.SourceFile, chunk.Number)
	}

	metadata, err := marshalMetadata(chunk)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	id, err := s.queries.InsertChunk(ctx, UpsertParams{
		SourceFile: chunk.SourceFile,
		Number:     chunk.Number,
		Content:    chunk.Content,
		Text:       chunk.Text,
		Metadata:   metadata,
		Embedding:  pgvector.NewVector(vector),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	s.logger.Debug("stored chunk", "id", id, "source", chunk.SourceFile, "number", chunk.Number)
	return id, nil
}

// Search returns chunks similar to the query vector, best first. Filters
// narrow the candidate set before ranking. Nothing above the threshold is
// an empty slice, not an error.
func (s *Store) Search(ctx context.Context, vector []float32, opts ...SearchOption) ([]Result, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrStoreRead)
	}

	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	rows, err := s.queries.SearchRows(queryCtx, SearchParams{
		Embedding: pgvector.NewVector(vector),
		Filters:   cfg.filters,
		Threshold: cfg.threshold,
		Limit:     cfg.limit,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: search timeout: %v", ErrStoreRead, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}

	return s.rowsToResults(rows), nil
}

// Clear deletes chunks in scope. A full clear also restarts the id
// sequence; scoped clears leave it alone since lower ids may still exist.
func (s *Store) Clear(ctx context.Context, scope Scope) error {
	deleted, err := s.queries.DeleteRows(ctx, scope)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	if scope.All() {
		if err := s.queries.ResetIdentity(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
	}

	s.logger.Info("cleared chunks", "deleted", deleted,
		"source", scope.SourceFile, "category", scope.Category)
	return nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	count, err := s.queries.CountRows(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	return count, nil
}

// List returns stored chunks without similarity ranking, for inspection
// tooling. Empty sourceFile lists everything up to limit.
func (s *Store) List(ctx context.Context, sourceFile string, limit int32) ([]StoredChunk, error) {
	const maxListLimit = 1000
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("%w: limit must be in 1..%d, got %d", ErrStoreRead, maxListLimit, limit)
	}

	rows, err := s.queries.ListRows(ctx, sourceFile, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}

	chunks := make([]StoredChunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, s.rowToStored(row))
	}
	return chunks, nil
}

func (s *Store) rowsToResults(rows []Row) []Result {
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			StoredChunk: s.rowToStored(row),
			Similarity:  row.Similarity,
		})
	}
	return results
}

func (s *Store) rowToStored(row Row) StoredChunk {
	var metadata map[string]any
	if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
		s.logger.Warn("unparseable chunk metadata", "id", row.ID, "error", err)
		metadata = map[string]any{}
	}

	return StoredChunk{
		ID: row.ID,
		Chunk: Chunk{
			SourceFile: row.SourceFile,
			Number:     row.Number,
			Content:    row.Content,
			Text:       row.Text,
			Metadata:   metadata,
		},
	}
}

// marshalMetadata renders the chunk's bag as JSONB, stamping the source
// filename so it travels with search results.
func marshalMetadata(chunk Chunk) ([]byte, error) {
	bag := make(map[string]any, len(chunk.Metadata)+1)
	for k, v := range chunk.Metadata {
		bag[k] = v
	}
	if _, ok := bag[MetaSourceFile]; !ok {
		bag[MetaSourceFile] = chunk.SourceFile
	}

	data, err := json.Marshal(bag)
	if err != nil {
		return nil, fmt.Errorf("marshalling metadata: %w", err)
	}
	return data, nil
}
