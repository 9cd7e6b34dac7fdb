// Package ingest turns uploaded documents into embedded knowledge-base
// chunks: extract, chunk, embed, store.
//
// Embedding and writing are strictly sequential per chunk. A failure on
// chunk N never rolls back chunks 1..N-1; each failure is reported
// individually so an operator can see exactly what is missing.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/printdesk/printdesk/internal/chunk"
	"github.com/printdesk/printdesk/internal/knowledge"
)

// Document is one uploaded source file.
type Document struct {
	ID          string
	Name        string
	ContentType string
	Category    string
	Data        []byte
	Metadata    map[string]any
}

// Source lists and fetches uploaded documents. Implemented over object
// storage by the backoffice; faked in tests.
type Source interface {
	ListDocuments(ctx context.Context, category string) ([]Document, error)
	GetDocument(ctx context.Context, id string) (Document, error)
}

// Embedder produces one vector per input text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the persistence surface the pipeline writes to.
type Store interface {
	Upsert(ctx context.Context, chunk knowledge.Chunk, vector []float32) (int64, error)
	Clear(ctx context.Context, scope knowledge.Scope) error
}

// Failure is one chunk that did not make it into the store.
type Failure struct {
	SourceFile string
	Number     int
	Err        string
}

// Report aggregates one ingestion run.
type Report struct {
	Successful int
	Failed     int
	Failures   []Failure
}

func (r *Report) fail(sourceFile string, number int, err error) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{SourceFile: sourceFile, Number: number, Err: err.Error()})
}

func (r *Report) merge(other *Report) {
	r.Successful += other.Successful
	r.Failed += other.Failed
	r.Failures = append(r.Failures, other.Failures...)
}

// String renders the operator summary.
func (r *Report) String() string {
	return fmt.Sprintf("%d chunks stored, %d failed", r.Successful, r.Failed)
}

// Pipeline orchestrates document source, extractor, chunker, embedder and
// store for one ingestion run.
type Pipeline struct {
	extractor *Extractor
	chunker   *chunk.Chunker
	embedder  Embedder
	store     Store
	logger    *slog.Logger
}

// NewPipeline wires a Pipeline.
func NewPipeline(extractor *Extractor, chunker *chunk.Chunker, embedder Embedder, store Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		logger:    logger,
	}
}

// Ingest processes one document end to end. Document-level problems
// (unsupported type, unreadable bytes) return an error; chunk-level
// problems are collected in the report. A document that extracts to
// nothing yields an empty report, not an error.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (*Report, error) {
	extracted, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}

	var chunks []chunk.Chunk
	if extracted.HTML != "" {
		chunks, err = p.chunker.ChunkHTML(doc.Name, extracted.HTML)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrParse, doc.Name, err)
		}
	} else {
		chunks = p.chunker.ChunkText(doc.Name, extracted.Text)
	}

	report := &Report{}
	metadata := chunkMetadata(doc, extracted)

	for _, ck := range chunks {
		if err := ctx.Err(); err != nil {
			report.fail(ck.SourceFile, ck.Number, err)
			continue
		}

		vectors, err := p.embedder.Embed(ctx, []string{ck.Text})
		if err != nil {
			p.logger.Warn("chunk embedding failed", "source", ck.SourceFile, "number", ck.Number, "error", err)
			report.fail(ck.SourceFile, ck.Number, err)
			continue
		}

		stored := knowledge.Chunk{
			SourceFile: ck.SourceFile,
			Number:     ck.Number,
			Content:    ck.Content,
			Text:       ck.Text,
			Metadata:   metadata,
		}
		if _, err := p.store.Upsert(ctx, stored, vectors[0]); err != nil {
			p.logger.Warn("chunk write failed", "source", ck.SourceFile, "number", ck.Number, "error", err)
			report.fail(ck.SourceFile, ck.Number, err)
			continue
		}
		report.Successful++
	}

	p.logger.Info("document ingested", "document", doc.Name,
		"successful", report.Successful, "failed", report.Failed)
	return report, nil
}

// Reindex clears the scope and re-ingests every document the source lists
// for it. Readers during the window may see a partially populated store;
// there is no spanning transaction.
func (p *Pipeline) Reindex(ctx context.Context, source Source, category string) (*Report, error) {
	if err := p.store.Clear(ctx, knowledge.Scope{Category: category}); err != nil {
		return nil, fmt.Errorf("clearing before reindex: %w", err)
	}

	docs, err := source.ListDocuments(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	report := &Report{}
	for _, doc := range docs {
		docReport, err := p.Ingest(ctx, doc)
		if err != nil {
			// A dead document must not abort the rest of the reindex.
			p.logger.Error("document skipped during reindex", "document", doc.Name, "error", err)
			report.fail(doc.Name, 0, err)
			continue
		}
		report.merge(docReport)
	}

	p.logger.Info("reindex finished", "category", category,
		"documents", len(docs), "successful", report.Successful, "failed", report.Failed)
	return report, nil
}

// chunkMetadata merges admin-supplied metadata with the pipeline's own
// keys. Category wins over a conflicting admin value; the title is kept
// when extraction found one.
func chunkMetadata(doc Document, extracted Extracted) map[string]any {
	meta := make(map[string]any, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	if doc.Category != "" {
		meta[knowledge.MetaCategory] = doc.Category
	}
	if extracted.Title != "" {
		meta["title"] = extracted.Title
	}
	return meta
}
