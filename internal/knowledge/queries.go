package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// UpsertParams carries one chunk and its vector into the store.
type UpsertParams struct {
	SourceFile string
	Number     int
	Content    string
	Text       string
	Metadata   []byte // JSONB
	Embedding  pgvector.Vector
}

// SearchParams is a filtered vector search.
type SearchParams struct {
	Embedding pgvector.Vector
	Filters   []Filter
	Threshold float64
	Limit     int
}

// Row is one kb_chunks row, with similarity populated by SearchRows only.
type Row struct {
	ID         int64
	SourceFile string
	Number     int
	Content    string
	Text       string
	Metadata   []byte
	Similarity float64
}

// Querier is the database surface Store depends on. The interface belongs
// to the consumer; Queries is the pgx implementation.
type Querier interface {
	InsertChunk(ctx context.Context, arg UpsertParams) (int64, error)
	SearchRows(ctx context.Context, arg SearchParams) ([]Row, error)
	DeleteRows(ctx context.Context, scope Scope) (int64, error)
	ResetIdentity(ctx context.Context) error
	CountRows(ctx context.Context) (int64, error)
	ListRows(ctx context.Context, sourceFile string, limit int32) ([]Row, error)
}

// Queries implements Querier with raw SQL over a pgx pool.
type Queries struct {
	pool *pgxpool.Pool
}

// NewQueries wraps a pool.
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

// InsertChunk writes one chunk row and returns its assigned id.
func (q *Queries) InsertChunk(ctx context.Context, arg UpsertParams) (int64, error) {
	var id int64
	err := q.pool.QueryRow(ctx,
		`INSERT INTO kb_chunks (source_file, chunk_number, content, content_text, metadata, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		arg.SourceFile, arg.Number, arg.Content, arg.Text, arg.Metadata, arg.Embedding,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting chunk %s#%d: %w", arg.SourceFile, arg.Number, err)
	}
	return id, nil
}

// SearchRows runs the filtered cosine search. Filters apply before ranking;
// the threshold cuts after scoring; results come back similarity-descending.
func (q *Queries) SearchRows(ctx context.Context, arg SearchParams) ([]Row, error) {
	where, args, err := buildFilterClause(arg.Filters, 3)
	if err != nil {
		return nil, err
	}

	sql := `SELECT id, source_file, chunk_number, content, content_text, metadata,
	               1 - (embedding <=> $1) AS similarity
	        FROM kb_chunks` + where + `
	        AND 1 - (embedding <=> $1) >= $2
	        ORDER BY embedding <=> $1
	        LIMIT ` + fmt.Sprintf("%d", arg.Limit)

	allArgs := append([]any{arg.Embedding, arg.Threshold}, args...)
	rows, err := q.pool.Query(ctx, sql, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// buildFilterClause renders the metadata predicates. Exact filters use
// JSONB containment (@>), array filters use the jsonb ?| operator against a
// text[] parameter. Parameter numbering starts at next.
func buildFilterClause(filters []Filter, next int) (string, []any, error) {
	clauses := []string{"true"}
	var args []any

	for _, f := range filters {
		if f.ArrayContains {
			clauses = append(clauses, fmt.Sprintf("metadata->%s ?| $%d", quoteLiteral(f.Key), next))
			args = append(args, f.Values)
			next++
			continue
		}
		// Containment payload is always produced by json.Marshal, never
		// concatenated from user input.
		payload, err := json.Marshal(map[string]string{f.Key: f.Value})
		if err != nil {
			return "", nil, fmt.Errorf("marshalling filter %q: %w", f.Key, err)
		}
		clauses = append(clauses, fmt.Sprintf("metadata @> $%d", next))
		args = append(args, payload)
		next++
	}

	return "\n\t        WHERE " + strings.Join(clauses, " AND "), args, nil
}

// quoteLiteral single-quotes a JSON key for use after the -> operator.
// Keys come from compile-time constants, not user input; the escaping is
// belt and braces.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// DeleteRows removes chunks in scope and reports how many went away.
func (q *Queries) DeleteRows(ctx context.Context, scope Scope) (int64, error) {
	switch {
	case scope.All():
		tag, err := q.pool.Exec(ctx, `DELETE FROM kb_chunks`)
		if err != nil {
			return 0, fmt.Errorf("deleting all chunks: %w", err)
		}
		return tag.RowsAffected(), nil
	case scope.SourceFile != "":
		tag, err := q.pool.Exec(ctx, `DELETE FROM kb_chunks WHERE source_file = $1`, scope.SourceFile)
		if err != nil {
			return 0, fmt.Errorf("deleting chunks for %q: %w", scope.SourceFile, err)
		}
		return tag.RowsAffected(), nil
	default:
		payload, err := json.Marshal(map[string]string{MetaCategory: scope.Category})
		if err != nil {
			return 0, fmt.Errorf("marshalling category scope: %w", err)
		}
		tag, err := q.pool.Exec(ctx, `DELETE FROM kb_chunks WHERE metadata @> $1`, payload)
		if err != nil {
			return 0, fmt.Errorf("deleting chunks for category %q: %w", scope.Category, err)
		}
		return tag.RowsAffected(), nil
	}
}

// ResetIdentity restarts the id sequence so re-ingested content gets
// fresh, low, debuggable ids.
func (q *Queries) ResetIdentity(ctx context.Context) error {
	if _, err := q.pool.Exec(ctx, `ALTER SEQUENCE kb_chunks_id_seq RESTART WITH 1`); err != nil {
		return fmt.Errorf("resetting chunk id sequence: %w", err)
	}
	return nil
}

// CountRows counts all stored chunks.
func (q *Queries) CountRows(ctx context.Context) (int64, error) {
	var count int64
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM kb_chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// ListRows returns chunks in (source_file, chunk_number) order, optionally
// restricted to one source file.
func (q *Queries) ListRows(ctx context.Context, sourceFile string, limit int32) ([]Row, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if sourceFile != "" {
		rows, err = q.pool.Query(ctx,
			`SELECT id, source_file, chunk_number, content, content_text, metadata, 0::float8
			 FROM kb_chunks WHERE source_file = $1
			 ORDER BY chunk_number LIMIT $2`,
			sourceFile, limit)
	} else {
		rows, err = q.pool.Query(ctx,
			`SELECT id, source_file, chunk_number, content, content_text, metadata, 0::float8
			 FROM kb_chunks ORDER BY source_file, chunk_number LIMIT $1`,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.SourceFile, &r.Number, &r.Content, &r.Text, &r.Metadata, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}
	return out, nil
}
