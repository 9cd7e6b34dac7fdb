//go:build integration

package knowledge

import (
	"context"
	"fmt"
	"testing"

	"github.com/printdesk/printdesk/internal/log"
	"github.com/printdesk/printdesk/internal/testutil"
)

// Run with: go test -tags=integration ./internal/knowledge/...
func setupStore(t *testing.T) *Store {
	t.Helper()
	return New(NewQueries(testutil.SetupPostgres(t)), log.NewNop())
}

// axisVector points along one of the first three axes so cosine similarity
// between test chunks is exactly 0 or 1.
func axisVector(axis int) []float32 {
	v := make([]float32, VectorDimension)
	v[axis] = 1
	return v
}

func TestStoreRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	chunks := []struct {
		chunk Chunk
		axis  int
	}{
		{Chunk{SourceFile: "pricing.html", Number: 1, Text: "business cards pricing",
			Metadata: map[string]any{MetaCategory: CategoryGeneral}}, 0},
		{Chunk{SourceFile: "epson.html", Number: 1, Text: "L3150 cartridge guide",
			Metadata: map[string]any{
				MetaCategory:     CategoryTechnical,
				MetaManufacturer: "epson",
				MetaDeviceModels: []string{"l3150", "l3250"},
			}}, 1},
		{Chunk{SourceFile: "offer.html", Number: 1, Text: "public offer terms",
			Metadata: map[string]any{MetaCategory: CategoryLegal}}, 2},
	}

	for _, c := range chunks {
		if _, err := store.Upsert(ctx, c.chunk, axisVector(c.axis)); err != nil {
			t.Fatalf("upsert %s: %v", c.chunk.SourceFile, err)
		}
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	t.Run("unfiltered search ranks by similarity", func(t *testing.T) {
		results, err := store.Search(ctx, axisVector(1), WithThreshold(0.9))
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
		if results[0].SourceFile != "epson.html" {
			t.Errorf("top hit = %s", results[0].SourceFile)
		}
		if results[0].Similarity < 0.99 {
			t.Errorf("similarity = %v, want ~1", results[0].Similarity)
		}
	})

	t.Run("category filter excludes other categories", func(t *testing.T) {
		results, err := store.Search(ctx, axisVector(0),
			WithFilter(MetaCategory, CategoryLegal), WithThreshold(0))
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range results {
			if r.Metadata[MetaCategory] != CategoryLegal {
				t.Errorf("leaked category %v from %s", r.Metadata[MetaCategory], r.SourceFile)
			}
		}
	})

	t.Run("device model array filter", func(t *testing.T) {
		results, err := store.Search(ctx, axisVector(1),
			WithAnyOf(MetaDeviceModels, []string{"l3250", "unknown"}),
			WithThreshold(0))
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 || results[0].SourceFile != "epson.html" {
			t.Fatalf("results = %+v", results)
		}
	})

	t.Run("array filter with no overlap matches nothing", func(t *testing.T) {
		results, err := store.Search(ctx, axisVector(1),
			WithAnyOf(MetaDeviceModels, []string{"mfc7860"}), WithThreshold(0))
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 0 {
			t.Fatalf("got %d results, want 0", len(results))
		}
	})

	t.Run("threshold cuts weak hits", func(t *testing.T) {
		results, err := store.Search(ctx, axisVector(0), WithThreshold(0.5))
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
	})

	t.Run("metadata round trip", func(t *testing.T) {
		results, err := store.Search(ctx, axisVector(1), WithThreshold(0.9))
		if err != nil {
			t.Fatal(err)
		}
		meta := results[0].Metadata
		if meta[MetaManufacturer] != "epson" {
			t.Errorf("manufacturer = %v", meta[MetaManufacturer])
		}
		if meta[MetaSourceFile] != "epson.html" {
			t.Errorf("source filename = %v", meta[MetaSourceFile])
		}
	})

	t.Run("scoped clear then full clear", func(t *testing.T) {
		if err := store.Clear(ctx, Scope{SourceFile: "pricing.html"}); err != nil {
			t.Fatal(err)
		}
		count, err := store.Count(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if count != 2 {
			t.Fatalf("count after scoped clear = %d, want 2", count)
		}

		if err := store.Clear(ctx, Scope{}); err != nil {
			t.Fatal(err)
		}
		count, err = store.Count(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Fatalf("count after full clear = %d, want 0", count)
		}

		// Identity restarted: the next insert gets id 1 again.
		id, err := store.Upsert(ctx, Chunk{SourceFile: "fresh.html", Number: 1, Text: "fresh"},
			axisVector(0))
		if err != nil {
			t.Fatal(err)
		}
		if id != 1 {
			t.Errorf("id after reset = %d, want 1", id)
		}
	})
}

func TestStoreList(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		chunk := Chunk{
			SourceFile: "manual.pdf",
			Number:     i,
			Text:       fmt.Sprintf("section %d", i),
			Metadata:   map[string]any{MetaCategory: CategoryTechnical},
		}
		if _, err := store.Upsert(ctx, chunk, axisVector(i%3)); err != nil {
			t.Fatal(err)
		}
	}

	chunks, err := store.List(ctx, "manual.pdf", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	for i, c := range chunks {
		if c.Number != i+1 {
			t.Errorf("chunk %d has number %d, want ascending order", i, c.Number)
		}
	}
}
