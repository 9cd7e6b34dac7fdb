package retrieve

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/printdesk/printdesk/internal/knowledge"
	"github.com/printdesk/printdesk/internal/log"
	"github.com/printdesk/printdesk/internal/settings"
)

type mockEmbedder struct {
	texts []string
	err   error
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.texts = append(m.texts, texts...)
	if m.err != nil {
		return nil, m.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

type mockSearcher struct {
	results []knowledge.Result
	err     error
	opts    [][]knowledge.SearchOption
}

func (m *mockSearcher) Search(_ context.Context, _ []float32, opts ...knowledge.SearchOption) ([]knowledge.Result, error) {
	m.opts = append(m.opts, opts)
	return m.results, m.err
}

type mockSettings struct {
	values settings.Values
	err    error
}

func (m *mockSettings) Prefix(context.Context, string) (settings.Values, error) {
	return m.values, m.err
}

func result(sourceFile, content string, similarity float64) knowledge.Result {
	return knowledge.Result{
		StoredChunk: knowledge.StoredChunk{
			Chunk: knowledge.Chunk{SourceFile: sourceFile, Content: content},
		},
		Similarity: similarity,
	}
}

func TestTechnicalQueryParsing(t *testing.T) {
	r := NewTechnical(&mockEmbedder{}, &mockSearcher{}, &mockSettings{}, log.NewNop())

	tests := []struct {
		name             string
		query            string
		wantManufacturer string
		wantModels       []string
		cleanedExcludes  []string
		cleanedIncludes  []string
	}{
		{
			name:             "manufacturer and model",
			query:            "нужен картридж для epson l3150",
			wantManufacturer: "epson",
			wantModels:       []string{"l3150"},
			cleanedExcludes:  []string{"epson", "l3150"},
			cleanedIncludes:  []string{"картридж"},
		},
		{
			name:             "model with hyphen",
			query:            "тонер для brother dcp-7057",
			wantManufacturer: "brother",
			wantModels:       []string{"dcp-7057"},
			cleanedExcludes:  []string{"brother", "dcp-7057"},
		},
		{
			name:       "no manufacturer",
			query:      "какая бумага подходит",
			wantModels: nil,
		},
		{
			name:             "words without digits are not models",
			query:            "замятие бумаги в принтере canon",
			wantManufacturer: "canon",
			wantModels:       nil,
			cleanedIncludes:  []string{"замятие", "бумаги"},
		},
		{
			name:             "short tokens dropped",
			query:            "hp 15 чернила",
			wantManufacturer: "hp",
			wantModels:       nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed := r.parseQuery(tc.query)
			if parsed.manufacturer != tc.wantManufacturer {
				t.Errorf("manufacturer = %q, want %q", parsed.manufacturer, tc.wantManufacturer)
			}
			if len(parsed.models) != len(tc.wantModels) {
				t.Fatalf("models = %v, want %v", parsed.models, tc.wantModels)
			}
			for i, m := range tc.wantModels {
				if parsed.models[i] != m {
					t.Errorf("models[%d] = %q, want %q", i, parsed.models[i], m)
				}
			}
			for _, s := range tc.cleanedExcludes {
				if strings.Contains(parsed.cleaned, s) {
					t.Errorf("cleaned %q still contains %q", parsed.cleaned, s)
				}
			}
			for _, s := range tc.cleanedIncludes {
				if !strings.Contains(parsed.cleaned, s) {
					t.Errorf("cleaned %q lost %q", parsed.cleaned, s)
				}
			}
		})
	}
}

func TestGeneralQueryParsing(t *testing.T) {
	r := NewGeneral(&mockEmbedder{}, &mockSearcher{}, &mockSettings{}, log.NewNop())

	parsed := r.parseQuery("сколько стоит печать визиток epson l3150")
	if parsed.manufacturer != "" || len(parsed.models) != 0 {
		t.Errorf("general variant must not extract filters, got %+v", parsed)
	}
	if !strings.Contains(parsed.cleaned, "epson") {
		t.Error("general variant must not strip manufacturer tokens")
	}
}

func TestRetrieveEmbedsCleanedQuery(t *testing.T) {
	embedder := &mockEmbedder{}
	searcher := &mockSearcher{results: []knowledge.Result{result("epson.html", "uses 103 ink", 0.9)}}
	r := NewTechnical(embedder, searcher, &mockSettings{}, log.NewNop())

	r.Retrieve(context.Background(), "Нужен картридж для Epson L3150")

	if len(embedder.texts) != 1 {
		t.Fatalf("embed calls = %d", len(embedder.texts))
	}
	embedded := embedder.texts[0]
	if strings.Contains(embedded, "epson") || strings.Contains(embedded, "l3150") {
		t.Errorf("embedded query %q must exclude extracted tokens", embedded)
	}
	if strings.Contains(embedded, "Epson") {
		t.Errorf("embedded query %q must be lower-cased", embedded)
	}
	if !strings.Contains(embedded, "картридж") {
		t.Errorf("embedded query %q lost its semantic content", embedded)
	}
}

func TestRetrieveFormatsResults(t *testing.T) {
	searcher := &mockSearcher{results: []knowledge.Result{
		result("epson.html", "L3150 uses the 103 ink series.", 0.91),
		result("inks.html", "Ink series compatibility table.", 0.74),
	}}
	r := NewTechnical(&mockEmbedder{}, searcher, &mockSettings{}, log.NewNop())

	out := r.Retrieve(context.Background(), "какие чернила подходят")

	want := "Source: epson.html\nContent: L3150 uses the 103 ink series.\n---\nSource: inks.html\nContent: Ink series compatibility table."
	if out != want {
		t.Errorf("formatted context:\n%q\nwant:\n%q", out, want)
	}
}

func TestRetrieveNoResults(t *testing.T) {
	r := NewLegal(&mockEmbedder{}, &mockSearcher{}, &mockSettings{}, log.NewNop())

	out := r.Retrieve(context.Background(), "условия возврата заказа")
	if out != NoResults {
		t.Errorf("out = %q, want NoResults sentinel", out)
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	embedder := &mockEmbedder{}
	r := NewGeneral(embedder, &mockSearcher{}, &mockSettings{}, log.NewNop())

	out := r.Retrieve(context.Background(), "   ")
	if out != NoResults {
		t.Errorf("out = %q, want NoResults", out)
	}
	if len(embedder.texts) != 0 {
		t.Error("empty query must not reach the embedder")
	}
}

func TestRetrieveNeverErrors(t *testing.T) {
	tests := []struct {
		name     string
		embedder *mockEmbedder
		searcher *mockSearcher
	}{
		{"embedding failure", &mockEmbedder{err: errors.New("quota")}, &mockSearcher{}},
		{"search failure", &mockEmbedder{}, &mockSearcher{err: errors.New("connection lost")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewGeneral(tc.embedder, tc.searcher, &mockSettings{}, log.NewNop())
			out := r.Retrieve(context.Background(), "сколько стоит печать")
			if out != unavailable {
				t.Errorf("out = %q, want user-safe degradation", out)
			}
		})
	}
}

func TestRetrieveSettingsFailureUsesDefaults(t *testing.T) {
	searcher := &mockSearcher{results: []knowledge.Result{result("a.html", "content", 0.8)}}
	r := NewGeneral(&mockEmbedder{}, searcher, &mockSettings{err: errors.New("db down")}, log.NewNop())

	out := r.Retrieve(context.Background(), "стоимость печати")
	if out == unavailable {
		t.Error("settings failure must not break retrieval")
	}
	if len(searcher.opts) != 1 {
		t.Fatal("search must still run with default thresholds")
	}
}

func TestModelTokens(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"deduplicates", "l3150 и ещё раз l3150", []string{"l3150"}},
		{"multiple models", "сравните l3150 и m2070", []string{"l3150", "m2070"}},
		{"pure numbers kept", "ошибка 5100 на canon", []string{"5100"}},
		{"manufacturer excluded", "epson против canon", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := modelTokens(tc.query, "")
			if len(got) != len(tc.want) {
				t.Fatalf("tokens = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("tokens[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}
