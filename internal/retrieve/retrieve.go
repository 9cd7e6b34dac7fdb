// Package retrieve answers assistant tool calls with formatted
// knowledge-base context.
//
// The assistant-facing contract is "always return text": any internal
// failure degrades to an apologetic message, never an error, so a broken
// search cannot crash a conversation.
package retrieve

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/printdesk/printdesk/internal/knowledge"
	"github.com/printdesk/printdesk/internal/settings"
)

// NoResults is returned when nothing clears the similarity threshold. The
// orchestrator compares against it to skip the synthesis stage.
const NoResults = "В базе знаний ничего не найдено по этому запросу."

// unavailable is the user-safe degradation for any internal failure.
const unavailable = "Извините, сейчас не получается выполнить поиск по базе знаний. Попробуйте, пожалуйста, позже."

// delimiter separates formatted results.
const delimiter = "\n---\n"

// manufacturers is the fixed vocabulary scanned for in technical queries.
// First match wins; order puts longer names before their substrings.
var manufacturers = []string{
	"kyocera",
	"lexmark",
	"brother",
	"pantum",
	"epson",
	"canon",
	"xerox",
	"ricoh",
	"samsung",
	"hp",
}

// Embedder produces one vector per input text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher is the store surface the retriever reads from.
type Searcher interface {
	Search(ctx context.Context, vector []float32, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// SettingsReader supplies runtime thresholds.
type SettingsReader interface {
	Prefix(ctx context.Context, prefix string) (settings.Values, error)
}

// Retriever serves one knowledge-base category. The technical variant
// additionally extracts manufacturer and device-model filters from the
// query text.
type Retriever struct {
	category string
	embedder Embedder
	searcher Searcher
	settings SettingsReader
	logger   *slog.Logger
}

// NewGeneral retrieves from the general category: pricing, delivery,
// services.
func NewGeneral(embedder Embedder, searcher Searcher, settings SettingsReader, logger *slog.Logger) *Retriever {
	return newRetriever(knowledge.CategoryGeneral, embedder, searcher, settings, logger)
}

// NewTechnical retrieves from the technical category with
// manufacturer/model filter extraction.
func NewTechnical(embedder Embedder, searcher Searcher, settings SettingsReader, logger *slog.Logger) *Retriever {
	return newRetriever(knowledge.CategoryTechnical, embedder, searcher, settings, logger)
}

// NewLegal retrieves from the legal category: offer, privacy, returns.
func NewLegal(embedder Embedder, searcher Searcher, settings SettingsReader, logger *slog.Logger) *Retriever {
	return newRetriever(knowledge.CategoryLegal, embedder, searcher, settings, logger)
}

func newRetriever(category string, embedder Embedder, searcher Searcher, sr SettingsReader, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		category: category,
		embedder: embedder,
		searcher: searcher,
		settings: sr,
		logger:   logger.With("retriever", category),
	}
}

// Category returns the knowledge-base category this retriever serves.
func (r *Retriever) Category() string {
	return r.category
}

// Retrieve turns a raw user query into formatted context. Always returns
// text: NoResults when nothing matches, an apologetic message on internal
// failure.
func (r *Retriever) Retrieve(ctx context.Context, rawQuery string) string {
	query := strings.ToLower(strings.TrimSpace(rawQuery))
	if query == "" {
		return NoResults
	}

	parsed := r.parseQuery(query)

	// A failed settings read falls back to defaults; the search still runs.
	values, err := r.settings.Prefix(ctx, "bot_kb_")
	if err != nil {
		r.logger.Warn("settings unavailable, using defaults", "error", err)
	}
	threshold := values.Float(settings.KeyMatchThreshold, settings.DefaultMatchThreshold)
	count := values.Int(settings.KeyMatchCount, settings.DefaultMatchCount)

	vectors, err := r.embedder.Embed(ctx, []string{parsed.cleaned})
	if err != nil {
		r.logger.Error("query embedding failed", "error", err)
		return unavailable
	}

	opts := []knowledge.SearchOption{
		knowledge.WithFilter(knowledge.MetaCategory, r.category),
		knowledge.WithThreshold(threshold),
		knowledge.WithLimit(count),
	}
	if parsed.manufacturer != "" {
		opts = append(opts, knowledge.WithFilter(knowledge.MetaManufacturer, parsed.manufacturer))
	}
	if len(parsed.models) > 0 {
		opts = append(opts, knowledge.WithAnyOf(knowledge.MetaDeviceModels, parsed.models))
	}

	results, err := r.searcher.Search(ctx, vectors[0], opts...)
	if err != nil {
		r.logger.Error("knowledge search failed", "error", err)
		return unavailable
	}

	if len(results) == 0 {
		r.logger.Debug("no results", "query", parsed.cleaned,
			"manufacturer", parsed.manufacturer, "models", parsed.models)
		return NoResults
	}

	return formatResults(results)
}

type parsedQuery struct {
	cleaned      string
	manufacturer string
	models       []string
}

// parseQuery extracts metadata filters from an already-lowercased query.
// Non-technical variants pass the query through with only whitespace
// collapsing.
func (r *Retriever) parseQuery(query string) parsedQuery {
	if r.category != knowledge.CategoryTechnical {
		return parsedQuery{cleaned: collapse(query)}
	}

	var manufacturer string
	for _, m := range manufacturers {
		if strings.Contains(query, m) {
			manufacturer = m
			break
		}
	}

	models := modelTokens(query, manufacturer)

	// Bare model numbers pollute semantic similarity more than they help,
	// so everything that became a filter leaves the embedded text.
	cleaned := query
	if manufacturer != "" {
		cleaned = strings.ReplaceAll(cleaned, manufacturer, " ")
	}
	for _, m := range models {
		cleaned = strings.ReplaceAll(cleaned, m, " ")
	}

	return parsedQuery{cleaned: collapse(cleaned), manufacturer: manufacturer, models: models}
}

// modelTokens picks model-number-shaped tokens: split on everything that
// is not a letter, digit or hyphen, keep tokens longer than 2 runes that
// carry at least one digit and are not a manufacturer name.
func modelTokens(query, manufacturer string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	var models []string
	seen := make(map[string]bool)
	for _, tok := range fields {
		if utf8.RuneCountInString(tok) <= 2 || seen[tok] {
			continue
		}
		if tok == manufacturer || isManufacturer(tok) {
			continue
		}
		if !strings.ContainsFunc(tok, unicode.IsDigit) {
			continue
		}
		seen[tok] = true
		models = append(models, tok)
	}
	return models
}

func isManufacturer(tok string) bool {
	for _, m := range manufacturers {
		if tok == m {
			return true
		}
	}
	return false
}

// collapse squeezes whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// formatResults renders hits in similarity order, best first.
func formatResults(results []knowledge.Result) string {
	parts := make([]string, len(results))
	for i, res := range results {
		parts[i] = "Source: " + res.SourceFile + "\nContent: " + res.Content
	}
	return strings.Join(parts, delimiter)
}
