// Package chunk splits document text into bounded, overlapping fragments
// prepared for embedding.
//
// Two modes exist. Plain-text mode slides a fixed-size window across
// whitespace-normalized text. HTML mode walks block-level elements in
// document order, keeping each element's markup for display and its plain
// text for embedding.
//
// Chunking is deterministic: identical input always produces identical
// chunks.
package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Defaults for chunk geometry, in characters.
const (
	DefaultSize    = 500
	DefaultOverlap = 50
	DefaultMinText = 10
)

// blockSelector matches the block-level semantic elements emitted by HTML
// mode, in document order.
const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, pre, table"

// Chunk is one bounded fragment of a source document.
type Chunk struct {
	// SourceFile is the originating document's filename.
	SourceFile string

	// Number is 1-based and consecutive within a document.
	Number int

	// Content is the human-readable form. HTML chunks keep their markup,
	// including the container tag, so they render correctly when shown.
	Content string

	// Text is the plain form used for embedding.
	Text string
}

// Chunker splits documents according to a fixed geometry.
type Chunker struct {
	size    int
	overlap int
	minText int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSize sets the window size in characters.
func WithSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets how many characters consecutive windows share.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithMinText sets the minimum plain-text length for an HTML element to be
// emitted. Shorter elements are noise and are skipped.
func WithMinText(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minText = n
		}
	}
}

// New creates a Chunker. An overlap that would prevent the window from
// advancing is clamped to a quarter of the size.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:    DefaultSize,
		overlap: DefaultOverlap,
		minText: DefaultMinText,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// ChunkText splits plain text with a sliding window.
//
// Whitespace runs (including newlines) collapse to single spaces first, so
// window positions depend only on textual content. Text shorter than one
// window yields exactly one chunk; empty text yields none.
func (c *Chunker) ChunkText(sourceFile, text string) []Chunk {
	normalized := normalize(text)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	step := c.size - c.overlap

	var chunks []Chunk
	number := 1
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		window := string(runes[start:end])
		chunks = append(chunks, Chunk{
			SourceFile: sourceFile,
			Number:     number,
			Content:    window,
			Text:       window,
		})
		number++
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// ChunkHTML splits an HTML document by its block-level elements.
//
// Each paragraph, heading, list item, preformatted block and table becomes
// one chunk: Content keeps the element's outer markup, Text is its extracted
// plain text. Elements whose plain text is shorter than the configured
// minimum are dropped; numbering counts emitted chunks only, so it stays
// consecutive.
func (c *Chunker) ChunkHTML(sourceFile, html string) ([]Chunk, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	var chunks []Chunk
	number := 1
	doc.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		// Nested blocks (li inside table, p inside li) would duplicate
		// content; only emit elements with no selected ancestor.
		if sel.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}

		text := normalize(sel.Text())
		if utf8.RuneCountInString(text) < c.minText {
			return
		}

		markup, err := goquery.OuterHtml(sel)
		if err != nil {
			markup = text
		}

		chunks = append(chunks, Chunk{
			SourceFile: sourceFile,
			Number:     number,
			Content:    strings.TrimSpace(markup),
			Text:       text,
		})
		number++
	})

	return chunks, nil
}

// normalize collapses all whitespace runs to single spaces and trims the
// ends.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
