package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"os/exec"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// Content types the pipeline accepts. Anything else is rejected before
// chunking.
const (
	TypePDF  = "application/pdf"
	TypeHTML = "text/html"
)

var (
	// ErrParse indicates an unreadable source document.
	ErrParse = errors.New("document parse failed")

	// ErrUnsupportedType indicates a content type the pipeline does not
	// accept.
	ErrUnsupportedType = errors.New("unsupported content type")
)

// CommandRunner abstracts external tool execution so extraction is
// testable without poppler installed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

// Run executes the command and returns its stdout. Stderr is folded into
// the error on failure.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Extracted is chunker-ready document content. Exactly one of Text and
// HTML is set: PDFs yield plain text, HTML documents keep their structure
// for block-level chunking.
type Extracted struct {
	Title string
	Text  string
	HTML  string
}

// Extractor turns raw upload bytes into chunker input.
type Extractor struct {
	runner    CommandRunner
	pdftotext string
	logger    *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithPDFToText overrides the pdftotext binary path.
func WithPDFToText(path string) ExtractorOption {
	return func(e *Extractor) {
		if path != "" {
			e.pdftotext = path
		}
	}
}

// NewExtractor creates an Extractor. Pass ExecRunner{} in production.
func NewExtractor(runner CommandRunner, logger *slog.Logger, opts ...ExtractorOption) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{runner: runner, pdftotext: "pdftotext", logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract dispatches on content type. Parameters after a semicolon
// (charset and friends) are ignored.
func (e *Extractor) Extract(ctx context.Context, doc Document) (Extracted, error) {
	mediaType, _, err := mime.ParseMediaType(doc.ContentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(doc.ContentType))
	}

	switch mediaType {
	case TypePDF:
		return e.extractPDF(ctx, doc)
	case TypeHTML:
		return e.extractHTML(doc)
	default:
		return Extracted{}, fmt.Errorf("%w: %q", ErrUnsupportedType, doc.ContentType)
	}
}

// extractPDF shells out to pdftotext (poppler-utils). The bytes go through
// a temp file because pdftotext wants a seekable input.
func (e *Extractor) extractPDF(ctx context.Context, doc Document) (Extracted, error) {
	tmp, err := os.CreateTemp("", "ingest-*.pdf")
	if err != nil {
		return Extracted{}, fmt.Errorf("%w: temp file: %v", ErrParse, err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(doc.Data); err != nil {
		return Extracted{}, fmt.Errorf("%w: writing temp file: %v", ErrParse, err)
	}
	if err := tmp.Close(); err != nil {
		return Extracted{}, fmt.Errorf("%w: closing temp file: %v", ErrParse, err)
	}

	out, err := e.runner.Run(ctx, e.pdftotext, "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	if err != nil {
		return Extracted{}, fmt.Errorf("%w: %s: %v", ErrParse, doc.Name, err)
	}

	text := string(out)
	return Extracted{Title: pdfTitle(text, doc.Name), Text: text}, nil
}

// extractHTML isolates the article via readability. When readability can't
// make sense of the markup (fragments, admin-authored snippets) the raw
// document is chunked as-is.
func (e *Extractor) extractHTML(doc Document) (Extracted, error) {
	// Uploads have no real URL; readability only needs a base for
	// resolving relative links.
	base := &url.URL{Scheme: "https", Host: "localhost", Path: "/" + doc.Name}

	article, err := readability.FromReader(bytes.NewReader(doc.Data), base)
	if err != nil {
		e.logger.Warn("readability failed, chunking raw html", "document", doc.Name, "error", err)
		return Extracted{HTML: string(doc.Data)}, nil
	}

	html := article.Content
	if strings.TrimSpace(html) == "" {
		html = string(doc.Data)
	}
	return Extracted{Title: article.Title, HTML: html}, nil
}

// pdfTitle takes the first short non-empty line, falling back to the file
// name with its extension stripped.
func pdfTitle(text, name string) string {
	const maxTitleLen = 200
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && len(line) <= maxTitleLen {
			return line
		}
	}
	base := name
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}
