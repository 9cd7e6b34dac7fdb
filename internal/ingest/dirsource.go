package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirSource serves documents from a local directory tree with one
// subdirectory per category:
//
//	kb/
//	  general/pricing.html
//	  technical/epson-l3150.pdf
//	  technical/epson-l3150.pdf.meta.json
//	  legal/offer.html
//
// Content type comes from the file extension. An optional sidecar
// <file>.meta.json supplies chunk metadata such as manufacturer and
// device_models.
type DirSource struct {
	root string
}

// NewDirSource creates a DirSource rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{root: dir}
}

const metaSuffix = ".meta.json"

var contentTypeByExt = map[string]string{
	".pdf":  TypePDF,
	".html": TypeHTML,
	".htm":  TypeHTML,
}

// ListDocuments walks the tree. An empty category lists every category
// directory. Files with unrecognized extensions are skipped silently;
// sidecars never appear as documents.
func (s *DirSource) ListDocuments(ctx context.Context, category string) ([]Document, error) {
	categories := []string{category}
	if category == "" {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			return nil, fmt.Errorf("reading document root: %w", err)
		}
		categories = categories[:0]
		for _, e := range entries {
			if e.IsDir() {
				categories = append(categories, e.Name())
			}
		}
	}

	var docs []Document
	for _, cat := range categories {
		entries, err := os.ReadDir(filepath.Join(s.root, cat))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading category %q: %w", cat, err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if e.IsDir() || strings.HasSuffix(e.Name(), metaSuffix) {
				continue
			}
			if _, ok := contentTypeByExt[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
				continue
			}
			doc, err := s.GetDocument(ctx, filepath.Join(cat, e.Name()))
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// GetDocument loads one document by its category-relative path.
func (s *DirSource) GetDocument(_ context.Context, id string) (Document, error) {
	path := filepath.Join(s.root, id)
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading document %q: %w", id, err)
	}

	doc := Document{
		ID:          id,
		Name:        filepath.Base(id),
		ContentType: contentTypeByExt[strings.ToLower(filepath.Ext(id))],
		Category:    filepath.Dir(id),
		Data:        data,
	}
	if doc.Category == "." {
		doc.Category = ""
	}

	if meta, err := readSidecar(path + metaSuffix); err != nil {
		return Document{}, err
	} else if meta != nil {
		doc.Metadata = meta
	}
	return doc, nil
}

func readSidecar(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sidecar %q: %w", path, err)
	}

	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing sidecar %q: %w", path, err)
	}
	return meta, nil
}
