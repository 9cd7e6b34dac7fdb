package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/printdesk/printdesk/internal/knowledge"
)

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"ingest":  false,
		"reindex": false,
		"ask":     false,
		"chunks":  false,
		"version": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestDocumentFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "epson-l3150.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatal(err)
	}

	flagCategory = knowledge.CategoryTechnical
	flagManufacturer = "Epson"
	flagModels = []string{"L3150", "L3250"}
	t.Cleanup(func() {
		flagCategory = knowledge.CategoryGeneral
		flagManufacturer = ""
		flagModels = nil
	})

	doc, err := documentFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if doc.Name != "epson-l3150.pdf" {
		t.Errorf("name = %q", doc.Name)
	}
	if doc.ContentType != "application/pdf" {
		t.Errorf("content type = %q", doc.ContentType)
	}
	if doc.Category != knowledge.CategoryTechnical {
		t.Errorf("category = %q", doc.Category)
	}
	if doc.Metadata[knowledge.MetaManufacturer] != "epson" {
		t.Errorf("manufacturer = %v, tags must be lower-cased", doc.Metadata[knowledge.MetaManufacturer])
	}
	models, _ := doc.Metadata[knowledge.MetaDeviceModels].([]string)
	if len(models) != 2 || models[0] != "l3150" {
		t.Errorf("models = %v", models)
	}
}

func TestDocumentFromFileMissing(t *testing.T) {
	if _, err := documentFromFile("/does/not/exist.pdf"); err == nil {
		t.Fatal("want error for missing file")
	}
}
