package cmd

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/printdesk/printdesk/internal/ingest"
	"github.com/printdesk/printdesk/internal/knowledge"
)

var (
	flagCategory     string
	flagManufacturer string
	flagModels       []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest documents into the knowledge base",
	Long: `Ingest chunks each document, embeds the chunks and writes them to the
knowledge store. PDF and HTML files are supported; the content type is
taken from the file extension.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&flagCategory, "category", knowledge.CategoryGeneral,
		"knowledge category: general, technical or legal")
	ingestCmd.Flags().StringVar(&flagManufacturer, "manufacturer", "",
		"manufacturer tag for technical documents")
	ingestCmd.Flags().StringSliceVar(&flagModels, "models", nil,
		"device model tags for technical documents")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	pipeline := a.pipeline()
	var failed bool

	for _, path := range args {
		doc, err := documentFromFile(path)
		if err != nil {
			return err
		}

		report, err := pipeline.Ingest(ctx, doc)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}

		fmt.Printf("%s: %s\n", doc.Name, report)
		for _, f := range report.Failures {
			fmt.Printf("  chunk %d: %s\n", f.Number, f.Err)
			failed = true
		}
	}

	if failed {
		return fmt.Errorf("some chunks failed, see report above")
	}
	return nil
}

// documentFromFile builds an ingest.Document from a local path and the
// command flags.
func documentFromFile(path string) (ingest.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	meta := map[string]any{}
	if flagManufacturer != "" {
		meta[knowledge.MetaManufacturer] = strings.ToLower(flagManufacturer)
	}
	if len(flagModels) > 0 {
		models := make([]string, len(flagModels))
		for i, m := range flagModels {
			models[i] = strings.ToLower(m)
		}
		meta[knowledge.MetaDeviceModels] = models
	}

	return ingest.Document{
		ID:          path,
		Name:        filepath.Base(path),
		ContentType: contentType,
		Category:    flagCategory,
		Data:        data,
		Metadata:    meta,
	}, nil
}
