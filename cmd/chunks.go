package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagChunksSource string
	flagChunksLimit  int32
	flagChunksFull   bool
)

var chunksCmd = &cobra.Command{
	Use:   "chunks",
	Short: "Inspect stored knowledge-base chunks",
	RunE:  runChunks,
}

func init() {
	chunksCmd.Flags().StringVar(&flagChunksSource, "source", "", "restrict to one source file")
	chunksCmd.Flags().Int32Var(&flagChunksLimit, "limit", 20, "maximum chunks to show")
	chunksCmd.Flags().BoolVar(&flagChunksFull, "full", false, "print full chunk text")
	rootCmd.AddCommand(chunksCmd)
}

func runChunks(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	count, err := a.store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d chunks stored\n", count)
	if count == 0 {
		return nil
	}

	chunks, err := a.store.List(ctx, flagChunksSource, flagChunksLimit)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		text := c.Text
		if runes := []rune(text); !flagChunksFull && len(runes) > 120 {
			text = string(runes[:120]) + "…"
		}
		fmt.Printf("[%d] %s#%d %v\n    %s\n", c.ID, c.SourceFile, c.Number, c.Metadata, text)
	}
	return nil
}
