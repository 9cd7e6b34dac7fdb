package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var flagUserID int64

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Run one assistant turn from the terminal",
	Long: `Ask runs a question through the full conversation flow: security gate,
routing, knowledge-base retrieval and synthesis. Useful for exercising the
knowledge base without a Telegram round trip.

The --user id keeps greeting and strike state consistent across calls.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().Int64Var(&flagUserID, "user", 1, "user identity for session state")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	question := strings.Join(args, " ")
	fmt.Println(a.flow().Handle(ctx, flagUserID, question))
	return nil
}
