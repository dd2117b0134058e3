package main

import (
	"fmt"

	"ragchat/internal/types"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// historyCmd prints the stored transcript
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored chat history",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tok, err := requireToken(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	msgs := newClient().FetchHistory(ctx, tok)
	if len(msgs) == 0 {
		fmt.Fprintln(out, "No chat history.")
		return nil
	}

	userLabel := color.New(color.FgBlue, color.Bold)
	assistantLabel := color.New(color.FgGreen, color.Bold)
	sourceLine := color.New(color.FgCyan)

	for _, m := range msgs {
		if m.Role == types.RoleUser {
			userLabel.Fprint(out, "You: ")
		} else {
			assistantLabel.Fprint(out, "Assistant: ")
		}
		fmt.Fprintln(out, m.Content)
		for i, src := range m.Sources {
			sourceLine.Fprintf(out, "  [%d] %s\n", i+1, src.String())
		}
	}
	return nil
}
