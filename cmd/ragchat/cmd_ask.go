package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"ragchat/internal/citation"
	"ragchat/internal/session"
	"ragchat/internal/types"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var showSnippets bool

// askCmd asks a single question
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and print the answer with its sources",
	Long: `Asks a single question against the knowledge base. The same rules as the
interactive chat apply: at least one document must be uploaded first.

Example:
  ragchat ask "What is the refund policy?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&showSnippets, "snippets", false, "print the cited passage under each source")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tok, err := requireToken(ctx)
	if err != nil {
		return err
	}

	s := session.New(newClient(), tok,
		session.WithLogger(logger),
		session.WithRefreshDelay(cfg.GetRefreshDelay()))
	defer s.Close()

	if err := s.Start(ctx); err != nil {
		return err
	}
	if s.State() == session.StateEmpty {
		return errors.New("the knowledge base has no documents yet; upload some with 'ragchat files upload'")
	}

	reply, err := s.Chat().Submit(ctx, joinArgs(args))
	if err != nil && reply.Content == "" {
		return err
	}

	out := cmd.OutOrStdout()
	printAnswer(out, reply, showSnippets)
	return err
}

func printAnswer(w io.Writer, reply types.Message, snippets bool) {
	if reply.Failed {
		color.New(color.FgRed).Fprintln(w, reply.Content)
		return
	}
	fmt.Fprintln(w, reply.Content)
	if len(reply.Sources) == 0 {
		return
	}

	fmt.Fprintln(w)
	color.New(color.Bold).Fprintln(w, "Sources")
	for i, src := range reply.Sources {
		color.New(color.FgCyan).Fprintf(w, "  [%d] %s\n", i+1, src.String())
		if snippets {
			fmt.Fprintf(w, "%s\n\n", indent(citation.Format(src), "      "))
		}
	}
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
