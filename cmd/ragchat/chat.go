package main

import (
	"fmt"

	"ragchat/cmd/ragchat/chat"
	"ragchat/internal/ingest"
	"ragchat/internal/session"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// chatCmd starts the interactive chat (also the default command)
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tok, err := resolveToken(ctx)
	if err != nil {
		return err
	}

	s := session.New(newClient(), tok,
		session.WithLogger(logger),
		session.WithRefreshDelay(cfg.GetRefreshDelay()))

	if cfg.Files.WatchDir != "" && tok != "" {
		w, err := ingest.NewWatcher(cfg.Files.WatchDir, s.Files(),
			ingest.WithExtensions(cfg.Files.WatchExtensions...),
			ingest.WithLogger(logger))
		if err != nil {
			s.Close()
			return err
		}
		if err := w.Start(ctx); err != nil {
			s.Close()
			return err
		}
		defer w.Stop()
	}

	m := chat.New(s, chat.Config{
		Theme:      cfg.UI.Theme,
		Markdown:   cfg.UI.Markdown,
		Extensions: cfg.Files.WatchExtensions,
		Logger:     logger,
	})

	// Copies of the model share the shutdown state, so closing m is enough.
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	m.Shutdown()
	if err != nil {
		logger.Error("chat exited with error", zap.Error(err))
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}
