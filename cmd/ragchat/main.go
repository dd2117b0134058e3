package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ragchat/internal/auth"
	"ragchat/internal/config"
	"ragchat/internal/gateway"
	"ragchat/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	baseURL    string
	token      string
	verbose    bool

	// Resolved in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// errNoToken is returned by one-shot commands run without credentials.
var errNoToken = errors.New("not signed in: pass --token or set RAGCHAT_TOKEN, RAGCHAT_TOKEN_FILE or auth.token")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "Chat with your documents",
	Long: `ragchat is a terminal client for a retrieval-augmented question answering service.

Upload documents, then ask questions; every answer lists the passages it was
drawn from. Run without arguments to start the interactive chat.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: launch interactive chat
		return runChat(cmd, args)
	},
}

// persistentPreRunE is attached in init because it refers back to rootCmd.
func persistentPreRunE(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = loadConfig(cmd)
	if err != nil {
		return err
	}

	// The interactive chat owns the terminal, so it logs to a file.
	opts := logging.Options{Level: cfg.Logging.Level, Verbose: verbose}
	if isInteractive(cmd) {
		opts.File = cfg.Logging.File
		opts.DebugMode = cfg.Logging.DebugMode
	}
	logger, err = logging.New(opts)
	if err != nil {
		return err
	}
	logging.Named(logger, logging.CategoryBoot).Debug("config resolved",
		zap.String("base_url", cfg.Backend.BaseURL),
		zap.String("upload_field", cfg.Files.UploadField))
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = persistentPreRunE
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (overrides config and environment)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(chatCmd, askCmd, historyCmd, filesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides on top of
// the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		c.Backend.BaseURL = baseURL
	}
	if token != "" {
		c.Auth.Token = token
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func isInteractive(cmd *cobra.Command) bool {
	return cmd == rootCmd || cmd == chatCmd
}

// newClient builds the gateway client from the resolved config.
func newClient() *gateway.Client {
	return gateway.New(cfg.Backend.BaseURL,
		gateway.WithLogger(logger),
		gateway.WithUploadField(cfg.Files.UploadField),
		gateway.WithRequestTimeout(cfg.GetRequestTimeout()),
		gateway.WithAskTimeout(cfg.GetAskTimeout()))
}

// resolveToken returns the configured token, which may be empty.
func resolveToken(ctx context.Context) (string, error) {
	tok, err := auth.Resolve(cfg.Auth.Token, cfg.Auth.TokenFile).Token(ctx)
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return tok, nil
}

// requireToken is resolveToken for commands that cannot run signed out.
func requireToken(ctx context.Context) (string, error) {
	tok, err := resolveToken(ctx)
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", errNoToken
	}
	return tok, nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
