package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"ragchat/internal/ingest"
	"ragchat/internal/readiness"
	"ragchat/internal/types"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var deleteConfirmed bool

// filesCmd groups knowledge base management
var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage the documents in the knowledge base",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	Args:  cobra.NoArgs,
	RunE:  runFilesList,
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload [paths...]",
	Short: "Upload one or more documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFilesUpload,
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a document by id",
	Long: `Deletes one document. The id is the one shown by 'ragchat files list'.
Deletion must be confirmed with --yes.`,
	Args: cobra.ExactArgs(1),
	RunE: runFilesDelete,
}

var filesWatchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Upload documents as they appear in a folder",
	Long: `Watches a folder and uploads new or changed documents once writes settle.
Defaults to files.watch_dir from the config. Stop with Ctrl+C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFilesWatch,
}

func init() {
	filesDeleteCmd.Flags().BoolVarP(&deleteConfirmed, "yes", "y", false, "confirm deletion")
	filesCmd.AddCommand(filesListCmd, filesUploadCmd, filesDeleteCmd, filesWatchCmd)
}

// newTracker builds a readiness tracker for the one-shot file commands.
func newTracker(tok string) *readiness.Tracker {
	return readiness.New(newClient(), tok,
		readiness.WithLogger(logger),
		readiness.WithRefreshDelay(cfg.GetRefreshDelay()))
}

func runFilesList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tok, err := requireToken(ctx)
	if err != nil {
		return err
	}

	tr := newTracker(tok)
	defer tr.Close()
	if err := tr.Load(ctx); err != nil {
		return err
	}
	printFiles(cmd.OutOrStdout(), tr.Files())
	return nil
}

func printFiles(w io.Writer, files []types.FileRecord) {
	if len(files) == 0 {
		fmt.Fprintln(w, "No documents uploaded yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILENAME\tUPLOADED")
	for _, f := range files {
		created := "-"
		if !f.CreatedAt.IsZero() {
			created = f.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.ID, f.Filename, created)
	}
	_ = tw.Flush()
}

func runFilesUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tok, err := requireToken(ctx)
	if err != nil {
		return err
	}

	payloads := make([]types.FilePayload, 0, len(args))
	for _, p := range args {
		payload, err := types.PayloadFromPath(p)
		if err != nil {
			return err
		}
		payloads = append(payloads, payload)
	}

	tr := newTracker(tok)
	defer tr.Close()
	tr.Select(payloads...)
	uploadErr := tr.Upload(ctx)
	printStatus(cmd.OutOrStdout(), tr)
	return uploadErr
}

func runFilesDelete(cmd *cobra.Command, args []string) error {
	if !deleteConfirmed {
		return fmt.Errorf("refusing to delete %s without --yes", args[0])
	}
	ctx := cmd.Context()
	tok, err := requireToken(ctx)
	if err != nil {
		return err
	}

	tr := newTracker(tok)
	defer tr.Close()
	// Listing first lets the banner name the file.
	if err := tr.Load(ctx); err != nil {
		return err
	}
	deleteErr := tr.Delete(ctx, args[0])
	printStatus(cmd.OutOrStdout(), tr)
	return deleteErr
}

func runFilesWatch(cmd *cobra.Command, args []string) error {
	dir := cfg.Files.WatchDir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return errors.New("no folder given and files.watch_dir is not set")
	}
	ctx := cmd.Context()
	tok, err := requireToken(ctx)
	if err != nil {
		return err
	}

	tr := newTracker(tok)
	defer tr.Close()

	out := cmd.OutOrStdout()
	w, err := ingest.NewWatcher(dir, tr,
		ingest.WithExtensions(cfg.Files.WatchExtensions...),
		ingest.WithLogger(logger),
		ingest.OnResult(func(r ingest.Result) {
			printStatus(out, tr)
		}))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Fprintf(out, "Watching %s for new documents. Press Ctrl+C to stop.\n", dir)
	<-ctx.Done()

	st := w.Stats()
	logger.Info("watch stopped", zap.Int("uploaded", st.Files), zap.Int("failed", st.Failed))
	fmt.Fprintf(out, "Uploaded %d file(s), %d failed.\n", st.Files, st.Failed)
	return nil
}

func printStatus(w io.Writer, tr *readiness.Tracker) {
	st, ok := tr.Status()
	if !ok {
		return
	}
	if st.IsError() {
		color.New(color.FgRed).Fprintln(w, st.Message)
		return
	}
	color.New(color.FgGreen).Fprintln(w, st.Message)
}
