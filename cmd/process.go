package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newProcessCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "process <url>",
		Short: "Fetches and extracts a single document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			target := args[0]
			if err := appInstance.Pipeline().ProcessDocument(cmd.Context(), target, title); err != nil {
				return fmt.Errorf("process %s: %w", target, err)
			}
			doc, err := appInstance.Catalog().GetDocumentBySourceURL(cmd.Context(), target)
			if err != nil {
				return fmt.Errorf("load processed document: %w", err)
			}
			return printJSON(cmd, map[string]any{
				"url":         target,
				"document_id": doc.ID,
				"status":      doc.Status,
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title to record when the document is new")
	return cmd
}

func newProcessPendingCmd() *cobra.Command {
	var (
		limit int
		delay time.Duration
	)
	cmd := &cobra.Command{
		Use:   "process-pending",
		Short: "Processes documents in pending or needs_ocr status",
		Long: `Lists up to --limit documents in pending or needs_ocr status, oldest first,
and runs each through extraction sequentially, pausing --delay between
requests to one host. A failed document is counted and the batch continues.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			opts := appInstance.BatchOptions()
			if cmd.Flags().Changed("limit") {
				opts.Limit = limit
			}
			if cmd.Flags().Changed("delay") {
				opts.Delay = delay
			}
			if opts.Limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", opts.Limit)
			}
			if opts.Delay < 0 {
				return fmt.Errorf("--delay must be >= 0, got %s", opts.Delay)
			}
			summary, err := appInstance.Batch().ProcessAllPending(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("process pending: %w", err)
			}
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum documents to process")
	cmd.Flags().DurationVar(&delay, "delay", 0, "minimum spacing between requests to one host")
	return cmd
}
