package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scholarpath/scout-cli/internal/model"
	"github.com/scholarpath/scout-cli/internal/store"
)

var (
	reviewStatus string
	reviewLimit  int
	reviewBy     string
	reviewNotes  string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect and resolve the pending-scholarship review queue",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending scholarships awaiting review",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		records, err := e.Review.Queue(cmd.Context(), store.PendingFilter{
			Status: model.ReviewStatus(reviewStatus),
			Limit:  reviewLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list pending")
		}
		return printJSON(records)
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one pending scholarship, including its raw page text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		p, err := e.Review.Get(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "get pending %s", args[0])
		}
		return printJSON(p)
	},
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending scholarship into the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		id, err := e.Review.Approve(cmd.Context(), args[0], reviewBy, optional(reviewNotes))
		if err != nil {
			return eris.Wrapf(err, "approve %s", args[0])
		}

		zap.L().Info("approved", zap.String("pending_id", args[0]), zap.Int64("scholarship_id", id))
		return printJSON(map[string]any{"scholarship_id": id})
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a pending scholarship",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Review.Reject(cmd.Context(), args[0], reviewBy, optional(reviewNotes)); err != nil {
			return eris.Wrapf(err, "reject %s", args[0])
		}

		zap.L().Info("rejected", zap.String("pending_id", args[0]))
		return printJSON(map[string]string{"status": "rejected"})
	},
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	reviewListCmd.Flags().StringVar(&reviewStatus, "status", "", "filter by review status")
	reviewListCmd.Flags().IntVar(&reviewLimit, "limit", 0, "maximum records to return")

	for _, c := range []*cobra.Command{reviewApproveCmd, reviewRejectCmd} {
		c.Flags().StringVar(&reviewBy, "by", "", "reviewer identifier")
		c.Flags().StringVar(&reviewNotes, "notes", "", "reviewer notes")
		_ = c.MarkFlagRequired("by")
	}

	reviewCmd.AddCommand(reviewListCmd, reviewShowCmd, reviewApproveCmd, reviewRejectCmd)
	rootCmd.AddCommand(reviewCmd)
}
