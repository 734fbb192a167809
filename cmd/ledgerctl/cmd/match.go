package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-reconciliation-backend/internal/models"
	service "ledger-reconciliation-backend/internal/services/reconciliation"

	"github.com/spf13/cobra"
)

var (
	batchArg     string
	pollInterval time.Duration
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Run a batch match job to completion",
	Long: `Advance the batch's match job one step at a time until it completes
or fails. A job interrupted earlier resumes where it stopped.

Example:
  ledgerctl match --batch <id> --user <id>`,
	Run: runMatch,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset a batch match job to pending",
	Run: func(cmd *cobra.Command, args []string) {
		svc, _ := newService()
		progress, err := svc.ResetMatchJob(parseID(batchArg, "batch"), userID())
		exitOnError(err, "failed to reset match job")
		printProgress(progress)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear every match, orphan and job for a batch",
	Run: func(cmd *cobra.Command, args []string) {
		svc, _ := newService()
		n, err := svc.ClearMatches(parseID(batchArg, "batch"), userID())
		exitOnError(err, "failed to clear matches")
		fmt.Printf("Cleared %d transactions\n", n)
	},
}

func init() {
	for _, c := range []*cobra.Command{matchCmd, resetCmd, clearCmd, statsCmd} {
		c.Flags().StringVar(&batchArg, "batch", "", "import batch ID (required)")
	}
	matchCmd.Flags().DurationVar(&pollInterval, "interval", 0, "pause between steps")
}

func runMatch(cmd *cobra.Command, args []string) {
	svc, cfg := newService()
	batchID := parseID(batchArg, "batch")
	user := userID()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Each step bounds its own remote call; this only stops a runaway loop.
	maxSteps := cfg.Matching.PageCap + 2
	for step := 0; step < maxSteps; step++ {
		progress, err := svc.AdvanceMatchJob(ctx, batchID, user)
		exitOnError(err, "failed to advance match job")

		log.Debug().
			Str("status", string(progress.Status)).
			Int("page", progress.CurrentPage).
			Int("fetched", progress.FetchedCount).
			Msg("match step")

		if progress.Status == models.MatchJobComplete || progress.Status == models.MatchJobError {
			printProgress(progress)
			if progress.Status == models.MatchJobError {
				exitOnError(errors.New(progress.Error), "match job failed")
			}
			return
		}
		if pollInterval > 0 {
			time.Sleep(pollInterval)
		}
	}
	exitOnError(fmt.Errorf("job did not finish after %d steps", maxSteps), "match job stalled")
}

func printProgress(p *service.Progress) {
	fmt.Println("\n=== Match Job ===")
	fmt.Printf("Status:   %s\n", p.Status)
	fmt.Printf("Fetched:  %d\n", p.FetchedCount)
	fmt.Printf("Matched:  %d of %d\n", p.MatchedCount, p.TotalCount)
	if p.Truncated {
		fmt.Println("Truncated: yes")
	}
	if p.Message != "" {
		fmt.Printf("Message:  %s\n", p.Message)
	}
	fmt.Println()
}
