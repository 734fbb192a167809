package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var accountArg string

var reconcileAccountCmd = &cobra.Command{
	Use:   "reconcile-account",
	Short: "Match every unmatched transaction of an account",
	Long: `Fetch the remote ledger across the account's whole imported date
range and match its unmatched transactions. Orphans are listed but not
stored.

Example:
  ledgerctl reconcile-account --account <id> --user <id>`,
	Run: runReconcileAccount,
}

func init() {
	reconcileAccountCmd.Flags().StringVar(&accountArg, "account", "", "account ID (required)")
}

func runReconcileAccount(cmd *cobra.Command, args []string) {
	svc, _ := newService()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := svc.ReconcileAccount(ctx, parseID(accountArg, "account"), userID())
	exitOnError(err, "failed to reconcile account")

	fmt.Println("\n=== Account Reconciliation ===")
	fmt.Printf("Fetched:    %d rows over %d pages\n", result.FetchedCount, result.PagesFetched)
	if result.Truncated {
		fmt.Println("Truncated:  yes")
	}
	fmt.Printf("Considered: %d\n", result.Considered)
	fmt.Printf("Matched:    %d\n", len(result.Matches))
	for _, m := range result.Matches {
		fmt.Printf("  %s -> %s (%s, %+d days)\n", m.TransactionID, m.RemoteID, m.Confidence, m.DayOffset)
	}
	fmt.Printf("Orphans:    %d\n", len(result.Orphans))
	for _, o := range result.Orphans {
		fmt.Printf("  %s %s %s %s\n", o.Date.Format("2006-01-02"), o.RemoteID, o.Type, o.Amount.StringFixed(2))
	}
	fmt.Println()
}
