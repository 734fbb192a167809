package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display match statistics for a batch",
	Long: `Display how many transactions of a batch matched at each confidence
tier, with the orphan and replication counts.

Example:
  ledgerctl stats --batch <id> --user <id>`,
	Run: runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	svc, _ := newService()
	stats, err := svc.GetBatchStats(parseID(batchArg, "batch"), userID())
	exitOnError(err, "failed to get statistics")

	fmt.Println("\n=== Batch Statistics ===")
	fmt.Printf("Transactions: %d (%s)\n", stats.Total, stats.TotalAmount.StringFixed(2))
	fmt.Printf("High:         %d (%s)\n", stats.High.Count, stats.High.Sum.StringFixed(2))
	fmt.Printf("Medium:       %d (%s)\n", stats.Medium.Count, stats.Medium.Sum.StringFixed(2))
	fmt.Printf("Low:          %d (%s)\n", stats.Low.Count, stats.Low.Sum.StringFixed(2))
	fmt.Printf("Unmatched:    %d (%s)\n", stats.Unmatched.Count, stats.Unmatched.Sum.StringFixed(2))
	fmt.Printf("Orphans:      %d\n", stats.OrphanCount)
	fmt.Printf("Replicated:   %d\n", stats.ReplicatedCount)
	fmt.Println()
}
