// Package cmd provides the ledgerctl commands.
package cmd

import (
	"fmt"
	"os"

	"ledger-reconciliation-backend/internal/config"
	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/logger"
	service "ledger-reconciliation-backend/internal/services/reconciliation"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	envFile string
	debug   bool
	userArg string

	log = logger.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Run reconciliation jobs against the remote ledger",
	Long: `ledgerctl drives the same reconciliation engine as the HTTP server
from the command line.

Example:
  ledgerctl match --batch <id> --user <id>
  ledgerctl stats --batch <id> --user <id>
  ledgerctl reconcile-account --account <id> --user <id>`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "info"
		if debug {
			level = "debug"
		}
		log = logger.New(level)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&userArg, "user", "", "owning user ID (required)")

	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(reconcileAccountCmd)
}

// newService wires the reconciliation service from the environment.
func newService() (*service.ReconciliationService, *config.Config) {
	cfg, err := config.Load(envFile)
	exitOnError(err, "failed to load configuration")
	exitOnError(cfg.Validate(), "invalid configuration")

	db, err := config.InitDB(cfg)
	exitOnError(err, "failed to connect database")
	exitOnError(config.Migrate(db), "failed to migrate database")

	ledgers := ledger.NewHTTPFactory(ledger.ClientConfig{
		Timeout:           cfg.Matching.Timeout,
		RequestsPerSecond: cfg.Matching.RequestsPerSecond,
	})
	return service.NewReconciliationService(db, ledgers, cfg.Matching, log), cfg
}

func parseID(value, flag string) uuid.UUID {
	if value == "" {
		exitOnError(fmt.Errorf("--%s is required", flag), "missing flag")
	}
	id, err := uuid.Parse(value)
	exitOnError(err, "invalid --"+flag)
	return id
}

func userID() uuid.UUID {
	return parseID(userArg, "user")
}

func exitOnError(err error, msg string) {
	if err != nil {
		log.Error().Err(err).Msg(msg)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
