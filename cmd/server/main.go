package main // Entry point package

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/config"
	"github.com/iliyamo/ewaste-marketplace/internal/logger"
)

var (
	cfg config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ewaste",
	Short: "E-waste collection and resale marketplace API",
	Long: `Runs the marketplace API: customers request pickups of electronic
waste, admins move requests through collection into inventory, and
recycling companies buy from the marketplace.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		l, err := logger.New(logger.Config{
			IsDevelopment: cfg.IsDevelopment(),
			Encoding:      cfg.LogEncoding,
			Level:         cfg.LogLevel,
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	Long:  "Applies the embedded schema.  Every statement is idempotent, so it is safe to run on every deploy.",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
	// A bare invocation serves.
	rootCmd.RunE = runServe
}

func main() {
	// Prices travel as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
