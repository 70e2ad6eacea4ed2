package main

import (
	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tariffd",
		Short: "Utility tariff acquisition and rate resolution daemon",
		Long: `tariffd acquires utility tariffs from provider sources (PDF tariff
books, rate APIs), caches validated snapshots, and continuously
resolves the applicable rate for each configured subscription.`,
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(resolveCmd())
	return root
}
