package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bher20/tariffd/internal/config"
	"github.com/bher20/tariffd/internal/migrate"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Run database schema migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			ctx := cmd.Context()
			switch args[0] {
			case "up":
				return migrate.Up(ctx, cfg.DBDriver, cfg.DBDSN)
			case "down":
				return migrate.Down(ctx, cfg.DBDriver, cfg.DBDSN)
			case "status":
				return migrate.Status(ctx, cfg.DBDriver, cfg.DBDSN)
			default:
				return fmt.Errorf("unknown migrate action %q", args[0])
			}
		},
	}
	return cmd
}
