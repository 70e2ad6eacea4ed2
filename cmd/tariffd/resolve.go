package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bher20/tariffd/internal/config"
	"github.com/bher20/tariffd/internal/pipeline"
	"github.com/bher20/tariffd/internal/storage"
	"github.com/bher20/tariffd/internal/tariff"
	"github.com/bher20/tariffd/pkg/providers"
	"github.com/bher20/tariffd/pkg/providers/openei"
	"github.com/bher20/tariffd/pkg/providers/xcelenergy"
)

// resolveCmd is a one-shot debugging aid: seed a snapshot from cache or
// static data (optionally fetch live) and print the resolved rate.
func resolveCmd() *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "resolve [subscription]",
		Short: "Resolve the current rate for one subscription and print it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			ctx := cmd.Context()

			var sub *config.Subscription
			if len(args) == 0 {
				sub = &cfg.Subscriptions[0]
			} else {
				for i := range cfg.Subscriptions {
					if cfg.Subscriptions[i].Name == args[0] {
						sub = &cfg.Subscriptions[i]
						break
					}
				}
			}
			if sub == nil {
				return fmt.Errorf("unknown subscription %q", args[0])
			}

			store, err := storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			registry := providers.NewRegistry(
				xcelenergy.New(),
				openei.New(cfg.OpenEIAPIKey),
			)
			key := sub.Key()
			if err := registry.Validate(key); err != nil {
				return err
			}

			pipe := pipeline.New(registry, store, nil, pipeline.Config{
				HTTPTimeout: cfg.HTTPTimeout,
				CacheDir:    cfg.PDFCacheDir,
			})

			var snap *tariff.Snapshot
			if live {
				snap = pipe.Acquire(ctx, key)
			} else {
				snap = pipe.Seed(ctx, key)
			}

			opts := tariff.Options{IncludeAdditionalCharges: true}
			if sub.Options != nil {
				opts = *sub.Options
			}
			resolved := tariff.Resolve(time.Now(), snap, opts)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resolved)
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "fetch from the live source instead of cache/static data")
	return cmd
}
