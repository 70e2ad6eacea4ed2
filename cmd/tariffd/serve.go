package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bher20/tariffd/internal/alerting"
	"github.com/bher20/tariffd/internal/api"
	"github.com/bher20/tariffd/internal/config"
	"github.com/bher20/tariffd/internal/metrics"
	"github.com/bher20/tariffd/internal/pipeline"
	"github.com/bher20/tariffd/internal/scheduler"
	"github.com/bher20/tariffd/internal/storage"
	"github.com/bher20/tariffd/internal/tariff"
	"github.com/bher20/tariffd/pkg/providers"
	"github.com/bher20/tariffd/pkg/providers/openei"
	"github.com/bher20/tariffd/pkg/providers/xcelenergy"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the acquisition schedulers and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	registry := providers.NewRegistry(
		xcelenergy.New(),
		openei.New(cfg.OpenEIAPIKey),
	)

	alerter := alerting.NewAlerter(alerting.DefaultAlertConfig())
	pipe := pipeline.New(registry, store, alerter, pipeline.Config{
		HTTPTimeout: cfg.HTTPTimeout,
		CacheDir:    cfg.PDFCacheDir,
	})

	var schedulers []*scheduler.Scheduler
	for _, sub := range cfg.Subscriptions {
		opts := tariff.Options{IncludeAdditionalCharges: true}
		if sub.Options != nil {
			opts = *sub.Options
		}
		sched, err := scheduler.New(sub.Name, sub.Key(), opts, registry, pipe, store, cfg.RefreshInterval)
		if err != nil {
			return fmt.Errorf("configure subscription: %w", err)
		}
		sched.Start(ctx)
		schedulers = append(schedulers, sched)
		log.Printf("tariffd: tracking %s as %q", sub.Key(), sub.Name)
	}

	// Surface pool stats for the pgx backend.
	if pg, ok := store.(*storage.PgxPoolStore); ok {
		go publishPoolStats(ctx, pg)
	}

	server := api.NewServer(schedulers, registry, store, cfg.RefreshToken)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.NewMux(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("tariffd listening on %s", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Printf("tariffd: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func publishPoolStats(ctx context.Context, pg *storage.PgxPoolStore) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stat := pg.Stat()
			metrics.UpdateDBPoolMetrics("postgrespool",
				float64(stat.TotalConns()),
				float64(stat.IdleConns()),
				float64(stat.AcquiredConns()))
		}
	}
}
