package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/skinquant/internal/api"
	"github.com/newthinker/skinquant/internal/api/job"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the analysis scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, log := rt.cfg, rt.log

	log.Info("starting skinquant server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("auth", cfg.Server.APIKey != ""),
	)

	jobs := job.NewStore(cfg.Server.MaxJobs, time.Duration(cfg.Server.JobTTLHours)*time.Hour,
		job.WithActiveFunc(rt.metrics.SetJobsActive),
	)

	deps := api.Dependencies{
		App:      rt.app,
		Catalog:  rt.catalog,
		Market:   rt.market,
		Signals:  rt.signals,
		Jobs:     jobs,
		Sessions: rt.sessions,
		BaseCtx:  ctx,
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		deps.Metrics = rt.metrics
		metricsPath = cfg.Metrics.Path
	}

	server, err := api.NewServer(api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		APIKey:      cfg.Server.APIKey,
		MetricsPath: metricsPath,
	}, deps, log.Named("http"))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	if cfg.Analysis.Interval > 0 {
		rt.router.StartCleanupRoutine(ctx, cfg.Analysis.Interval)
		go func() {
			if err := rt.app.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("analysis scheduler stopped", zap.Error(err))
			}
		}()
	} else {
		log.Info("analysis scheduler disabled")
	}

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down skinquant server")
	rt.app.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
