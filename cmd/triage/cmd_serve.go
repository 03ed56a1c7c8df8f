package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/triage-engine/internal/api/http"
	"github.com/spec-kit/triage-engine/internal/api/http/handlers"
	"github.com/spec-kit/triage-engine/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP ingestion API and classification workers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	pool := worker.NewPool(a.triage, a.cfg.Worker.QueueSize, a.logger)
	pool.Start(a.cfg.Worker.Count)

	fiberApp := fiber.New()
	httptransport.RegisterMiddlewares(fiberApp, a.logger, a.cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(a.cfg.App.Name, a.cfg.App.Version, a.pg, a.redis, a.metrics)
	ticketsHandler := handlers.NewTicketsHandler(a.triage, pool)

	httptransport.RegisterRoutes(fiberApp, httptransport.RouteConfig{
		Health:  healthHandler,
		Tickets: ticketsHandler,
	})

	go func() {
		if err := fiberApp.Listen(a.cfg.App.Addr()); err != nil {
			a.logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(a.logger)

	_ = fiberApp.Shutdown()
	// Drain in-flight classification passes before releasing handles.
	pool.Stop()
	return nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
