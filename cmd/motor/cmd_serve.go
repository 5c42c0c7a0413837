package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"motorcortex/internal/bindings"
	"motorcortex/internal/controller"
	"motorcortex/internal/httpapi"
	"motorcortex/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller and the localhost HTTP ingress",
	Long: `Starts the long-lived dispatch service: the event queue and worker,
the localhost HTTP API for gesture/voice recognizers and the desktop UI,
and a watcher that reloads gesture bindings when the files change on
disk. Runs until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl := controller.New(a.cfg, a.engine, a.bindings, a.prober)
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	defer ctrl.Stop()

	watcher, err := bindings.NewWatcher(a.bindings, func() {
		logging.Bindings("bindings reloaded from disk")
	})
	if err != nil {
		logger.Warn("bindings watcher unavailable", zap.Error(err))
	} else {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("bindings watcher failed to start", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	server := httpapi.New(a.cfg, ctrl, a.bindings, logger)

	logger.Info("motor serving",
		zap.String("addr", a.cfg.API.Addr),
		zap.String("client_os", a.cfg.ResolvedClientOS()),
		zap.Duration("command_timeout", a.cfg.GetCommandTimeout()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("motor stopped")
	return err
}
