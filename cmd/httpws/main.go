package main

import (
	"context"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"httpws/application/http/actor/server"
	"httpws/config"
	"httpws/metrics"
	"httpws/transport/netconn"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger(os.Stdout)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := cfg.ServerOptions()
	opts.Metrics = metrics.New(reg, metrics.DefaultNamespace)

	lis, err := netconn.Listen(cfg.Address)
	if err != nil {
		logger.Error("failed to listen", "address", cfg.Address, "error", err)
		os.Exit(1)
	}

	srv := server.New(lis, logger, clock.New(), newMux(logger), opts)

	g.Go(func() error {
		srv.Start()
		logger.Info("server started", "address", lis.Addr().String())
		<-ctx.Done()
		return srv.Close()
	})

	metricsSrv := &nethttp.Server{
		Addr:    cfg.MetricsAddress,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}
	g.Go(func() error {
		logger.Info("metrics endpoint started", "address", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("httpws terminated with error: %s", err))
	} else {
		logger.Info("httpws stopped")
	}
}

func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
