package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/geojson2mvt-go/internal/config"
	"github.com/wegman-software/geojson2mvt-go/internal/logger"
	"github.com/wegman-software/geojson2mvt-go/internal/metrics"
	"github.com/wegman-software/geojson2mvt-go/internal/server"
	"github.com/wegman-software/geojson2mvt-go/internal/source"
	"github.com/wegman-software/geojson2mvt-go/internal/transport"
)

var (
	listenAddr string
	watch      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve [load-request.yaml...]",
	Short: "Serve GeoJSON sources as vector tiles over HTTP",
	Long: `Start the HTTP tile server.

Sources listed in the config file and given as arguments are loaded at
startup. With --watch they are reloaded whenever their file changes.
Further sources are loaded with PUT /sources/{source}, updated with
PATCH and removed with DELETE. Tiles are served from
/sources/{source}/tiles/{z}/{x}/{y}.mvt.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (overrides config)")
	serveCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Reload sources when their request files change")
}

func newRegistry() (*source.Registry, *transport.Router) {
	router := cfg.Transport()
	return source.NewRegistry(source.Options{Transport: router}), router
}

func runServe(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if cmd.Flags().Changed("watch") {
		cfg.WatchSources = watch
	}

	registry, router := newRegistry()
	defer router.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsInterval > 0 {
		collector := metrics.NewCollector(cfg.MetricsInterval, log, registry.Len)
		g.Go(func() error {
			collector.Start(gctx)
			return nil
		})
		log.Info("System metrics collection started",
			zap.Duration("interval", cfg.MetricsInterval))
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Handler:      server.New(registry, log).Handler(),
	}

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	requests := append(append([]string{}, cfg.Sources...), args...)
	for _, path := range requests {
		path := path
		g.Go(func() error {
			preload(gctx, registry, path)
			return nil
		})
	}

	if cfg.WatchSources && len(requests) > 0 {
		watcher, err := config.NewRequestWatcher(requests)
		if err != nil {
			exitWithError("failed to watch load requests", err)
		}
		g.Go(func() error {
			return watcher.Run(gctx, func(path string) {
				log.Info("Load request changed", zap.String("path", path))
				// A newer load for the same source abandons this one
				g.Go(func() error {
					preload(gctx, registry, path)
					return nil
				})
			})
		})
		log.Info("Watching load requests", zap.Int("files", len(requests)))
	}

	select {
	case sig := <-interrupt:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case <-gctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	for _, name := range registry.Names() {
		registry.Remove(name)
	}

	if err := g.Wait(); err != nil {
		exitWithError("server returned an error", err)
	}
	log.Info("Server stopped")
}

// preload applies a load request file. Failures are logged and leave the
// source empty so it can be loaded again over HTTP.
func preload(ctx context.Context, registry *source.Registry, path string) {
	log := logger.Get()

	params, err := config.LoadRequest(path)
	if err != nil {
		log.Error("Failed to read load request", zap.String("path", path), zap.Error(err))
		return
	}

	start := time.Now()
	res, err := registry.Source(params.Source).Load(ctx, *params)
	switch {
	case err != nil:
		log.Error("Failed to preload source",
			zap.String("source", params.Source),
			zap.String("path", path),
			zap.Error(err))
	case res.Abandoned:
		log.Info("Preload superseded", zap.String("source", params.Source))
	default:
		log.Info("Source preloaded",
			zap.String("source", params.Source),
			zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	}
}
