package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/shardcached/cache"
	"github.com/IvanBrykalov/shardcached/internal/config"
	"github.com/IvanBrykalov/shardcached/internal/logging"
	pmet "github.com/IvanBrykalov/shardcached/metrics/prom"
	"github.com/IvanBrykalov/shardcached/server"
)

var serverFlagKeys = map[string]string{
	"network":         "server.network",
	"address":         "server.address",
	"idle-timeout":    "server.idle_timeout",
	"max-frame-bytes": "server.max_frame_bytes",
	"max-bytes":       "cache.max_bytes",
	"max-len":         "cache.max_len",
	"segments":        "cache.segments",
	"metrics-address": "metrics.address",
}

func newServerCmd(a *app) *cobra.Command {
	d := config.Default()
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the cache server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd.Flags(), serverFlagKeys); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, a, nil)
		},
	}

	f := cmd.Flags()
	f.String("network", d.Server.Network, "listen network: tcp or unix")
	f.StringP("address", "a", d.Server.Address, "listen address (host:port or socket path)")
	f.Duration("idle-timeout", d.Server.IdleTimeout, "close connections idle this long (0 = never)")
	f.Uint64("max-frame-bytes", d.Server.MaxFrameBytes, "largest accepted frame payload")
	f.Int("max-bytes", d.Cache.MaxBytes, "total cache byte budget")
	f.Int("max-len", d.Cache.MaxLen, "total entry cap (0 = none)")
	f.Int("segments", d.Cache.Segments, "number of independently locked segments")
	f.String("metrics-address", d.Metrics.Address, "serve Prometheus metrics at addr (empty = disabled)")
	return cmd
}

// runServer builds the cache and serves it until ctx is done. ready, if
// not nil, receives the bound listener address once serving starts.
func runServer(ctx context.Context, a *app, ready chan<- net.Addr) error {
	cfg := a.cfg
	ctx = logging.WithComponent(logging.WithContext(ctx, a.log), "server")
	log := *logging.FromContext(ctx)

	a.loader.OnChange(func(c *config.Config) {
		lvl := c.LoggingConfig().Level
		if lvl != zerolog.GlobalLevel() {
			zerolog.SetGlobalLevel(lvl)
			log.Info().Stringer("level", lvl).Msg("log level reloaded")
		}
	})
	a.loader.Watch()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := pmet.New(reg, cfg.Metrics.Namespace, nil)

	c, err := cache.New(cache.Options{
		MaxBytesize: cfg.Cache.MaxBytes,
		MaxLen:      cfg.Cache.MaxLen,
		Segments:    cfg.Cache.Segments,
		Metrics:     metrics,
	})
	if err != nil {
		return err
	}
	metrics.ObserveCache(c)

	srv := server.New(c, server.Options{
		Logger:      &log,
		Metrics:     metrics,
		IdleTimeout: cfg.Server.IdleTimeout,
		MaxPayload:  cfg.Server.MaxFrameBytes,
	})

	ln, err := server.Listen(ctx, cfg.Server.Network, cfg.Server.Address)
	if err != nil {
		return err
	}
	log.Info().
		Str("network", cfg.Server.Network).
		Str("address", ln.Addr().String()).
		Int("segments", c.Segments()).
		Int("max_bytes", c.MaxBytesize()).
		Msg("listening")
	if ready != nil {
		ready <- ln.Addr()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx, ln) })
	if addr := cfg.Metrics.Address; addr != "" {
		g.Go(func() error { return serveMetrics(gctx, addr, reg) })
	}
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	log := logging.FromContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	hs := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	log.Info().Str("address", addr).Msg("metrics: serving /metrics")
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
