// Command bench drives a zipf-distributed get/set workload against a
// shardcached server over N connections and exposes optional
// pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/shardcached/internal/logging"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "bench: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opt := defaultOptions()
	var (
		pprofAddr   string
		metricsAddr string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:          "bench",
		Short:        "Load-test a shardcached server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lc := logging.DefaultConfig()
			if verbose {
				lc.Level = zerolog.DebugLevel
			}
			log := logging.New(lc)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			// ---- pprof server (on DefaultServeMux) ----
			if pprofAddr != "" {
				go func() {
					log.Info().Str("address", pprofAddr).Msg("pprof: serving")
					log.Warn().Err(http.ListenAndServe(pprofAddr, nil)).Msg("pprof stopped")
				}()
			}

			// ---- Prometheus metrics ----
			reg := prometheus.NewRegistry()
			opt.Latency = newLatency(reg)
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				go func() {
					log.Info().Str("address", metricsAddr).Msg("metrics: serving")
					if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Warn().Err(err).Msg("metrics stopped")
					}
				}()
			}

			opt.Logger = &log
			rep, err := run(ctx, opt)
			if err != nil {
				return err
			}
			rep.print(cmd.OutOrStdout(), opt)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opt.Network, "network", opt.Network, "server network: tcp or unix")
	f.StringVarP(&opt.Address, "address", "a", opt.Address, "server address; ignored with --embedded")
	f.BoolVar(&opt.Embedded, "embedded", false, "start an in-process server instead of dialing --address")
	f.IntVar(&opt.MaxBytes, "max-bytes", opt.MaxBytes, "embedded server byte budget")
	f.IntVar(&opt.Segments, "segments", opt.Segments, "embedded server segments")

	f.IntVar(&opt.Conns, "conns", 2*runtime.GOMAXPROCS(0), "number of connections (one worker each)")
	f.DurationVar(&opt.Duration, "duration", opt.Duration, "benchmark duration")
	f.IntVar(&opt.ReadPct, "reads", opt.ReadPct, "read percentage [0..100]")

	f.IntVar(&opt.Keys, "keys", opt.Keys, "keyspace size")
	f.Float64Var(&opt.ZipfS, "zipf-s", opt.ZipfS, "Zipf s > 1 (skew)")
	f.Float64Var(&opt.ZipfV, "zipf-v", opt.ZipfV, "Zipf v >= 1")
	f.Int64Var(&opt.Seed, "seed", time.Now().UnixNano(), "random seed")
	f.IntVar(&opt.ValueSize, "value-size", opt.ValueSize, "bytes per value written")
	f.Uint32Var(&opt.TTL, "ttl", 0, "expiration of written values in seconds (0 = none)")
	f.IntVar(&opt.Preload, "preload", 0, "entries written before the timed run (0 = keys/2)")

	f.StringVar(&pprofAddr, "pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	f.StringVar(&metricsAddr, "http", "", "serve Prometheus metrics at addr (e.g. :8080); empty = disabled")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}
