// Package cli provides the command-line interface for shardcached.
package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/IvanBrykalov/shardcached/internal/config"
	"github.com/IvanBrykalov/shardcached/internal/logging"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// app carries state shared by subcommands.
type app struct {
	configFile string
	logLevel   string
	logFormat  string
	logOut     io.Writer

	loader *config.Loader
	cfg    *config.Config
	log    zerolog.Logger
}

// load resolves the configuration for cmd, binding its flags to keys,
// and builds the process logger from it.
func (a *app) load(flags *pflag.FlagSet, keys map[string]string) error {
	bootstrap := logging.New(logging.Config{Level: zerolog.WarnLevel, Format: "console", Out: a.logOut})
	a.loader = config.NewLoader(bootstrap)

	all := map[string]string{"log-level": "log.level", "log-format": "log.format"}
	for k, v := range keys {
		all[k] = v
	}
	if err := a.loader.BindFlags(flags, all); err != nil {
		return err
	}

	cfg, err := a.loader.Load(a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	// The logger itself passes everything; the effective level is global
	// so a config reload can move it in either direction.
	lc := cfg.LoggingConfig()
	zerolog.SetGlobalLevel(lc.Level)
	lc.Level = zerolog.TraceLevel
	lc.Out = a.logOut
	a.log = logging.New(lc)
	return nil
}

// NewRootCmd creates the root command for shardcached
func NewRootCmd(info BuildInfo, stdout, stderr io.Writer) *cobra.Command {
	return newRootCmd(&app{logOut: stderr}, info, stdout, stderr)
}

func newRootCmd(a *app, info BuildInfo, stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "shardcached",
		Short:         "A segmented in-memory key-value cache server",
		Long:          `shardcached serves a byte-budgeted, segmented LRU cache over a compact binary protocol.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "config file (yaml, toml or json)")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "console", "log format: console or json")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "shardcached %s\n", info.Version)
			fmt.Fprintf(out, "commit: %s\n", info.Commit)
			fmt.Fprintf(out, "built: %s\n", info.BuildDate)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newServerCmd(a))
	rootCmd.AddCommand(newClientCmd(a))

	return rootCmd
}
