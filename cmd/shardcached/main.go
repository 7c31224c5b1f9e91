// Command shardcached runs the cache server and a command-line client.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/IvanBrykalov/shardcached/internal/cli"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.buildDate=...".
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	root := cli.NewRootCmd(cli.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	}, os.Stdout, os.Stderr)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "shardcached: %v\n", err)
		os.Exit(1)
	}
}
