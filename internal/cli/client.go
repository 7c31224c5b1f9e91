package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/shardcached/client"
	"github.com/IvanBrykalov/shardcached/internal/config"
)

var clientFlagKeys = map[string]string{
	"network": "server.network",
	"address": "server.address",
}

const replHelp = `commands:
  ping
  get <key>
  set <key> <value> [seconds]
  delete <key>
  clear
  quit`

func newClientCmd(a *app) *cobra.Command {
	var timeout time.Duration
	d := config.Default()

	cmd := &cobra.Command{
		Use:   "client [command args...]",
		Short: "Connect to a server; run one command or start a REPL",
		Example: `  shardcached client
  shardcached client set greeting "hello world" 60
  shardcached client get greeting`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd.Flags(), clientFlagKeys); err != nil {
				return err
			}
			dialCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			c, err := client.Dial(dialCtx, a.cfg.Server.Network, a.cfg.Server.Address)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			r := newREPL(c, cmd.OutOrStdout(), timeout)
			if len(args) > 0 {
				_, err := r.exec(cmd.Context(), args)
				return err
			}
			return r.run(cmd.Context(), cmd.InOrStdin())
		},
	}

	f := cmd.Flags()
	f.String("network", d.Server.Network, "server network: tcp or unix")
	f.StringP("address", "a", d.Server.Address, "server address (host:port or socket path)")
	f.DurationVar(&timeout, "timeout", 5*time.Second, "per-request timeout")
	return cmd
}

var errSyntax = errors.New("syntax error")

// repl evaluates tokenized command lines against a client.
type repl struct {
	c       *client.Client
	out     io.Writer
	timeout time.Duration
	theme   theme
}

func newREPL(c *client.Client, out io.Writer, timeout time.Duration) *repl {
	return &repl{c: c, out: out, timeout: timeout, theme: newTheme()}
}

// run reads lines from in until EOF or quit. Command errors are printed
// and the loop goes on; a closed connection ends it.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 64<<20)
	for {
		fmt.Fprint(r.out, r.theme.Prompt.Render("shardcached> "))
		if !sc.Scan() {
			fmt.Fprintln(r.out, r.theme.Subtle.Render("quit"))
			return sc.Err()
		}
		args, err := tokenize(sc.Text())
		if err != nil {
			r.printErr(err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		quit, err := r.exec(ctx, args)
		if err != nil {
			r.printErr(err)
			if errors.Is(err, client.ErrClosed) {
				return err
			}
		}
		if quit {
			return nil
		}
	}
}

// exec runs one command and prints its result.
func (r *repl) exec(ctx context.Context, args []string) (quit bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	switch cmd := strings.ToLower(args[0]); {
	case cmd == "ping" && len(args) == 1:
		if err := r.c.Ping(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, r.theme.Ok.Render("pong"))

	case cmd == "get" && len(args) == 2:
		v, ok, err := r.c.Get(ctx, args[1])
		if err != nil {
			return false, err
		}
		if !ok {
			fmt.Fprintln(r.out, r.theme.Miss.Render("key not found"))
			return false, nil
		}
		fmt.Fprintln(r.out, r.theme.Value.Render(printable(v)))

	case cmd == "set" && (len(args) == 3 || len(args) == 4):
		var seconds uint64
		if len(args) == 4 {
			if seconds, err = strconv.ParseUint(args[3], 10, 32); err != nil {
				return false, fmt.Errorf("%w: expiration must be whole seconds, got %q", errSyntax, args[3])
			}
		}
		if err := r.c.SetWithExpiration(ctx, args[1], []byte(args[2]), uint32(seconds)); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, r.theme.Ok.Render("ok"))

	case cmd == "delete" && len(args) == 2:
		removed, err := r.c.Delete(ctx, args[1])
		if err != nil {
			return false, err
		}
		if !removed {
			fmt.Fprintln(r.out, r.theme.Miss.Render("key not found"))
			return false, nil
		}
		fmt.Fprintln(r.out, r.theme.Ok.Render("ok"))

	case cmd == "clear" && len(args) == 1:
		if err := r.c.Clear(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, r.theme.Ok.Render("ok"))

	case cmd == "quit" || cmd == "exit":
		return true, nil

	case cmd == "help":
		fmt.Fprintln(r.out, r.theme.Subtle.Render(replHelp))

	default:
		return false, fmt.Errorf("%w: try help", errSyntax)
	}
	return false, nil
}

func (r *repl) printErr(err error) {
	fmt.Fprintln(r.out, r.theme.Error.Render("error: "+err.Error()))
}

// printable shows UTF-8 values as text and anything else as a Go byte literal.
func printable(v []byte) string {
	if utf8.Valid(v) {
		return string(v)
	}
	return fmt.Sprintf("%q", v)
}
