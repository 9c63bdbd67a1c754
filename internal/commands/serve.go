package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/pflag"

	"tasksync/internal/config"
	"tasksync/internal/devserver"
	"tasksync/internal/devstore"
	"tasksync/internal/exitcode"
)

// DefaultDBFile is the development store's database filename in the config directory.
const DefaultDBFile = "tasks.db"

func init() {
	Register(&ServeCmd{})
}

// ServeCmd runs the development task store.
type ServeCmd struct {
	addr string
	db   string
}

func (c *ServeCmd) Name() string      { return "serve" }
func (c *ServeCmd) Aliases() []string { return nil }
func (c *ServeCmd) Synopsis() string  { return "Run the development task store" }
func (c *ServeCmd) Usage() string     { return "tasksync serve [--addr <host:port>] [--db <path>]" }
func (c *ServeCmd) NeedsAuth() bool   { return false }

func (c *ServeCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.addr, "addr", "localhost:8000", "listen address")
	fs.StringVar(&c.db, "db", "", "SQLite database path (default <config dir>/"+DefaultDBFile+", :memory: for none)")
}

func (c *ServeCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		return usageError(errOut, "unexpected argument: %s", args[0])
	}
	path := c.db
	if path == "" {
		path = filepath.Join(cfg.Dir, DefaultDBFile)
	}

	store, err := devstore.Open(path)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	defer store.Close()

	if !cfg.Quiet {
		fmt.Fprintf(out, "serving on http://%s (store: %s)\n", c.addr, path)
	}
	srv := devserver.New(store, env.logger(), cfg.Debug)
	if err := srv.ListenAndServe(ctx, c.addr); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	return exitcode.Success
}
