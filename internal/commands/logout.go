package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/session"
)

func init() {
	Register(&LogoutCmd{})
}

// LogoutCmd implements the logout command.
type LogoutCmd struct{}

func (c *LogoutCmd) Name() string      { return "logout" }
func (c *LogoutCmd) Aliases() []string { return nil }
func (c *LogoutCmd) Synopsis() string  { return "Remove stored credentials" }
func (c *LogoutCmd) Usage() string     { return "tasksync logout" }
func (c *LogoutCmd) NeedsAuth() bool   { return false }

func (c *LogoutCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *LogoutCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	var (
		loggedIn bool
		remove   func() error
	)
	if cfg.Backend == config.BackendGoogleTasks {
		// oauth_client.json stays; only the token is credentials of this user.
		loggedIn, remove = cfg.HasToken(), cfg.RemoveToken
	} else {
		store := session.FileProvider{Path: cfg.SessionPath()}
		loggedIn, remove = store.Exists(), store.Remove
	}

	if !loggedIn {
		if !cfg.Quiet {
			fmt.Fprintln(out, "not logged in")
		}
		return exitcode.Success
	}
	if err := remove(); err != nil {
		fmt.Fprintf(errOut, "error: failed to remove credentials: %v\n", err)
		return exitcode.AuthError
	}

	ok(cfg, out)
	return exitcode.Success
}
