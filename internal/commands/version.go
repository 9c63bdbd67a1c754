package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
)

// Version is the application version. Set at build time.
var Version = "0.1.0"

func init() {
	Register(&VersionCmd{})
}

// VersionCmd implements the version command.
type VersionCmd struct{}

func (c *VersionCmd) Name() string      { return "version" }
func (c *VersionCmd) Aliases() []string { return nil }
func (c *VersionCmd) Synopsis() string  { return "Print version" }
func (c *VersionCmd) Usage() string     { return "tasksync version" }
func (c *VersionCmd) NeedsAuth() bool   { return false }

func (c *VersionCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *VersionCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	if cfg.JSON {
		if err := output.WriteJSON(out, map[string]string{"name": config.AppName, "version": Version}, false); err != nil {
			return fail(errOut, err)
		}
		return exitcode.Success
	}
	fmt.Fprintf(out, "%s %s\n", config.AppName, Version)
	return exitcode.Success
}
