package commands

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
)

func init() {
	Register(&RmCmd{})
}

// RmCmd implements the rm command.
type RmCmd struct{}

func (c *RmCmd) Name() string      { return "rm" }
func (c *RmCmd) Aliases() []string { return []string{"delete"} }
func (c *RmCmd) Synopsis() string  { return "Delete tasks" }
func (c *RmCmd) Usage() string     { return "tasksync rm <ref>..." }
func (c *RmCmd) NeedsAuth() bool   { return true }

func (c *RmCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *RmCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	refs, err := ParseTaskRefs(args)
	if err != nil {
		return usageError(errOut, "%v", err)
	}

	cache, err := env.openCache(ctx)
	if err != nil {
		return fail(errOut, err)
	}
	ids, err := resolveAll(cache, refs)
	if err != nil {
		return usageError(errOut, "%v", err)
	}

	// A task that is already gone counts as deleted.
	for _, id := range ids {
		if err := cache.Remove(ctx, id); err != nil {
			return fail(errOut, err)
		}
	}

	ok(cfg, out)
	return exitcode.Success
}
