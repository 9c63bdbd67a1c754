package commands

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
)

func init() {
	Register(&ShowCmd{})
}

// ShowCmd prints every field of one task.
type ShowCmd struct{}

func (c *ShowCmd) Name() string      { return "show" }
func (c *ShowCmd) Aliases() []string { return nil }
func (c *ShowCmd) Synopsis() string  { return "Show task details" }
func (c *ShowCmd) Usage() string     { return "tasksync show <ref>" }
func (c *ShowCmd) NeedsAuth() bool   { return true }

func (c *ShowCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *ShowCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		if len(args) == 0 {
			return usageError(errOut, "%v", ErrTaskRefRequired)
		}
		return usageError(errOut, "expected one task reference")
	}
	ref, err := ParseTaskRef(args[0])
	if err != nil {
		return usageError(errOut, "%v", err)
	}

	cache, err := env.openCache(ctx)
	if err != nil {
		return fail(errOut, err)
	}
	id, err := ref.Resolve(cache)
	if err != nil {
		return usageError(errOut, "%v", err)
	}

	task, found := cache.Find(id)
	if !found {
		// Not in the loaded page; ask the store directly.
		task, err = env.Service.Get(ctx, cache.ActorID(), id)
		if err != nil {
			return fail(errOut, err)
		}
	}

	if cfg.JSON {
		if err := output.WriteJSON(out, task, false); err != nil {
			return fail(errOut, err)
		}
		return exitcode.Success
	}
	output.FormatTaskDetail(out, env.styles(), task)
	return exitcode.Success
}
