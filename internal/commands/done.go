package commands

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
	"tasksync/internal/service"
)

func init() {
	Register(&DoneCmd{})
}

// DoneCmd flips the completion flag of one or more tasks.
type DoneCmd struct{}

func (c *DoneCmd) Name() string      { return "done" }
func (c *DoneCmd) Aliases() []string { return []string{"toggle"} }
func (c *DoneCmd) Synopsis() string  { return "Toggle task completion" }
func (c *DoneCmd) Usage() string     { return "tasksync done <ref>..." }
func (c *DoneCmd) NeedsAuth() bool   { return true }

func (c *DoneCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
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

	toggled := make([]service.Task, 0, len(ids))
	for _, id := range ids {
		task, err := cache.Toggle(ctx, id)
		if err != nil {
			return fail(errOut, err)
		}
		toggled = append(toggled, task)
	}

	if cfg.JSON {
		if err := output.WriteJSON(out, toggled, false); err != nil {
			return fail(errOut, err)
		}
		return exitcode.Success
	}
	ok(cfg, out)
	return exitcode.Success
}
