package commands

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
	"tasksync/internal/service"
	"tasksync/internal/taskcache"
)

func init() {
	Register(&AddCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	description string
	due         string
	tags        []string
}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return []string{"create"} }
func (c *AddCmd) Synopsis() string  { return "Create a task" }
func (c *AddCmd) Usage() string {
	return "tasksync add [--description <text>] [--due <YYYY-MM-DD>] [--tag <tag>]... <title...>"
}
func (c *AddCmd) NeedsAuth() bool { return true }

func (c *AddCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.description, "description", "d", "", "task description")
	fs.StringVar(&c.due, "due", "", "due date (YYYY-MM-DD)")
	fs.StringSliceVarP(&c.tags, "tag", "t", nil, "tag (repeatable)")
}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	title := strings.Join(args, " ")
	if strings.TrimSpace(title) == "" {
		return usageError(errOut, "title required")
	}

	req := service.CreateRequest{
		Title:       title,
		Description: c.description,
		Tags:        c.tags,
	}
	if c.due != "" {
		d, err := service.ParseDate(c.due)
		if err != nil {
			return usageError(errOut, "%v", err)
		}
		req.DueDate = &d
	}
	if err := req.Validate(); err != nil {
		return fail(errOut, err)
	}

	// Creating needs no snapshot; the task is inserted at the head of an empty cache.
	cache, err := taskcache.New(env.Service, env.Session, taskcache.WithLogger(env.logger()))
	if err != nil {
		return fail(errOut, err)
	}
	task, err := cache.Create(ctx, req)
	if err != nil {
		return fail(errOut, err)
	}

	if cfg.JSON {
		if err := output.WriteJSON(out, task, false); err != nil {
			return fail(errOut, err)
		}
		return exitcode.Success
	}
	ok(cfg, out)
	return exitcode.Success
}
