package commands

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/pflag"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
	"tasksync/internal/service"
)

func init() {
	Register(&EditCmd{})
}

// EditCmd changes the given fields of a task and leaves the rest alone.
type EditCmd struct {
	flags *pflag.FlagSet

	title       string
	description string
	due         string
	noDue       bool
	tags        []string
	clearTags   bool
	done        bool
	open        bool
}

func (c *EditCmd) Name() string      { return "edit" }
func (c *EditCmd) Aliases() []string { return []string{"update"} }
func (c *EditCmd) Synopsis() string  { return "Change fields of a task" }
func (c *EditCmd) Usage() string {
	return "tasksync edit <ref> [--title <t>] [--description <d>] [--due <date> | --no-due] [--tag <tag>... | --clear-tags] [--done | --open]"
}
func (c *EditCmd) NeedsAuth() bool { return true }

func (c *EditCmd) RegisterFlags(fs *pflag.FlagSet) {
	c.flags = fs
	fs.StringVar(&c.title, "title", "", "new title")
	fs.StringVarP(&c.description, "description", "d", "", "new description (empty clears it)")
	fs.StringVar(&c.due, "due", "", "new due date (YYYY-MM-DD)")
	fs.BoolVar(&c.noDue, "no-due", false, "remove the due date")
	fs.StringSliceVarP(&c.tags, "tag", "t", nil, "replace tags (repeatable)")
	fs.BoolVar(&c.clearTags, "clear-tags", false, "remove all tags")
	fs.BoolVar(&c.done, "done", false, "mark completed")
	fs.BoolVar(&c.open, "open", false, "mark not completed")
}

func (c *EditCmd) changed(name string) bool {
	return c.flags != nil && c.flags.Changed(name)
}

// request builds the partial update from the flags actually given.
func (c *EditCmd) request() (service.UpdateRequest, error) {
	var req service.UpdateRequest
	if c.changed("title") {
		title := c.title
		req.Title = &title
	}
	if c.changed("description") {
		desc := c.description
		req.Description = &desc
	}
	if c.changed("due") && c.noDue {
		return req, errors.New("cannot use both --due and --no-due")
	}
	if c.changed("due") {
		d, err := service.ParseDate(c.due)
		if err != nil {
			return req, err
		}
		req.DueDate = &d
	}
	req.ClearDueDate = c.noDue
	if c.changed("tag") && c.clearTags {
		return req, errors.New("cannot use both --tag and --clear-tags")
	}
	if c.changed("tag") {
		tags := append([]string(nil), c.tags...)
		req.Tags = &tags
	}
	if c.clearTags {
		tags := []string{}
		req.Tags = &tags
	}
	if c.done && c.open {
		return req, errors.New("cannot use both --done and --open")
	}
	if c.done || c.open {
		completed := c.done
		req.Completed = &completed
	}
	if req.Empty() {
		return req, errors.New("nothing to change")
	}
	return req, nil
}

func (c *EditCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		return usageError(errOut, "%v", ErrTaskRefRequired)
	}
	if len(args) > 1 {
		return usageError(errOut, "expected one task reference")
	}
	ref, err := ParseTaskRef(args[0])
	if err != nil {
		return usageError(errOut, "%v", err)
	}
	req, err := c.request()
	if err != nil {
		return usageError(errOut, "%v", err)
	}
	if err := req.Validate(); err != nil {
		return fail(errOut, err)
	}

	cache, err := env.openCache(ctx)
	if err != nil {
		return fail(errOut, err)
	}
	id, err := ref.Resolve(cache)
	if err != nil {
		return usageError(errOut, "%v", err)
	}
	task, err := cache.Edit(ctx, id, req)
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
