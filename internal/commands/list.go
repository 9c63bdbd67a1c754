package commands

import (
	"context"
	"fmt"
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
	Register(&ListCmd{})
}

// Listing filters.
const (
	filterAll       = "all"
	filterPending   = "pending"
	filterCompleted = "completed"
)

// ListCmd implements the list command.
// Handles both `tasksync` (no args) and `tasksync list`.
type ListCmd struct {
	filter string
	limit  int
	offset int
}

func (c *ListCmd) Name() string      { return "list" }
func (c *ListCmd) Aliases() []string { return []string{"ls"} }
func (c *ListCmd) Synopsis() string  { return "List tasks" }
func (c *ListCmd) Usage() string {
	return "tasksync list [--filter all|pending|completed] [--limit <n>] [--offset <n>]"
}
func (c *ListCmd) NeedsAuth() bool { return true }

func (c *ListCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.filter, "filter", "f", filterAll, "show all, pending or completed tasks")
	fs.IntVar(&c.limit, "limit", 0, "page size (store default when 0)")
	fs.IntVar(&c.offset, "offset", 0, "number of tasks to skip")
}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		return usageError(errOut, "unexpected argument: %s", args[0])
	}
	filter := strings.ToLower(strings.TrimSpace(c.filter))
	switch filter {
	case "", filterAll, filterPending, filterCompleted:
	default:
		return usageError(errOut, "invalid filter: %s", c.filter)
	}
	if c.limit < 0 || c.offset < 0 {
		return usageError(errOut, "limit and offset must not be negative")
	}

	cache, err := env.openCache(ctx, taskcache.WithPagination(service.Pagination{Limit: c.limit, Offset: c.offset}))
	if err != nil {
		return fail(errOut, err)
	}

	tasks := filterTasks(cache.Tasks(), filter)
	if cfg.JSON {
		page := service.Page{Tasks: tasks, Total: cache.Total(), Limit: c.limit, Offset: c.offset}
		if err := output.WriteJSON(out, page, false); err != nil {
			return fail(errOut, err)
		}
		return exitcode.Success
	}

	printTasks(cfg, env.styles(), out, cache.Tasks(), filter, cache.Total())
	return exitcode.Success
}

// printTasks prints the numbered list. Numbers are positions in the full
// snapshot so they stay valid as task references under a filter.
func printTasks(cfg *config.Config, st *output.Styles, out io.Writer, tasks []service.Task, filter string, total int) {
	shown := 0
	for i, task := range tasks {
		if !matches(task, filter) {
			continue
		}
		output.FormatTask(out, st, i+1, task)
		shown++
	}
	if shown == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(out, "no tasks found")
		}
		return
	}
	output.FormatListFooter(out, st, shown, total)
}

func matches(task service.Task, filter string) bool {
	switch filter {
	case filterPending:
		return !task.Completed
	case filterCompleted:
		return task.Completed
	}
	return true
}

func filterTasks(tasks []service.Task, filter string) []service.Task {
	out := make([]service.Task, 0, len(tasks))
	for _, t := range tasks {
		if matches(t, filter) {
			out = append(out, t)
		}
	}
	return out
}
