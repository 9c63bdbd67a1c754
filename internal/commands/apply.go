package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"tasksync/internal/actions"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
	"tasksync/internal/service"
	"tasksync/internal/taskcache"
)

func init() {
	Register(&ApplyCmd{})
}

// ApplyCmd runs an action script against the store outside the task cache,
// then prints the list the cache converged to.
type ApplyCmd struct{}

func (c *ApplyCmd) Name() string      { return "apply" }
func (c *ApplyCmd) Aliases() []string { return nil }
func (c *ApplyCmd) Synopsis() string  { return "Run an action script" }
func (c *ApplyCmd) Usage() string     { return "tasksync apply <script.yaml | ->" }
func (c *ApplyCmd) NeedsAuth() bool   { return true }

func (c *ApplyCmd) RegisterFlags(fs *pflag.FlagSet) {}

type applyOutput struct {
	Results []actions.Result `json:"results"`
	Tasks   []service.Task   `json:"tasks"`
	Total   int              `json:"total"`
}

func (c *ApplyCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		return usageError(errOut, "script path required (use - for stdin)")
	}
	data, err := readScript(args[0], env.In)
	if err != nil {
		return usageError(errOut, "%v", err)
	}
	script, err := actions.ParseScript(data)
	if err != nil {
		return usageError(errOut, "invalid script: %v", err)
	}

	b := env.bus()
	var refreshErr error
	cache, err := env.openCache(ctx, taskcache.WithErrorReporter(func(err error) { refreshErr = err }))
	if err != nil {
		return fail(errOut, err)
	}
	detach := cache.Attach(ctx, b)
	defer detach()

	exec, err := actions.NewExecutor(env.Service, env.Session, b, env.logger())
	if err != nil {
		return fail(errOut, err)
	}
	results, runErr := exec.Run(ctx, script)

	if cfg.JSON {
		if err := output.WriteJSON(out, applyOutput{Results: results, Tasks: cache.Tasks(), Total: cache.Total()}, false); err != nil {
			return fail(errOut, err)
		}
	} else {
		if !cfg.Quiet {
			for _, r := range results {
				fmt.Fprintln(out, r.Message)
			}
		}
		printTasks(cfg, env.styles(), out, cache.Tasks(), filterAll, cache.Total())
	}

	if runErr != nil {
		var stepErr *actions.StepError
		if errors.As(runErr, &stepErr) {
			fmt.Fprintf(errOut, "error: step %d (%s): %v\n", stepErr.Step, stepErr.Kind, stepErr.Err)
			return exitcode.ForError(runErr)
		}
		return fail(errOut, runErr)
	}
	if refreshErr != nil {
		return fail(errOut, fmt.Errorf("refresh after script: %w", refreshErr))
	}
	return exitcode.Success
}

func readScript(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
