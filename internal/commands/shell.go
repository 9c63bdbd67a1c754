package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/pflag"

	"tasksync/internal/actions"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
	"tasksync/internal/service"
	"tasksync/internal/taskcache"
)

const shellPrompt = "tasksync> "

func init() {
	Register(&ShellCmd{})
}

// ShellCmd runs an interactive session over one live task cache.
type ShellCmd struct{}

func (c *ShellCmd) Name() string      { return "shell" }
func (c *ShellCmd) Aliases() []string { return nil }
func (c *ShellCmd) Synopsis() string  { return "Interactive task shell" }
func (c *ShellCmd) Usage() string     { return "tasksync shell" }
func (c *ShellCmd) NeedsAuth() bool   { return true }

func (c *ShellCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *ShellCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		return usageError(errOut, "unexpected argument: %s", args[0])
	}

	sh, err := NewShell(ctx, cfg, env, out)
	if err != nil {
		return fail(errOut, err)
	}
	defer sh.Close()

	in, err := env.input(cfg)
	if err != nil {
		return fail(errOut, err)
	}
	defer in.Close()

	sh.printList(filterAll)
	for {
		line, err := in.ReadLine(shellPrompt)
		if err != nil {
			switch {
			case errors.Is(err, readline.ErrInterrupt):
				continue
			case errors.Is(err, io.EOF):
				return exitcode.Success
			default:
				return fail(errOut, err)
			}
		}
		if sh.Exec(ctx, line) {
			return exitcode.Success
		}
		if ctx.Err() != nil {
			return exitcode.Success
		}
	}
}

// Shell interprets shell lines against a cache that is attached to the
// notification bus, so script runs and other publishers keep it current.
type Shell struct {
	cfg    *config.Config
	cache  *taskcache.Cache
	exec   *actions.Executor
	status output.StatusLine
	st     *output.Styles
	out    io.Writer
	detach func()
}

// NewShell loads the session's cache and attaches it to env's bus.
func NewShell(ctx context.Context, cfg *config.Config, env *Env, out io.Writer) (*Shell, error) {
	sh := &Shell{cfg: cfg, st: env.styles(), out: out}

	cache, err := env.openCache(ctx, taskcache.WithErrorReporter(sh.status.Set))
	if err != nil {
		return nil, err
	}
	exec, err := actions.NewExecutor(env.Service, env.Session, env.bus(), env.logger())
	if err != nil {
		return nil, err
	}
	sh.cache = cache
	sh.exec = exec
	sh.detach = cache.Attach(ctx, env.bus())
	return sh, nil
}

// Close detaches the cache from the bus.
func (s *Shell) Close() {
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
}

// Status returns the current error message, or "".
func (s *Shell) Status() string {
	return s.status.Message()
}

// Cache returns the shell's task cache.
func (s *Shell) Cache() *taskcache.Cache {
	return s.cache
}

// Exec runs one shell line and reports whether the shell should exit.
// A failure replaces the status line; a success clears it.
func (s *Shell) Exec(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch name {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprint(s.out, shellHelp)
	case "list", "ls":
		err = s.list(args)
	case "refresh":
		if err = s.cache.Refresh(ctx); err == nil {
			s.printList(filterAll)
		}
	case "show":
		err = s.show(args)
	case "add":
		err = s.add(ctx, strings.Join(args, " "))
	case "done", "toggle":
		err = s.withRef(args, func(id service.ID) error {
			_, err := s.cache.Toggle(ctx, id)
			return err
		})
	case "edit":
		err = s.edit(ctx, args)
	case "rm", "delete":
		err = s.withRef(args, func(id service.ID) error {
			return s.cache.Remove(ctx, id)
		})
	case "run":
		err = s.run(ctx, args)
	default:
		err = fmt.Errorf("unknown command: %s (try help)", name)
	}

	s.status.Set(err)
	s.status.Render(s.out, s.st)
	return false
}

func (s *Shell) printList(filter string) {
	printTasks(s.cfg, s.st, s.out, s.cache.Tasks(), filter, s.cache.Total())
}

func (s *Shell) list(args []string) error {
	filter := filterAll
	if len(args) > 0 {
		filter = strings.ToLower(args[0])
	}
	switch filter {
	case filterAll, filterPending, filterCompleted:
	default:
		return fmt.Errorf("invalid filter: %s", args[0])
	}
	s.printList(filter)
	return nil
}

func (s *Shell) show(args []string) error {
	if len(args) != 1 {
		return ErrTaskRefRequired
	}
	ref, err := ParseTaskRef(args[0])
	if err != nil {
		return err
	}
	id, err := ref.Resolve(s.cache)
	if err != nil {
		return err
	}
	task, found := s.cache.Find(id)
	if !found {
		return fmt.Errorf("task %s is not loaded (try refresh)", ref)
	}
	output.FormatTaskDetail(s.out, s.st, task)
	return nil
}

func (s *Shell) add(ctx context.Context, title string) error {
	req := service.CreateRequest{Title: title}
	if err := req.Validate(); err != nil {
		return err
	}
	if _, err := s.cache.Create(ctx, req); err != nil {
		return err
	}
	s.printList(filterAll)
	return nil
}

func (s *Shell) edit(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: edit <ref> <new title>")
	}
	title := strings.Join(args[1:], " ")
	return s.withRef(args[:1], func(id service.ID) error {
		_, err := s.cache.Edit(ctx, id, service.UpdateRequest{Title: &title})
		return err
	})
}

// withRef resolves a single reference, applies fn and reprints the list.
func (s *Shell) withRef(args []string, fn func(service.ID) error) error {
	if len(args) != 1 {
		return ErrTaskRefRequired
	}
	ref, err := ParseTaskRef(args[0])
	if err != nil {
		return err
	}
	id, err := ref.Resolve(s.cache)
	if err != nil {
		return err
	}
	if err := fn(id); err != nil {
		return err
	}
	s.printList(filterAll)
	return nil
}

// run executes a script outside the cache; the bus brings the cache up to date.
func (s *Shell) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: run <script.yaml>")
	}
	data, err := readScript(args[0], nil)
	if err != nil {
		return err
	}
	script, err := actions.ParseScript(data)
	if err != nil {
		return err
	}
	s.status.Clear()
	results, runErr := s.exec.Run(ctx, script)
	if !s.cfg.Quiet {
		for _, r := range results {
			fmt.Fprintln(s.out, r.Message)
		}
	}
	s.printList(filterAll)
	if runErr == nil && s.status.Message() != "" {
		// A refresh triggered by the run failed; keep its message.
		return errors.New(s.status.Message())
	}
	return runErr
}

const shellHelp = `Commands:
  list [all|pending|completed]   Show the cached tasks
  refresh                        Reload from the store
  show <ref>                     Show task details
  add <title...>                 Create a task
  done <ref>                     Toggle completion
  edit <ref> <title...>          Rename a task
  rm <ref>                       Delete a task
  run <script.yaml>              Run an action script
  help                           Show this help
  quit                           Leave the shell

A <ref> is a list number or #ID.
`
