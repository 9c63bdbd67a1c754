package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tasksync/internal/bus"
	"tasksync/internal/commands"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
	"tasksync/internal/session"
)

// Dispatcher handles command-line parsing and dispatch.
type Dispatcher struct {
	registry *commands.Registry
	factory  ServiceFactory
	sessions SessionLoader
	in       io.Reader
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSessionLoader replaces DefaultSessionLoader.
func WithSessionLoader(fn SessionLoader) Option {
	return func(d *Dispatcher) { d.sessions = fn }
}

// WithInput sets the reader used for scripts and prompts instead of the terminal.
func WithInput(r io.Reader) Option {
	return func(d *Dispatcher) { d.in = r }
}

// NewDispatcher creates a new dispatcher with the given registry and service factory.
func NewDispatcher(registry *commands.Registry, factory ServiceFactory, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		factory:  factory,
		sessions: DefaultSessionLoader,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// globalFlags are accepted before or after any command.
type globalFlags struct {
	configDir string
	quiet     bool
	debug     bool
	json      bool
}

// Run parses arguments and dispatches to the appropriate command.
// Returns the exit code.
func (d *Dispatcher) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	code := exitcode.Success
	root := d.root(&code, out, errOut)
	// A nil slice would make cobra fall back to os.Args.
	root.SetArgs(append([]string{}, args...))

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	return code
}

// root builds a fresh command tree so flag values never leak between runs.
func (d *Dispatcher) root(code *int, out, errOut io.Writer) *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           config.AppName,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unknown command: %s", args[0])
			}
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), commands.HelpText)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configDir, "config", "", "override config directory")
	pf.BoolVar(&flags.quiet, "quiet", false, "suppress informational output")
	pf.BoolVar(&flags.debug, "debug", false, "print debug logs to stderr")
	pf.BoolVar(&flags.json, "json", false, "print JSON instead of text")

	for _, c := range d.registry.All() {
		sub := &cobra.Command{
			Use:                   c.Name(),
			Aliases:               c.Aliases(),
			Short:                 c.Synopsis(),
			DisableFlagsInUseLine: true,
			Args:                  cobra.ArbitraryArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				*code = d.dispatch(cmd.Context(), c, flags, args, out, errOut)
				return nil
			},
		}
		c.RegisterFlags(sub.Flags())
		if c.Name() == "help" {
			root.SetHelpCommand(sub)
			continue
		}
		root.AddCommand(sub)
	}

	// No command lists tasks with list's default flags.
	root.RunE = func(cmd *cobra.Command, args []string) error {
		list, ok := d.registry.Find("list")
		if !ok {
			return errors.New("unknown command: list")
		}
		*code = d.dispatch(cmd.Context(), list, flags, nil, out, errOut)
		return nil
	}
	return root
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd commands.Command, flags globalFlags, args []string, out, errOut io.Writer) int {
	cfg, err := config.New(flags.configDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	cfg.Quiet = flags.quiet
	cfg.Debug = flags.debug
	cfg.JSON = flags.json

	logger := cfg.Logger(errOut)
	env := &commands.Env{
		Bus:    bus.New(),
		Log:    logger,
		Styles: output.NewStyles(out),
		In:     d.in,
	}

	if cmd.NeedsAuth() {
		sess, err := d.sessions(cfg).Load()
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				fmt.Fprintf(errOut, "error: not logged in (run: %s login)\n", config.AppName)
			} else {
				fmt.Fprintf(errOut, "error: %v\n", err)
			}
			return exitcode.AuthError
		}
		if d.factory == nil {
			fmt.Fprintln(errOut, "error: no backend configured")
			return exitcode.BackendError
		}
		svc, err := d.factory(ctx, cfg, sess, logger)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.ForError(err)
		}
		env.Session = sess
		env.Service = svc
		logger.Printf("dispatch: %s as %s via %s", cmd.Name(), sess.ActorID, cfg.Backend)
	}

	return cmd.Run(ctx, cfg, env, args, out, errOut)
}
