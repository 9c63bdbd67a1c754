// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/spf13/pflag"

	"tasksync/internal/bus"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
	"tasksync/internal/service"
	"tasksync/internal/session"
	"tasksync/internal/taskcache"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsAuth returns true if the command requires a session.
	// Commands like help, version, login, logout and serve return false.
	NeedsAuth() bool

	// RegisterFlags registers command-specific flags and resets them to their defaults.
	RegisterFlags(fs *pflag.FlagSet)

	// Run executes the command.
	// cfg is always provided (config dir, paths, backend settings).
	// env.Session and env.Service are zero if NeedsAuth() returns false.
	// args contains positional arguments after flag parsing.
	// Returns exit code.
	Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int
}

// Env carries the per-invocation collaborators of a command.
type Env struct {
	Session session.Session
	Service service.Service
	Bus     *bus.Bus
	Log     *log.Logger
	Styles  *output.Styles

	// In is read by commands that accept "-" for standard input.
	In io.Reader

	// Input opens the interactive line reader used by shell and login.
	Input func(cfg *config.Config) (LineReader, error)
}

func (e *Env) styles() *output.Styles {
	if e == nil || e.Styles == nil {
		return output.Plain()
	}
	return e.Styles
}

func (e *Env) logger() *log.Logger {
	if e == nil || e.Log == nil {
		return log.New(io.Discard, "", 0)
	}
	return e.Log
}

func (e *Env) bus() *bus.Bus {
	if e.Bus == nil {
		e.Bus = bus.New()
	}
	return e.Bus
}

// openCache builds the session's task cache and loads it from the store.
func (e *Env) openCache(ctx context.Context, opts ...taskcache.Option) (*taskcache.Cache, error) {
	opts = append([]taskcache.Option{taskcache.WithLogger(e.logger())}, opts...)
	c, err := taskcache.New(e.Service, e.Session, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// fail prints err the way every command reports failures and returns its exit code.
func fail(errOut io.Writer, err error) int {
	fmt.Fprintf(errOut, "error: %v\n", err)
	return exitcode.ForError(err)
}

// usageError prints a user error and returns exitcode.UserError.
func usageError(errOut io.Writer, format string, args ...any) int {
	fmt.Fprintf(errOut, "error: "+format+"\n", args...)
	return exitcode.UserError
}

// ok acknowledges a successful mutation unless quiet.
func ok(cfg *config.Config, out io.Writer) {
	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
}
