package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
)

func init() {
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "tasksync help" }
func (c *HelpCmd) NeedsAuth() bool   { return false }

func (c *HelpCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	fmt.Fprint(out, HelpText)
	return exitcode.Success
}

// HelpText is the usage summary printed by help, -h and --help.
const HelpText = `Usage:
  tasksync                                        List tasks
  tasksync list [--filter all|pending|completed] [--limit <n>] [--offset <n>]
  tasksync show <ref>
  tasksync add [--description <text>] [--due <date>] [--tag <tag>]... <title...>
  tasksync edit <ref> [--title <t>] [--description <d>] [--due <date> | --no-due]
                      [--tag <tag>... | --clear-tags] [--done | --open]
  tasksync done <ref>...                          Toggle completion
  tasksync rm <ref>...
  tasksync apply <script.yaml | ->                Run an action script
  tasksync shell                                  Interactive shell
  tasksync login [--email <email>] [--register [--name <name>]]
  tasksync logout
  tasksync serve [--addr <host:port>] [--db <path>]
  tasksync help
  tasksync version

A <ref> is the task's number in 'tasksync list' or #ID.

Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr
  --json           Print JSON instead of text
`
