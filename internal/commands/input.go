package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"tasksync/internal/config"
)

// HistoryFile is the shell history filename in the config directory.
const HistoryFile = "history"

// LineReader reads interactive input.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
	Close() error
}

type basicLineReader struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewBasicLineReader reads lines from in without terminal handling.
// Prompts are written to out when it is non-nil.
func NewBasicLineReader(in io.Reader, out io.Writer) LineReader {
	return &basicLineReader{reader: bufio.NewReader(in), out: out}
}

func (b *basicLineReader) ReadLine(prompt string) (string, error) {
	if b.out != nil {
		fmt.Fprint(b.out, prompt)
	}
	line, err := b.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (b *basicLineReader) ReadPassword(prompt string) (string, error) {
	return b.ReadLine(prompt)
}

func (b *basicLineReader) Close() error { return nil }

type readlineReader struct {
	instance *readline.Instance
}

func newReadlineReader(historyPath string) (*readlineReader, error) {
	if historyPath != "" {
		if err := os.MkdirAll(filepath.Dir(historyPath), 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	instance, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyPath,
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, err
	}
	return &readlineReader{instance: instance}, nil
}

func (r *readlineReader) ReadLine(prompt string) (string, error) {
	r.instance.SetPrompt(prompt)
	return r.instance.Readline()
}

func (r *readlineReader) ReadPassword(prompt string) (string, error) {
	b, err := r.instance.ReadPassword(prompt)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *readlineReader) Close() error {
	if r == nil || r.instance == nil {
		return nil
	}
	return r.instance.Close()
}

// TerminalInput opens a readline reader with history in the config directory,
// falling back to plain stdin when no terminal is available.
func TerminalInput(cfg *config.Config) (LineReader, error) {
	r, err := newReadlineReader(filepath.Join(cfg.Dir, HistoryFile))
	if err != nil {
		return NewBasicLineReader(os.Stdin, os.Stderr), nil
	}
	return r, nil
}

func (e *Env) input(cfg *config.Config) (LineReader, error) {
	if e.Input != nil {
		return e.Input(cfg)
	}
	if e.In != nil {
		return NewBasicLineReader(e.In, nil), nil
	}
	return TerminalInput(cfg)
}
