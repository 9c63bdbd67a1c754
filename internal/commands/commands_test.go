package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"tasksync/internal/bus"
	"tasksync/internal/commands"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/service"
	"tasksync/internal/session"
	"tasksync/internal/testutil"
)

var u1 = session.Session{ActorID: "u1", Token: "token-u1", Email: "u1@example.com"}

func testConfig(t *testing.T, quiet bool) *config.Config {
	t.Helper()
	return &config.Config{
		Dir:     t.TempDir(),
		Quiet:   quiet,
		Backend: config.BackendHTTP,
		BaseURL: config.DefaultBaseURL,
	}
}

func testEnv(svc *testutil.FakeService) *commands.Env {
	env := &commands.Env{Bus: bus.New()}
	if svc != nil {
		env.Service = svc
		env.Session = u1
	}
	return env
}

// runWith parses args with the command's flags and runs it.
func runWith(t *testing.T, cmd commands.Command, cfg *config.Config, env *commands.Env, args []string) (stdout, stderr string, code int) {
	t.Helper()

	fs := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cmd.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags %v: %v", args, err)
	}

	var outBuf, errBuf bytes.Buffer
	code = cmd.Run(context.Background(), cfg, env, fs.Args(), &outBuf, &errBuf)
	return outBuf.String(), errBuf.String(), code
}

// runCommand is a helper to run a command with FakeService.
func runCommand(t *testing.T, cmd commands.Command, svc *testutil.FakeService, args []string, quiet bool) (stdout, stderr string, code int) {
	t.Helper()
	return runWith(t, cmd, testConfig(t, quiet), testEnv(svc), args)
}

func expectResult(t *testing.T, stdout, stderr string, code int, wantOut, wantErr string, wantCode int) {
	t.Helper()
	if code != wantCode {
		t.Errorf("expected exit code %d, got %d (stderr %q)", wantCode, code, stderr)
	}
	if stdout != wantOut {
		t.Errorf("expected stdout %q, got %q", wantOut, stdout)
	}
	if stderr != wantErr {
		t.Errorf("expected stderr %q, got %q", wantErr, stderr)
	}
}

// Tests for version command
func TestVersionCommand(t *testing.T) {
	stdout, stderr, code := runCommand(t, &commands.VersionCmd{}, nil, nil, false)
	expectResult(t, stdout, stderr, code, "tasksync 0.1.0\n", "", exitcode.Success)
}

func TestVersionCommand_JSON(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.JSON = true

	stdout, stderr, code := runWith(t, &commands.VersionCmd{}, cfg, testEnv(nil), nil)
	expectResult(t, stdout, stderr, code, `{"name":"tasksync","version":"0.1.0"}`+"\n", "", exitcode.Success)
}

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestVersionCommand_JSONWriteError(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.JSON = true

	var errBuf bytes.Buffer
	code := (&commands.VersionCmd{}).Run(context.Background(), cfg, testEnv(nil), nil, brokenWriter{}, &errBuf)
	if code != exitcode.BackendError {
		t.Errorf("expected exit code %d, got %d", exitcode.BackendError, code)
	}
	if !strings.Contains(errBuf.String(), "broken pipe") {
		t.Errorf("expected the write error on stderr, got %q", errBuf.String())
	}
}

// Tests for help command
func TestHelpCommand(t *testing.T) {
	stdout, stderr, code := runCommand(t, &commands.HelpCmd{}, nil, nil, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	for _, want := range []string{"Usage:", "tasksync apply", "#ID"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("help output should contain %q", want)
		}
	}
}

// Tests for list command
func TestListCommand_WithTasks(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.AddTask("u1", "Buy milk")
	svc.AddTask("u1", "Buy eggs")
	svc.AddTask("u2", "Not mine")

	stdout, stderr, code := runCommand(t, &commands.ListCmd{}, svc, nil, false)

	expected := "   1  [ ] Buy eggs\n   2  [ ] Buy milk\n------------\n2 of 2 tasks\n"
	expectResult(t, stdout, stderr, code, expected, "", exitcode.Success)
}

func TestListCommand_Empty(t *testing.T) {
	svc := testutil.NewFakeService()

	stdout, stderr, code := runCommand(t, &commands.ListCmd{}, svc, nil, false)
	expectResult(t, stdout, stderr, code, "no tasks found\n", "", exitcode.Success)

	// Quiet mode should suppress "no tasks found"
	stdout, stderr, code = runCommand(t, &commands.ListCmd{}, svc, nil, true)
	expectResult(t, stdout, stderr, code, "", "", exitcode.Success)
}

func TestListCommand_FilterKeepsPositions(t *testing.T) {
	svc := testutil.NewFakeService()
	milk := svc.AddTask("u1", "Buy milk")
	svc.AddTask("u1", "Buy eggs")
	if _, err := svc.ToggleCompletion(context.Background(), "u1", milk.ID); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, code := runCommand(t, &commands.ListCmd{}, svc, []string{"--filter", "completed"}, false)

	expected := "   2  [x] Buy milk\n------------\n1 of 2 tasks\n"
	expectResult(t, stdout, stderr, code, expected, "", exitcode.Success)
}

func TestListCommand_InvalidFilter(t *testing.T) {
	svc := testutil.NewFakeService()

	stdout, stderr, code := runCommand(t, &commands.ListCmd{}, svc, []string{"--filter", "someday"}, false)
	expectResult(t, stdout, stderr, code, "", "error: invalid filter: someday\n", exitcode.UserError)
	if svc.Calls("List") != 0 {
		t.Error("invalid filter should not reach the store")
	}
}

func TestListCommand_Pagination(t *testing.T) {
	svc := testutil.NewFakeService()
	for i := 1; i <= 5; i++ {
		svc.AddTask("u1", "task "+strconv.Itoa(i))
	}

	stdout, _, code := runCommand(t, &commands.ListCmd{}, svc, []string{"--limit", "2", "--offset", "1"}, false)

	expected := "   1  [ ] task 4\n   2  [ ] task 3\n------------\n2 of 5 tasks\n"
	if code != exitcode.Success || stdout != expected {
		t.Errorf("expected %q, got %q (code %d)", expected, stdout, code)
	}
}

func TestListCommand_JSON(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.AddTask("u1", "Buy milk")
	cfg := testConfig(t, false)
	cfg.JSON = true

	stdout, stderr, code := runWith(t, &commands.ListCmd{}, cfg, testEnv(svc), nil)
	if code != exitcode.Success || stderr != "" {
		t.Fatalf("unexpected failure %d %q", code, stderr)
	}

	var page service.Page
	if err := json.Unmarshal([]byte(stdout), &page); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	if page.Total != 1 || len(page.Tasks) != 1 || page.Tasks[0].Title != "Buy milk" {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestListCommand_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantErr  string
		wantCode int
	}{
		{
			name:     "transport",
			err:      &service.Error{Kind: service.Transport, Message: "request failed: connection refused"},
			wantErr:  "error: request failed: connection refused\n",
			wantCode: exitcode.BackendError,
		},
		{
			name:     "rejected credential",
			err:      &service.Error{Kind: service.Unauthorized, Message: "Invalid authentication credentials", Status: 401},
			wantErr:  "error: Invalid authentication credentials\n",
			wantCode: exitcode.AuthError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := testutil.NewFakeService()
			svc.ListErr = tt.err

			stdout, stderr, code := runCommand(t, &commands.ListCmd{}, svc, nil, false)
			expectResult(t, stdout, stderr, code, "", tt.wantErr, tt.wantCode)
		})
	}
}

// Tests for show command
func TestShowCommand(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.AddTask("u1", "Buy milk")

	stdout, stderr, code := runCommand(t, &commands.ShowCmd{}, svc, []string{"1"}, false)

	if code != exitcode.Success || stderr != "" {
		t.Fatalf("unexpected failure %d %q", code, stderr)
	}
	for _, want := range []string{"ID:          1\n", "Title:       Buy milk\n", "Status:      open\n"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestShowCommand_IDOutsideLoadedPage(t *testing.T) {
	svc := testutil.NewFakeService()
	for i := 0; i < 101; i++ {
		svc.AddTask("u1", "task "+strconv.Itoa(i+1))
	}

	stdout, stderr, code := runCommand(t, &commands.ShowCmd{}, svc, []string{"#1"}, false)

	if code != exitcode.Success || stderr != "" {
		t.Fatalf("unexpected failure %d %q", code, stderr)
	}
	if !strings.Contains(stdout, "Title:       task 1\n") {
		t.Errorf("expected the oldest task, got:\n%s", stdout)
	}
	if svc.Calls("Get") != 1 {
		t.Errorf("expected one Get, got %d", svc.Calls("Get"))
	}
}

// Tests for add command
func TestAddCommand_Success(t *testing.T) {
	svc := testutil.NewFakeService()

	stdout, stderr, code := runCommand(t, &commands.AddCmd{}, svc,
		[]string{"--due", "2025-03-01", "--tag", "home", "-t", "errand", "-d", "2 litres", "Buy", "groceries"}, false)
	expectResult(t, stdout, stderr, code, "ok\n", "", exitcode.Success)

	tasks := svc.Tasks("u1")
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	if got.Title != "Buy groceries" || got.Description != "2 litres" {
		t.Errorf("unexpected task %+v", got)
	}
	if got.DueDate == nil || got.DueDate.String() != "2025-03-01" {
		t.Errorf("expected due date 2025-03-01, got %v", got.DueDate)
	}
	if strings.Join(got.Tags, ",") != "home,errand" {
		t.Errorf("expected tags home,errand, got %v", got.Tags)
	}
	if svc.Calls("List") != 0 {
		t.Errorf("add should not list, got %d calls", svc.Calls("List"))
	}
}

func TestAddCommand_Quiet(t *testing.T) {
	svc := testutil.NewFakeService()

	stdout, stderr, code := runCommand(t, &commands.AddCmd{}, svc, []string{"Buy", "milk"}, true)
	expectResult(t, stdout, stderr, code, "", "", exitcode.Success)
}

func TestAddCommand_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no title", nil, "error: title required\n"},
		{"blank title", []string{"  "}, "error: title required\n"},
		{"bad due date", []string{"--due", "tomorrow", "x"}, "error: invalid date \"tomorrow\" (want YYYY-MM-DD)\n"},
		{"title too long", []string{strings.Repeat("a", 201)}, "error: title must be at most 200 characters\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := testutil.NewFakeService()
			stdout, stderr, code := runCommand(t, &commands.AddCmd{}, svc, tt.args, false)
			expectResult(t, stdout, stderr, code, "", tt.wantErr, exitcode.UserError)
			if svc.Calls("Create") != 0 {
				t.Error("rejected input reached the store")
			}
		})
	}
}

func TestAddCommand_NoSession(t *testing.T) {
	svc := testutil.NewFakeService()
	env := testEnv(svc)
	env.Session = session.Session{}

	stdout, stderr, code := runWith(t, &commands.AddCmd{}, testConfig(t, false), env, []string{"Buy milk"})
	expectResult(t, stdout, stderr, code, "", "error: not logged in\n", exitcode.AuthError)
}

// Tests for edit command
func TestEditCommand_OnlyGivenFields(t *testing.T) {
	svc := testutil.NewFakeService()
	ctx := context.Background()
	due := service.NewDate(2025, 3, 1)
	created, err := svc.Create(ctx, "u1", service.CreateRequest{Title: "Buy milk", DueDate: &due, Tags: []string{"home"}})
	if err != nil {
		t.Fatal(err)
	}

	stdout, stderr, code := runCommand(t, &commands.EditCmd{}, svc, []string{"1", "--title", "Buy oat milk"}, false)
	expectResult(t, stdout, stderr, code, "ok\n", "", exitcode.Success)

	got, _ := svc.Get(ctx, "u1", created.ID)
	if got.Title != "Buy oat milk" || got.DueDate == nil || len(got.Tags) != 1 {
		t.Errorf("edit changed unspecified fields: %+v", got)
	}

	_, _, code = runCommand(t, &commands.EditCmd{}, svc, []string{"#" + created.ID.String(), "--no-due", "--clear-tags", "--done"}, false)
	if code != exitcode.Success {
		t.Fatalf("expected success, got %d", code)
	}
	got, _ = svc.Get(ctx, "u1", created.ID)
	if got.DueDate != nil || len(got.Tags) != 0 || !got.Completed || got.Title != "Buy oat milk" {
		t.Errorf("unexpected task after clearing: %+v", got)
	}
}

func TestEditCommand_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no ref", nil, "error: task reference required\n"},
		{"nothing to change", []string{"1"}, "error: nothing to change\n"},
		{"due conflict", []string{"1", "--due", "2025-03-01", "--no-due"}, "error: cannot use both --due and --no-due\n"},
		{"status conflict", []string{"1", "--done", "--open"}, "error: cannot use both --done and --open\n"},
		{"empty title", []string{"1", "--title", ""}, "error: title is required\n"},
		{"out of range", []string{"3", "--title", "x"}, "error: task number out of range: 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := testutil.NewFakeService()
			svc.AddTask("u1", "Buy milk")

			stdout, stderr, code := runCommand(t, &commands.EditCmd{}, svc, tt.args, false)
			expectResult(t, stdout, stderr, code, "", tt.wantErr, exitcode.UserError)
			if svc.Calls("Update") != 0 {
				t.Error("rejected edit reached the store")
			}
		})
	}
}

// Tests for done command
func TestDoneCommand_Success(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.AddTask("u1", "Buy milk")
	svc.AddTask("u1", "Buy eggs")

	stdout, stderr, code := runCommand(t, &commands.DoneCmd{}, svc, []string{"1"}, false)
	expectResult(t, stdout, stderr, code, "ok\n", "", exitcode.Success)

	// Position 1 is the newest task.
	tasks := svc.Tasks("u1")
	if tasks[0].Completed || !tasks[1].Completed {
		t.Errorf("expected only 'Buy eggs' completed, got %+v", tasks)
	}

	// Toggling again restores the original value.
	runCommand(t, &commands.DoneCmd{}, svc, []string{"1"}, false)
	if svc.Tasks("u1")[1].Completed {
		t.Error("expected second toggle to restore completed=false")
	}
}

func TestDoneCommand_MultipleRefs(t *testing.T) {
	svc := testutil.NewFakeService()
	for _, title := range []string{"a", "b", "c"} {
		svc.AddTask("u1", title)
	}

	_, stderr, code := runCommand(t, &commands.DoneCmd{}, svc, []string{"1", "3"}, false)
	if code != exitcode.Success {
		t.Fatalf("expected success, got %d %q", code, stderr)
	}
	tasks := svc.Tasks("u1") // creation order: a, b, c
	if !tasks[0].Completed || tasks[1].Completed || !tasks[2].Completed {
		t.Errorf("expected a and c completed, got %+v", tasks)
	}
}

func TestDoneCommand_BadRefs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCode int
	}{
		{"no ref", nil, "error: task reference required\n", exitcode.UserError},
		{"invalid", []string{"abc"}, "error: invalid task reference: abc\n", exitcode.UserError},
		{"out of range", []string{"5"}, "error: task number out of range: 5\n", exitcode.UserError},
		{"unknown id", []string{"#99"}, "error: Task not found\n", exitcode.UserError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := testutil.NewFakeService()
			svc.AddTask("u1", "Only task")

			stdout, stderr, code := runCommand(t, &commands.DoneCmd{}, svc, tt.args, false)
			expectResult(t, stdout, stderr, code, "", tt.wantErr, tt.wantCode)
		})
	}
}

// Tests for rm command
func TestRmCommand_Success(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.AddTask("u1", "Buy milk")
	svc.AddTask("u1", "Buy eggs")

	stdout, stderr, code := runCommand(t, &commands.RmCmd{}, svc, []string{"1"}, false)
	expectResult(t, stdout, stderr, code, "ok\n", "", exitcode.Success)

	tasks := svc.Tasks("u1")
	if len(tasks) != 1 || tasks[0].Title != "Buy milk" {
		t.Errorf("expected only 'Buy milk' to remain, got %+v", tasks)
	}
}

func TestRmCommand_PositionsFromOneSnapshot(t *testing.T) {
	svc := testutil.NewFakeService()
	for _, title := range []string{"a", "b", "c"} {
		svc.AddTask("u1", title)
	}

	// Listed as c, b, a: removing 1 and 2 must remove c and b.
	_, stderr, code := runCommand(t, &commands.RmCmd{}, svc, []string{"1", "2"}, false)
	if code != exitcode.Success {
		t.Fatalf("expected success, got %d %q", code, stderr)
	}
	tasks := svc.Tasks("u1")
	if len(tasks) != 1 || tasks[0].Title != "a" {
		t.Errorf("expected only 'a' to remain, got %+v", tasks)
	}
}

func TestRmCommand_AlreadyDeleted(t *testing.T) {
	svc := testutil.NewFakeService()

	stdout, stderr, code := runCommand(t, &commands.RmCmd{}, svc, []string{"#42"}, false)
	expectResult(t, stdout, stderr, code, "ok\n", "", exitcode.Success)
}

func TestRmCommand_BackendError(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.AddTask("u1", "Buy milk")
	svc.DeleteErr = &service.Error{Kind: service.Transport, Message: "request timed out"}

	stdout, stderr, code := runCommand(t, &commands.RmCmd{}, svc, []string{"1"}, false)
	expectResult(t, stdout, stderr, code, "", "error: request timed out\n", exitcode.BackendError)
	if len(svc.Tasks("u1")) != 1 {
		t.Error("task should still exist")
	}
}

// Tests for apply command
const groceryScript = `
- action: create_task
  title: Buy milk
  tags: [home]
- action: create_task
  title: Buy eggs
- action: toggle_task_complete
  task_id: 1
`

func TestApplyCommand_File(t *testing.T) {
	svc := testutil.NewFakeService()
	path := filepath.Join(t.TempDir(), "script.yaml")
	if err := os.WriteFile(path, []byte(groceryScript), 0o600); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, code := runCommand(t, &commands.ApplyCmd{}, svc, []string{path}, false)

	expected := "Created task: 'Buy milk'\n" +
		"Created task: 'Buy eggs'\n" +
		"Marked 'Buy milk' as completed\n" +
		"   1  [ ] Buy eggs\n" +
		"   2  [x] Buy milk  #home\n" +
		"------------\n" +
		"2 of 2 tasks\n"
	expectResult(t, stdout, stderr, code, expected, "", exitcode.Success)

	// One initial load plus one refresh per mutation.
	if svc.Calls("List") != 4 {
		t.Errorf("expected 4 List calls, got %d", svc.Calls("List"))
	}
}

func TestApplyCommand_Stdin(t *testing.T) {
	svc := testutil.NewFakeService()
	env := testEnv(svc)
	env.In = strings.NewReader(`[{"action":"create_task","title":"From stdin"}]`)

	stdout, stderr, code := runWith(t, &commands.ApplyCmd{}, testConfig(t, true), env, []string{"-"})

	expected := "   1  [ ] From stdin\n------------\n1 of 1 tasks\n"
	expectResult(t, stdout, stderr, code, expected, "", exitcode.Success)
}

func TestApplyCommand_StopsAtFailedStep(t *testing.T) {
	svc := testutil.NewFakeService()
	env := testEnv(svc)
	env.In = strings.NewReader(`
- action: create_task
  title: one
- action: delete_task
  task_id: 99
- action: create_task
  title: never
`)

	stdout, stderr, code := runWith(t, &commands.ApplyCmd{}, testConfig(t, true), env, []string{"-"})

	expectResult(t, stdout, stderr, code,
		"   1  [ ] one\n------------\n1 of 1 tasks\n",
		"error: step 2 (delete_task): Task not found\n",
		exitcode.UserError)
	if len(svc.Tasks("u1")) != 1 {
		t.Errorf("expected steps after the failure to be skipped")
	}
}

func TestApplyCommand_InvalidScript(t *testing.T) {
	svc := testutil.NewFakeService()
	env := testEnv(svc)
	env.In = strings.NewReader("- action: explode\n")

	_, stderr, code := runWith(t, &commands.ApplyCmd{}, testConfig(t, false), env, []string{"-"})
	if code != exitcode.UserError || !strings.HasPrefix(stderr, "error: invalid script: ") {
		t.Errorf("expected invalid script error, got %d %q", code, stderr)
	}
	if svc.Calls("List") != 0 {
		t.Error("invalid script should not reach the store")
	}
}

// Tests for serve command
func TestServeCommand_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t, true)
	cmd := &commands.ServeCmd{}
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	cmd.RegisterFlags(fs)
	if err := fs.Parse([]string{"--addr", "127.0.0.1:0"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out, errOut bytes.Buffer
	code := cmd.Run(ctx, cfg, testEnv(nil), fs.Args(), &out, &errOut)
	if code != exitcode.Success {
		t.Errorf("expected clean shutdown, got %d %q", code, errOut.String())
	}
	if _, err := os.Stat(filepath.Join(cfg.Dir, commands.DefaultDBFile)); err != nil {
		t.Errorf("expected database in config dir: %v", err)
	}
}
