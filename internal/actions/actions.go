// Package actions performs task actions outside any task cache and announces
// each successful mutation on the notification bus.
//
// It is the out-of-band mutation path: an automated agent or a script changes
// the remote store directly, and every cache attached to the bus converges by
// refreshing.
package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"gopkg.in/yaml.v3"

	"tasksync/internal/bus"
	"tasksync/internal/service"
	"tasksync/internal/session"
)

// Kind names an action.
type Kind string

// Action kinds.
const (
	CreateTask Kind = "create_task"
	ListTasks  Kind = "list_tasks"
	UpdateTask Kind = "update_task"
	ToggleTask Kind = "toggle_task_complete"
	DeleteTask Kind = "delete_task"
)

// Mutates reports whether the action changes the remote store.
func (k Kind) Mutates() bool {
	switch k {
	case CreateTask, UpdateTask, ToggleTask, DeleteTask:
		return true
	}
	return false
}

func (k Kind) valid() bool {
	return k == ListTasks || k.Mutates()
}

// List filters.
const (
	FilterAll       = "all"
	FilterPending   = "pending"
	FilterCompleted = "completed"
)

// Action is one step of a script.
type Action struct {
	Kind   Kind       `yaml:"action" json:"action"`
	TaskID service.ID `yaml:"task_id,omitempty" json:"task_id,omitempty"`

	Title        *string   `yaml:"title,omitempty" json:"title,omitempty"`
	Description  *string   `yaml:"description,omitempty" json:"description,omitempty"`
	DueDate      string    `yaml:"due_date,omitempty" json:"due_date,omitempty"`
	ClearDueDate bool      `yaml:"clear_due_date,omitempty" json:"clear_due_date,omitempty"`
	Tags         *[]string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Filter applies to list_tasks: all (default), pending or completed.
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// Validate checks that the action is well formed before anything is sent.
func (a Action) Validate() error {
	if !a.Kind.valid() {
		return fmt.Errorf("unknown action %q", a.Kind)
	}
	switch a.Kind {
	case CreateTask:
		if a.Title == nil {
			return fmt.Errorf("%s: title is required", a.Kind)
		}
	case UpdateTask, ToggleTask, DeleteTask:
		if a.TaskID == "" {
			return fmt.Errorf("%s: task_id is required", a.Kind)
		}
	case ListTasks:
		switch strings.ToLower(a.Filter) {
		case "", FilterAll, FilterPending, FilterCompleted:
		default:
			return fmt.Errorf("%s: unknown filter %q", a.Kind, a.Filter)
		}
	}
	if a.DueDate != "" {
		if _, err := service.ParseDate(a.DueDate); err != nil {
			return fmt.Errorf("%s: %w", a.Kind, err)
		}
	}
	return nil
}

func (a Action) dueDate() *service.Date {
	if a.DueDate == "" {
		return nil
	}
	d, err := service.ParseDate(a.DueDate)
	if err != nil {
		return nil
	}
	return &d
}

// Result reports the outcome of one action.
type Result struct {
	Kind    Kind           `json:"action"`
	Task    *service.Task  `json:"task,omitempty"`
	Tasks   []service.Task `json:"tasks,omitempty"`
	Message string         `json:"message"`
}

// ParseScript decodes a YAML (or JSON) script: either a list of actions or a
// mapping with an "actions" list.
func ParseScript(data []byte) ([]Action, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty script")
	}

	var list []Action
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc struct {
			Actions []Action `yaml:"actions"`
		}
		if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("invalid script: %w", err)
		}
		list = doc.Actions
	}
	if len(list) == 0 {
		return nil, errors.New("script has no actions")
	}
	for i, a := range list {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("action %d: %w", i+1, err)
		}
	}
	return list, nil
}

// Executor runs actions for one actor.
type Executor struct {
	svc     service.Service
	actorID string
	bus     *bus.Bus
	log     *log.Logger
}

// NewExecutor creates an executor acting for the session's actor and publishing on b.
func NewExecutor(svc service.Service, sess session.Session, b *bus.Bus, logger *log.Logger) (*Executor, error) {
	if !sess.Valid() {
		return nil, session.ErrNoSession
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Executor{svc: svc, actorID: sess.ActorID, bus: b, log: logger}, nil
}

// Run executes actions in order and stops at the first failure. It returns
// the results of the actions that succeeded.
func (e *Executor) Run(ctx context.Context, script []Action) ([]Result, error) {
	results := make([]Result, 0, len(script))
	for i, a := range script {
		res, err := e.Execute(ctx, a)
		if err != nil {
			return results, &StepError{Step: i + 1, Kind: a.Kind, Err: err}
		}
		results = append(results, res)
	}
	return results, nil
}

// StepError identifies the action that stopped a run.
type StepError struct {
	Step int
	Kind Kind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("action %d (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Execute runs one action. After a successful mutation it publishes
// bus.EventTasksChanged; listing never publishes.
func (e *Executor) Execute(ctx context.Context, a Action) (Result, error) {
	if err := a.Validate(); err != nil {
		return Result{}, &service.Error{Kind: service.Validation, Message: err.Error()}
	}

	res, err := e.execute(ctx, a)
	if err != nil {
		e.log.Printf("actions: %s failed: %v", a.Kind, err)
		return Result{}, err
	}
	e.log.Printf("actions: %s", res.Message)
	if a.Kind.Mutates() && e.bus != nil {
		e.bus.Publish(bus.EventTasksChanged)
	}
	return res, nil
}

func (e *Executor) execute(ctx context.Context, a Action) (Result, error) {
	switch a.Kind {
	case CreateTask:
		req := service.CreateRequest{Title: *a.Title, DueDate: a.dueDate()}
		if a.Description != nil {
			req.Description = *a.Description
		}
		if a.Tags != nil {
			req.Tags = *a.Tags
		}
		t, err := e.svc.Create(ctx, e.actorID, req)
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: a.Kind, Task: &t, Message: fmt.Sprintf("Created task: '%s'", t.Title)}, nil

	case ListTasks:
		page, err := e.svc.List(ctx, e.actorID, service.Pagination{})
		if err != nil {
			return Result{}, err
		}
		tasks := filter(page.Tasks, a.Filter)
		return Result{Kind: a.Kind, Tasks: tasks, Message: fmt.Sprintf("Found %d task(s)", len(tasks))}, nil

	case UpdateTask:
		req := service.UpdateRequest{
			Title:        a.Title,
			Description:  a.Description,
			DueDate:      a.dueDate(),
			Tags:         a.Tags,
			ClearDueDate: a.ClearDueDate,
		}
		t, err := e.svc.Update(ctx, e.actorID, a.TaskID, req)
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: a.Kind, Task: &t, Message: fmt.Sprintf("Updated task: '%s'", t.Title)}, nil

	case ToggleTask:
		t, err := e.svc.ToggleCompletion(ctx, e.actorID, a.TaskID)
		if err != nil {
			return Result{}, err
		}
		status := "pending"
		if t.Completed {
			status = "completed"
		}
		return Result{Kind: a.Kind, Task: &t, Message: fmt.Sprintf("Marked '%s' as %s", t.Title, status)}, nil

	case DeleteTask:
		if err := e.svc.Delete(ctx, e.actorID, a.TaskID); err != nil {
			return Result{}, err
		}
		return Result{Kind: a.Kind, Message: fmt.Sprintf("Deleted task %s", a.TaskID)}, nil
	}
	return Result{}, fmt.Errorf("unknown action %q", a.Kind)
}

func filter(tasks []service.Task, f string) []service.Task {
	f = strings.ToLower(f)
	if f == "" || f == FilterAll {
		return tasks
	}
	out := make([]service.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Completed == (f == FilterCompleted) {
			out = append(out, t)
		}
	}
	return out
}
