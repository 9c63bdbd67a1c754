// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"strconv"
	"sync"
	"time"

	"tasksync/internal/service"
)

// FakeService is an in-memory implementation of service.Service for testing.
// It behaves like the remote store: it assigns IDs, stamps timestamps and
// lists newest-first.
type FakeService struct {
	mu     sync.Mutex
	nextID int
	clock  time.Time
	tasks  map[string][]service.Task // actorID -> tasks in creation order

	// OldestFirst makes List return tasks in creation order.
	OldestFirst bool

	// Error injection for testing
	ListErr   error
	GetErr    error
	CreateErr error
	UpdateErr error
	ToggleErr error
	DeleteErr error

	calls map[string]int
}

// NewFakeService creates an empty FakeService.
func NewFakeService() *FakeService {
	return &FakeService{
		tasks: make(map[string][]service.Task),
		clock: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		calls: make(map[string]int),
	}
}

func (f *FakeService) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *FakeService) record(op string) {
	f.calls[op]++
}

// Calls returns how many times op ("List", "Create", ...) was invoked.
func (f *FakeService) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// AddTask stores a task directly, bypassing any client. Used to simulate
// mutations made elsewhere.
func (f *FakeService) AddTask(actorID, title string) service.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(actorID, service.CreateRequest{Title: title})
}

// RemoveTask deletes a task directly, bypassing any client.
func (f *FakeService) RemoveTask(actorID string, id service.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.index(actorID, id); i >= 0 {
		f.tasks[actorID] = append(f.tasks[actorID][:i:i], f.tasks[actorID][i+1:]...)
	}
}

// Tasks returns the stored tasks for an actor in creation order.
func (f *FakeService) Tasks(actorID string) []service.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]service.Task, len(f.tasks[actorID]))
	copy(out, f.tasks[actorID])
	return out
}

func (f *FakeService) insert(actorID string, req service.CreateRequest) service.Task {
	f.nextID++
	now := f.tick()
	t := service.Task{
		ID:          service.ID(strconv.Itoa(f.nextID)),
		OwnerID:     actorID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Tags:        append([]string(nil), req.Tags...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.tasks[actorID] = append(f.tasks[actorID], t)
	return t
}

func (f *FakeService) index(actorID string, id service.ID) int {
	for i, t := range f.tasks[actorID] {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func notFound() error {
	return &service.Error{Kind: service.NotFound, Message: "Task not found", Status: 404}
}

// List implements service.Service.
func (f *FakeService) List(ctx context.Context, actorID string, p service.Pagination) (service.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("List")
	if f.ListErr != nil {
		return service.Page{}, f.ListErr
	}

	stored := f.tasks[actorID]
	ordered := make([]service.Task, 0, len(stored))
	if f.OldestFirst {
		ordered = append(ordered, stored...)
	} else {
		for i := len(stored) - 1; i >= 0; i-- {
			ordered = append(ordered, stored[i])
		}
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}
	start := p.Offset
	if start > len(ordered) {
		start = len(ordered)
	}
	end := start + limit
	if end > len(ordered) {
		end = len(ordered)
	}
	return service.Page{
		Tasks:  ordered[start:end],
		Total:  len(ordered),
		Limit:  limit,
		Offset: p.Offset,
	}, nil
}

// Get implements service.Service.
func (f *FakeService) Get(ctx context.Context, actorID string, taskID service.ID) (service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Get")
	if f.GetErr != nil {
		return service.Task{}, f.GetErr
	}
	i := f.index(actorID, taskID)
	if i < 0 {
		return service.Task{}, notFound()
	}
	return f.tasks[actorID][i], nil
}

// Create implements service.Service.
func (f *FakeService) Create(ctx context.Context, actorID string, req service.CreateRequest) (service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Create")
	if f.CreateErr != nil {
		return service.Task{}, f.CreateErr
	}
	if err := req.Validate(); err != nil {
		return service.Task{}, err
	}
	return f.insert(actorID, req), nil
}

// Update implements service.Service.
func (f *FakeService) Update(ctx context.Context, actorID string, taskID service.ID, req service.UpdateRequest) (service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Update")
	if f.UpdateErr != nil {
		return service.Task{}, f.UpdateErr
	}
	if err := req.Validate(); err != nil {
		return service.Task{}, err
	}
	i := f.index(actorID, taskID)
	if i < 0 {
		return service.Task{}, notFound()
	}
	t := req.Apply(f.tasks[actorID][i])
	t.UpdatedAt = f.tick()
	f.tasks[actorID][i] = t
	return t, nil
}

// ToggleCompletion implements service.Service.
func (f *FakeService) ToggleCompletion(ctx context.Context, actorID string, taskID service.ID) (service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ToggleCompletion")
	if f.ToggleErr != nil {
		return service.Task{}, f.ToggleErr
	}
	i := f.index(actorID, taskID)
	if i < 0 {
		return service.Task{}, notFound()
	}
	t := f.tasks[actorID][i]
	t.Completed = !t.Completed
	t.UpdatedAt = f.tick()
	f.tasks[actorID][i] = t
	return t, nil
}

// Delete implements service.Service.
func (f *FakeService) Delete(ctx context.Context, actorID string, taskID service.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Delete")
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	i := f.index(actorID, taskID)
	if i < 0 {
		return notFound()
	}
	f.tasks[actorID] = append(f.tasks[actorID][:i:i], f.tasks[actorID][i+1:]...)
	return nil
}
