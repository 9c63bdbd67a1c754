// Package taskcache keeps an in-memory, ordered view of one actor's tasks
// aligned with the remote store.
//
// The cache never applies a change before the remote call resolves: every
// mutation updates local state only from the store's own response, and a
// failed mutation leaves the cache exactly as it was.
package taskcache

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"tasksync/internal/bus"
	"tasksync/internal/service"
	"tasksync/internal/session"
)

// Cache is the authoritative in-process view of the session actor's tasks.
type Cache struct {
	svc     service.Service
	actorID string
	page    service.Pagination
	log     *log.Logger
	report  func(error)

	// mu serializes refreshes and mutations: at most one remote call per cache is in flight.
	mu sync.Mutex

	state  sync.RWMutex
	tasks  []service.Task // never modified in place; replaced on every change
	total  int
	loaded bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the debug logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// WithPagination sets the page requested by Refresh.
func WithPagination(p service.Pagination) Option {
	return func(c *Cache) { c.page = p }
}

// WithErrorReporter receives failures of refreshes triggered by bus notifications.
func WithErrorReporter(fn func(error)) Option {
	return func(c *Cache) { c.report = fn }
}

// New creates an empty cache for the session's actor.
// It returns session.ErrNoSession when the session is not valid.
func New(svc service.Service, sess session.Session, opts ...Option) (*Cache, error) {
	if !sess.Valid() {
		return nil, session.ErrNoSession
	}
	c := &Cache{
		svc:     svc,
		actorID: sess.ActorID,
		log:     log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ActorID returns the actor whose tasks this cache holds.
func (c *Cache) ActorID() string { return c.actorID }

// Tasks returns the current snapshot. Callers must not modify it; a later
// mutation replaces the snapshot rather than changing it.
func (c *Cache) Tasks() []service.Task {
	c.state.RLock()
	defer c.state.RUnlock()
	return c.tasks
}

// Len returns the number of cached tasks.
func (c *Cache) Len() int {
	c.state.RLock()
	defer c.state.RUnlock()
	return len(c.tasks)
}

// Total returns the store-reported total from the last refresh. Display only.
func (c *Cache) Total() int {
	c.state.RLock()
	defer c.state.RUnlock()
	return c.total
}

// Loaded reports whether a refresh has completed.
func (c *Cache) Loaded() bool {
	c.state.RLock()
	defer c.state.RUnlock()
	return c.loaded
}

// Find returns the cached task with the given id.
func (c *Cache) Find(id service.ID) (service.Task, bool) {
	c.state.RLock()
	defer c.state.RUnlock()
	if i := indexOf(c.tasks, id); i >= 0 {
		return c.tasks[i], true
	}
	return service.Task{}, false
}

// Refresh replaces the cache contents with a fresh listing from the store.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	page, err := c.svc.List(ctx, c.actorID, c.page)
	if err != nil {
		return err
	}
	for _, t := range page.Tasks {
		if err := c.checkTask(t); err != nil {
			return err
		}
	}

	tasks := make([]service.Task, len(page.Tasks))
	copy(tasks, page.Tasks)

	c.state.Lock()
	c.tasks = tasks
	c.total = page.Total
	c.loaded = true
	c.state.Unlock()

	c.log.Printf("cache: refreshed %d of %d tasks for %s", len(tasks), page.Total, c.actorID)
	return nil
}

// Create stores a new task and inserts it at the head of the cache.
// Head insertion holds until the next Refresh, whatever order the store lists in.
func (c *Cache) Create(ctx context.Context, req service.CreateRequest) (service.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.svc.Create(ctx, c.actorID, req)
	if err != nil {
		return service.Task{}, err
	}
	if err := c.checkTask(t); err != nil {
		return service.Task{}, err
	}

	c.state.Lock()
	next := make([]service.Task, 0, len(c.tasks)+1)
	next = append(next, t)
	next = append(next, c.tasks...)
	c.tasks = next
	c.total++
	c.state.Unlock()

	c.log.Printf("cache: created task %s", t.ID)
	return t, nil
}

// Edit applies a partial update and replaces the matching cached task with the store's result.
func (c *Cache) Edit(ctx context.Context, id service.ID, req service.UpdateRequest) (service.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.svc.Update(ctx, c.actorID, id, req)
	if err != nil {
		return service.Task{}, err
	}
	if err := c.checkTask(t); err != nil {
		return service.Task{}, err
	}
	c.replace(t)
	return t, nil
}

// Toggle flips completion remotely and replaces the matching cached task with the result.
// There is no local flip: the store decides the resulting value.
func (c *Cache) Toggle(ctx context.Context, id service.ID) (service.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.svc.ToggleCompletion(ctx, c.actorID, id)
	if err != nil {
		return service.Task{}, err
	}
	if err := c.checkTask(t); err != nil {
		return service.Task{}, err
	}
	c.replace(t)
	return t, nil
}

// Remove deletes a task remotely and drops it from the cache.
// A NotFound failure counts as success: the task is gone either way.
func (c *Cache) Remove(ctx context.Context, id service.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.svc.Delete(ctx, c.actorID, id); err != nil {
		if !service.IsNotFound(err) {
			return err
		}
		c.log.Printf("cache: task %s already deleted remotely", id)
	}

	c.state.Lock()
	defer c.state.Unlock()
	i := indexOf(c.tasks, id)
	if i < 0 {
		return nil
	}
	next := make([]service.Task, 0, len(c.tasks)-1)
	next = append(next, c.tasks[:i]...)
	next = append(next, c.tasks[i+1:]...)
	c.tasks = next
	if c.total > 0 {
		c.total--
	}
	return nil
}

// Attach refreshes the cache whenever EventTasksChanged is published on b.
// The returned function detaches it and must be called when the owner is torn down.
func (c *Cache) Attach(ctx context.Context, b *bus.Bus) (detach func()) {
	return b.Subscribe(bus.EventTasksChanged, func(string) {
		c.log.Printf("cache: %s received, refreshing", bus.EventTasksChanged)
		if err := c.Refresh(ctx); err != nil && c.report != nil {
			c.report(err)
		}
	})
}

// replace swaps in t for the cached task with the same id. Unknown ids leave the cache unchanged.
func (c *Cache) replace(t service.Task) {
	c.state.Lock()
	defer c.state.Unlock()
	i := indexOf(c.tasks, t.ID)
	if i < 0 {
		return
	}
	next := make([]service.Task, len(c.tasks))
	copy(next, c.tasks)
	next[i] = t
	c.tasks = next
}

func (c *Cache) checkTask(t service.Task) error {
	if t.ID == "" {
		return &service.Error{Kind: service.Transport, Message: "store returned a task without an id"}
	}
	if t.OwnerID != "" && t.OwnerID != c.actorID {
		return &service.Error{
			Kind:    service.Unknown,
			Message: fmt.Sprintf("task %s belongs to %s, not %s", t.ID, t.OwnerID, c.actorID),
		}
	}
	return nil
}

func indexOf(tasks []service.Task, id service.ID) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
