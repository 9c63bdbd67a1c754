// Package service defines the backend-agnostic interface for task operations.
package service

import "context"

// Service is the remote access contract for an actor's tasks.
// Every method either returns the store's resulting entity or a classified *Error.
// Implementations attach the session credential to each call and never retry.
type Service interface {
	// List returns a page of the actor's tasks in store order.
	// Fails Unauthorized for a rejected credential, NotFound for an unknown actor.
	List(ctx context.Context, actorID string, p Pagination) (Page, error)

	// Get returns one task. Fails NotFound if it is absent or owned by another actor.
	Get(ctx context.Context, actorID string, taskID ID) (Task, error)

	// Create stores a new task and returns it with its assigned ID.
	// Fails Validation for an empty or over-long title.
	Create(ctx context.Context, actorID string, req CreateRequest) (Task, error)

	// Update changes only the fields present in req.
	Update(ctx context.Context, actorID string, taskID ID, req UpdateRequest) (Task, error)

	// ToggleCompletion flips the completion flag server-side.
	// Not idempotent: two calls restore the original value.
	ToggleCompletion(ctx context.Context, actorID string, taskID ID) (Task, error)

	// Delete removes a task. Fails NotFound if it is already gone.
	Delete(ctx context.Context, actorID string, taskID ID) error
}
