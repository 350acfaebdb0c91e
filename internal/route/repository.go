package route

import "context"

// Repository defines the interface for route persistence. Saved routes are
// immutable; the only write operations are whole-route create and delete.
type Repository interface {
	// Create persists a new route atomically.
	Create(ctx context.Context, route *Route) error

	// Get retrieves a route by ID.
	// Returns ErrRouteNotFound if no such route exists.
	Get(ctx context.Context, id string) (*Route, error)

	// List retrieves summaries of all routes, newest first.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes a route by ID.
	// Returns ErrRouteNotFound if no such route exists.
	Delete(ctx context.Context, id string) error
}
