// Package store persists canary deployments together with their owned steps
// and rollback records. Children are embedded in the parent record, so
// deletes cascade and a single optimistic version covers the whole aggregate.
package store

import (
	"context"
	"errors"

	"github.com/apollo/canaria/pkg/canary"
)

var (
	// ErrNotFound is returned when no deployment has the given id.
	ErrNotFound = errors.New("deployment not found")
	// ErrExists is returned when creating a deployment whose id is taken.
	ErrExists = errors.New("deployment already exists")
	// ErrConflict is returned when an update carries a stale version.
	ErrConflict = errors.New("deployment version conflict")
)

// Store is the persistence contract the engine requires. Implementations
// must check Deployment.Version on Update and bump it on success.
type Store interface {
	Create(ctx context.Context, d *canary.Deployment) error
	Get(ctx context.Context, id string) (*canary.Deployment, error)
	Update(ctx context.Context, d *canary.Deployment) error
	List(ctx context.Context) ([]*canary.Deployment, error)
	Delete(ctx context.Context, id string) error
}
