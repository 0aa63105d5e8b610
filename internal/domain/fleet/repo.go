package fleet

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

type EmergencyRepository interface {
	Create(ctx context.Context, e *Emergency) error
	GetByID(ctx context.Context, id uuid.UUID) (*Emergency, error)
	List(ctx context.Context, limit, offset int) ([]*Emergency, int, error)
}

type TripRepository interface {
	Create(ctx context.Context, t *Trip) error
	GetByID(ctx context.Context, id uuid.UUID) (*Trip, error)
	Update(ctx context.Context, t *Trip) error
	List(ctx context.Context, limit, offset int) ([]*Trip, int, error)
	ListByAmbulance(ctx context.Context, ambulanceID string, limit, offset int) ([]*Trip, int, error)
	// ActiveForAmbulance returns the ambulance's non-terminal trip, or
	// ErrNotFound. At most one exists at a time.
	ActiveForAmbulance(ctx context.Context, ambulanceID string) (*Trip, error)
	// ListActive returns every non-terminal trip, used to warm the in-memory
	// cache at startup.
	ListActive(ctx context.Context) ([]*Trip, error)
}
