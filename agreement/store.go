package agreement

import (
	"context"
	"time"

	"github.com/ahmadramadhannn/mudah-titip/consignment"
)

// Store defines the persistence required by the Engine.
type Store interface {
	// WithConsignment runs fn in a single transaction that holds the
	// consignment's negotiation lock. fn's writes commit only if it returns nil.
	WithConsignment(ctx context.Context, consignmentID string, fn func(ctx context.Context, tx StoreTx, c consignment.Consignment) error) error

	Get(ctx context.Context, id string) (Agreement, error)
	// Chain walks previous-version links from id, newest first. It returns
	// ErrNotFound when id does not exist.
	Chain(ctx context.Context, id string) ([]Agreement, error)
	// ListByConsignment returns versions ordered by creation, optionally
	// filtered to the given statuses.
	ListByConsignment(ctx context.Context, consignmentID string, statuses ...Status) ([]Agreement, error)
	ListPending(ctx context.Context, userID string) ([]Agreement, error)
	Consignment(ctx context.Context, consignmentID string) (consignment.Consignment, error)
}

// StoreTx is the write side available inside Store.WithConsignment.
type StoreTx interface {
	GetForUpdate(ctx context.Context, id string) (Agreement, error)
	ListByConsignment(ctx context.Context, consignmentID string, statuses ...Status) ([]Agreement, error)
	Insert(ctx context.Context, a Agreement) (Agreement, error)
	UpdateStatus(ctx context.Context, id string, status Status, message *string, at time.Time) (Agreement, error)
	AppendEvent(ctx context.Context, agreementID, eventType, actorID string, payload map[string]any) error
}
