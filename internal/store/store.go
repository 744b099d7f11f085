// Package store defines the persistence interfaces for the four owned
// entities of the clip extraction pipeline (Subscription, Item, Clip,
// PostJob). Concrete implementations live in internal/store/memstore (an
// in-memory implementation for tests and manual-submit dry runs) and
// internal/store/postgres (the durable pgx-backed implementation).
//
// Every mutation method reads fresh and is safe to call concurrently. Stage
// handlers in internal/orchestrator rely on this: a handler loads the Item or
// Clip by id, checks its current Phase, and is a no-op if the precondition no
// longer holds.
package store

import (
	"context"
	"errors"

	"github.com/autoclipper/pipeline/internal/domain"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when a uniqueness constraint would be violated
// (e.g. a Subscription's ExternalFeedID or an Item's ExternalItemID).
var ErrDuplicate = errors.New("store: duplicate")

// Subscriptions persists Channel/Subscription rows.
type Subscriptions interface {
	Create(ctx context.Context, sub domain.Subscription) (domain.Subscription, error)
	Get(ctx context.Context, id string) (domain.Subscription, error)
	GetByExternalFeedID(ctx context.Context, externalFeedID string) (domain.Subscription, error)
	ListActive(ctx context.Context) ([]domain.Subscription, error)
	Update(ctx context.Context, sub domain.Subscription) error
	// Delete removes the Subscription and cascades to its Items, their
	// Clips, and those Clips' PostJobs.
	Delete(ctx context.Context, id string) error
}

// Items persists Video/Item rows.
type Items interface {
	Create(ctx context.Context, it domain.Item) (domain.Item, error)
	Get(ctx context.Context, id string) (domain.Item, error)
	GetByExternalItemID(ctx context.Context, externalItemID string) (domain.Item, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]domain.Item, error)
	Update(ctx context.Context, it domain.Item) error
	// Delete removes the Item and cascades to its Clips and their PostJobs.
	Delete(ctx context.Context, id string) error
}

// Clips persists Clip rows.
type Clips interface {
	Create(ctx context.Context, c domain.Clip) (domain.Clip, error)
	Get(ctx context.Context, id string) (domain.Clip, error)
	ListByItem(ctx context.Context, itemID string) ([]domain.Clip, error)
	// ListByItemAndPhase narrows ListByItem to a single ClipRenderPhase.
	ListByItemAndPhase(ctx context.Context, itemID string, phase domain.ClipRenderPhase) ([]domain.Clip, error)
	Update(ctx context.Context, c domain.Clip) error
	// Delete removes the Clip and cascades to its PostJobs.
	Delete(ctx context.Context, id string) error
	// CountByItem returns the number of Clips owned by itemID, computed on
	// read rather than tracked as a denormalized counter (see DESIGN.md).
	CountByItem(ctx context.Context, itemID string) (int, error)
}

// PostJobs persists PostJob rows.
type PostJobs interface {
	Create(ctx context.Context, j domain.PostJob) (domain.PostJob, error)
	Get(ctx context.Context, id string) (domain.PostJob, error)
	ListByClip(ctx context.Context, clipID string) ([]domain.PostJob, error)
	Update(ctx context.Context, j domain.PostJob) error
}

// Store bundles the four entity stores behind a single handle, as produced
// by both internal/store/memstore and internal/store/postgres.
type Store interface {
	Subscriptions() Subscriptions
	Items() Items
	Clips() Clips
	PostJobs() PostJobs
	// Close releases any underlying resources (connection pools, etc).
	Close() error
}
