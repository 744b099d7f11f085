// Package feed defines the Feed Gateway: the capability the Feed Poller
// (internal/feed) uses to read a Subscription's syndication feed, newest
// entry first.
package feed

import (
	"context"
	"errors"
	"time"
)

// Entry is one item published to a feed.
type Entry struct {
	ExternalItemID string
	Title          string
	PublishedAt    time.Time
}

// ErrFeedNotFound is returned when the feed URL resolves to no such feed
// (a deleted or renamed channel, for instance).
var ErrFeedNotFound = errors.New("feed gateway: feed not found")

// Gateway fetches a single feed's entries in descending publication order,
// matching spec's "{external_item_id, title, published_at, in descending
// publication order}" contract.
type Gateway interface {
	FetchEntries(ctx context.Context, feedURL string) ([]Entry, error)
}
