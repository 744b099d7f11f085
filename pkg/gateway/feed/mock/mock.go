// Package mock provides a func-field test double for pkg/gateway/feed.Gateway.
package mock

import (
	"context"

	"github.com/autoclipper/pipeline/pkg/gateway/feed"
)

// Gateway is a feed.Gateway whose behaviour is supplied per-test via its
// Func field. FetchEntries returns an empty slice and a nil error when
// FetchEntriesFunc is unset.
type Gateway struct {
	FetchEntriesFunc func(ctx context.Context, feedURL string) ([]feed.Entry, error)
}

var _ feed.Gateway = (*Gateway)(nil)

func (g *Gateway) FetchEntries(ctx context.Context, feedURL string) ([]feed.Entry, error) {
	if g.FetchEntriesFunc != nil {
		return g.FetchEntriesFunc(ctx, feedURL)
	}
	return nil, nil
}
