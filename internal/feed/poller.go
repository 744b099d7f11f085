// Package feed implements the Feed Poller (C11): forward-only baseline
// tracking per Subscription, idempotent enqueue of newly published Items
// into the pipeline, manual backfill bounded by MaxBackfill, and a
// manual-submit path that bypasses feed polling entirely.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/autoclipper/pipeline/internal/domain"
	"github.com/autoclipper/pipeline/internal/observe"
	"github.com/autoclipper/pipeline/internal/orchestrator"
	"github.com/autoclipper/pipeline/internal/store"
	"github.com/autoclipper/pipeline/pkg/gateway/feed"
)

// MaxBackfill bounds a single manual-backfill call: it creates Items for at
// most this many of a Subscription's most recent feed entries.
const MaxBackfill = 10

// Poller drives periodic polling of every active Subscription's feed.
type Poller struct {
	Store        store.Store
	Feed         feed.Gateway
	Orchestrator *orchestrator.Orchestrator
	Interval     time.Duration
	Log          *slog.Logger
}

// New creates a Poller. A nil logger falls back to slog.Default(); interval
// <= 0 falls back to 15 minutes.
func New(st store.Store, fg feed.Gateway, orch *orchestrator.Orchestrator, interval time.Duration, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Poller{Store: st, Feed: fg, Orchestrator: orch, Interval: interval, Log: log}
}

// Run polls every active Subscription once immediately, then again every
// Interval, until ctx is canceled. Feed polling is single-threaded: one poll
// runs at a time and a slow cycle simply delays the next tick rather than
// overlapping it.
func (p *Poller) Run(ctx context.Context) error {
	p.pollAllLogged(ctx)

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollAllLogged(ctx)
		}
	}
}

func (p *Poller) pollAllLogged(ctx context.Context) {
	if err := p.PollAll(ctx); err != nil {
		p.Log.Error("feed: poll cycle failed", "error", err)
	}
}

// PollAll polls every active Subscription once. One Subscription's failure
// is logged and does not prevent the rest from being polled.
func (p *Poller) PollAll(ctx context.Context) error {
	start := time.Now()
	defer func() {
		observe.DefaultMetrics().PollDuration.Record(ctx, time.Since(start).Seconds())
	}()

	subs, err := p.Store.Subscriptions().ListActive(ctx)
	if err != nil {
		return fmt.Errorf("feed: list active subscriptions: %w", err)
	}
	for _, sub := range subs {
		if err := p.pollOne(ctx, sub); err != nil {
			p.Log.Error("feed: poll subscription failed", "subscription_id", sub.ID, "error", err)
		}
	}
	return nil
}

// pollOne implements spec's forward-only poll algorithm for a single
// Subscription: establish the baseline on first poll (process nothing),
// otherwise walk entries newest-first until the last-seen id, enqueue
// anything strictly newer than the recorded baseline and not already
// present, then advance the baseline to the newest observed entry.
func (p *Poller) pollOne(ctx context.Context, sub domain.Subscription) error {
	entries, err := p.Feed.FetchEntries(ctx, sub.FeedURL)
	if err != nil {
		return fmt.Errorf("fetch entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	if !sub.BaselineSet {
		sub.LastSeenItemID = entries[0].ExternalItemID
		sub.LastSeenPublishedAt = entries[0].PublishedAt
		sub.BaselineSet = true
		return p.Store.Subscriptions().Update(ctx, sub)
	}

	for _, e := range entries {
		if e.ExternalItemID == sub.LastSeenItemID {
			break
		}
		if !e.PublishedAt.After(sub.LastSeenPublishedAt) {
			continue
		}
		if err := p.enqueueEntry(ctx, sub.ID, e); err != nil {
			return fmt.Errorf("enqueue entry %q: %w", e.ExternalItemID, err)
		}
	}

	sub.LastSeenItemID = entries[0].ExternalItemID
	sub.LastSeenPublishedAt = entries[0].PublishedAt
	return p.Store.Subscriptions().Update(ctx, sub)
}

// enqueueEntry creates a new Item for e if one doesn't already exist, and
// hands it to the Orchestrator. Idempotent: re-polling an entry the store
// already has is a no-op, never a duplicate Item.
func (p *Poller) enqueueEntry(ctx context.Context, subscriptionID string, e feed.Entry) error {
	_, err := p.Store.Items().GetByExternalItemID(ctx, e.ExternalItemID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("lookup existing item: %w", err)
	}

	item, err := p.Store.Items().Create(ctx, domain.Item{
		SubscriptionID: subscriptionID,
		ExternalItemID: e.ExternalItemID,
		Title:          e.Title,
		PublishedAt:    e.PublishedAt,
		Phase:          domain.PhaseNew,
		Source:         domain.SourceFeed,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("create item: %w", err)
	}
	observe.DefaultMetrics().RecordItemIngested(ctx, string(domain.SourceFeed))
	return p.Orchestrator.Start(ctx, item.ID)
}

// ManualBackfill creates Items for up to min(n, MaxBackfill) of a
// Subscription's most recent feed entries, regardless of its baseline, and
// does not move the baseline. It returns the number of Items actually
// created (entries already present in the store are skipped, not counted
// as an error).
func (p *Poller) ManualBackfill(ctx context.Context, subscriptionID string, n int) (int, error) {
	if n <= 0 || n > MaxBackfill {
		n = MaxBackfill
	}

	sub, err := p.Store.Subscriptions().Get(ctx, subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("feed: backfill: load subscription: %w", err)
	}

	entries, err := p.Feed.FetchEntries(ctx, sub.FeedURL)
	if err != nil {
		return 0, fmt.Errorf("feed: backfill: fetch entries: %w", err)
	}
	if len(entries) > n {
		entries = entries[:n]
	}

	created := 0
	for _, e := range entries {
		before, err := p.Store.Items().GetByExternalItemID(ctx, e.ExternalItemID)
		if err == nil {
			_ = before
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return created, fmt.Errorf("feed: backfill: lookup existing item: %w", err)
		}
		if err := p.enqueueEntry(ctx, sub.ID, e); err != nil {
			return created, fmt.Errorf("feed: backfill: %w", err)
		}
		created++
	}
	return created, nil
}

// ManualSubmit creates a standalone Item (Source MANUAL, no owning
// Subscription) for a single video URL and starts the pipeline immediately,
// bypassing feed polling entirely. Title is left blank; handleProbe fills
// it in from the MediaProbe result, the same as any other Item.
func (p *Poller) ManualSubmit(ctx context.Context, videoURL string) (domain.Item, error) {
	externalItemID, err := ExtractVideoID(videoURL)
	if err != nil {
		return domain.Item{}, fmt.Errorf("feed: manual submit: %w", err)
	}

	item, err := p.Store.Items().Create(ctx, domain.Item{
		ExternalItemID: externalItemID,
		Phase:          domain.PhaseNew,
		Source:         domain.SourceManual,
	})
	if err != nil {
		return domain.Item{}, fmt.Errorf("feed: manual submit: create item: %w", err)
	}
	observe.DefaultMetrics().RecordItemIngested(ctx, string(domain.SourceManual))
	if err := p.Orchestrator.Start(ctx, item.ID); err != nil {
		return domain.Item{}, fmt.Errorf("feed: manual submit: start pipeline: %w", err)
	}
	return item, nil
}
