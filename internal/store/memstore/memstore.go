// Package memstore provides a thread-safe, in-memory implementation of
// internal/store.Store. It is suitable for tests and for manual-submit dry
// runs; it is not durable across process restarts.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autoclipper/pipeline/internal/domain"
	"github.com/autoclipper/pipeline/internal/store"
)

// Store is an in-memory implementation of store.Store. The zero value is not
// ready to use; call New.
type Store struct {
	mu sync.RWMutex

	subscriptions map[string]domain.Subscription
	items         map[string]domain.Item
	clips         map[string]domain.Clip
	postJobs      map[string]domain.PostJob
}

// New returns an initialised, empty Store.
func New() *Store {
	return &Store{
		subscriptions: make(map[string]domain.Subscription),
		items:         make(map[string]domain.Item),
		clips:         make(map[string]domain.Clip),
		postJobs:      make(map[string]domain.PostJob),
	}
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

func (s *Store) Subscriptions() store.Subscriptions { return (*subscriptionStore)(s) }
func (s *Store) Items() store.Items                 { return (*itemStore)(s) }
func (s *Store) Clips() store.Clips                 { return (*clipStore)(s) }
func (s *Store) PostJobs() store.PostJobs           { return (*postJobStore)(s) }

// ─────────────────────────────────────────────────────────────────────────
// Subscriptions
// ─────────────────────────────────────────────────────────────────────────

type subscriptionStore Store

func (s *subscriptionStore) Create(_ context.Context, sub domain.Subscription) (domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.subscriptions {
		if existing.ExternalFeedID == sub.ExternalFeedID {
			return domain.Subscription{}, store.ErrDuplicate
		}
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	s.subscriptions[sub.ID] = sub
	return sub, nil
}

func (s *subscriptionStore) Get(_ context.Context, id string) (domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[id]
	if !ok {
		return domain.Subscription{}, store.ErrNotFound
	}
	return sub, nil
}

func (s *subscriptionStore) GetByExternalFeedID(_ context.Context, externalFeedID string) (domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subscriptions {
		if sub.ExternalFeedID == externalFeedID {
			return sub, nil
		}
	}
	return domain.Subscription{}, store.ErrNotFound
}

func (s *subscriptionStore) ListActive(_ context.Context) ([]domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		if sub.Active {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *subscriptionStore) Update(_ context.Context, sub domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[sub.ID]; !ok {
		return store.ErrNotFound
	}
	s.subscriptions[sub.ID] = sub
	return nil
}

func (s *subscriptionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.subscriptions[id]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	var itemIDs []string
	for _, it := range s.items {
		if it.SubscriptionID == id {
			itemIDs = append(itemIDs, it.ID)
		}
	}
	delete(s.subscriptions, id)
	s.mu.Unlock()

	items := (*itemStore)(s)
	for _, itemID := range itemIDs {
		if err := items.Delete(ctx, itemID); err != nil {
			return err
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────
// Items
// ─────────────────────────────────────────────────────────────────────────

type itemStore Store

func (s *itemStore) Create(_ context.Context, it domain.Item) (domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.ExternalItemID == it.ExternalItemID {
			return domain.Item{}, store.ErrDuplicate
		}
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	s.items[it.ID] = it
	return it, nil
}

func (s *itemStore) Get(_ context.Context, id string) (domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return domain.Item{}, store.ErrNotFound
	}
	return it, nil
}

func (s *itemStore) GetByExternalItemID(_ context.Context, externalItemID string) (domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.ExternalItemID == externalItemID {
			return it, nil
		}
	}
	return domain.Item{}, store.ErrNotFound
}

func (s *itemStore) ListBySubscription(_ context.Context, subscriptionID string) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Item
	for _, it := range s.items {
		if it.SubscriptionID == subscriptionID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *itemStore) Update(_ context.Context, it domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[it.ID]; !ok {
		return store.ErrNotFound
	}
	s.items[it.ID] = it
	return nil
}

func (s *itemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.items[id]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	var clipIDs []string
	for _, c := range s.clips {
		if c.ItemID == id {
			clipIDs = append(clipIDs, c.ID)
		}
	}
	delete(s.items, id)
	s.mu.Unlock()

	clips := (*clipStore)(s)
	for _, clipID := range clipIDs {
		if err := clips.Delete(ctx, clipID); err != nil {
			return err
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────
// Clips
// ─────────────────────────────────────────────────────────────────────────

type clipStore Store

func (s *clipStore) Create(_ context.Context, c domain.Clip) (domain.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.clips[c.ID] = c
	return c, nil
}

func (s *clipStore) Get(_ context.Context, id string) (domain.Clip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clips[id]
	if !ok {
		return domain.Clip{}, store.ErrNotFound
	}
	return c, nil
}

func (s *clipStore) ListByItem(_ context.Context, itemID string) ([]domain.Clip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Clip
	for _, c := range s.clips {
		if c.ItemID == itemID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *clipStore) ListByItemAndPhase(_ context.Context, itemID string, phase domain.ClipRenderPhase) ([]domain.Clip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Clip
	for _, c := range s.clips {
		if c.ItemID == itemID && c.RenderPhase == phase {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *clipStore) Update(_ context.Context, c domain.Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clips[c.ID]; !ok {
		return store.ErrNotFound
	}
	s.clips[c.ID] = c
	return nil
}

func (s *clipStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.clips[id]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	var jobIDs []string
	for _, j := range s.postJobs {
		if j.ClipID == id {
			jobIDs = append(jobIDs, j.ID)
		}
	}
	delete(s.clips, id)
	for _, jobID := range jobIDs {
		delete(s.postJobs, jobID)
	}
	s.mu.Unlock()
	_ = ctx
	return nil
}

func (s *clipStore) CountByItem(_ context.Context, itemID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.clips {
		if c.ItemID == itemID {
			n++
		}
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────
// PostJobs
// ─────────────────────────────────────────────────────────────────────────

type postJobStore Store

func (s *postJobStore) Create(_ context.Context, j domain.PostJob) (domain.PostJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	s.postJobs[j.ID] = j
	return j, nil
}

func (s *postJobStore) Get(_ context.Context, id string) (domain.PostJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.postJobs[id]
	if !ok {
		return domain.PostJob{}, store.ErrNotFound
	}
	return j, nil
}

func (s *postJobStore) ListByClip(_ context.Context, clipID string) ([]domain.PostJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PostJob
	for _, j := range s.postJobs {
		if j.ClipID == clipID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *postJobStore) Update(_ context.Context, j domain.PostJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.postJobs[j.ID]; !ok {
		return store.ErrNotFound
	}
	s.postJobs[j.ID] = j
	return nil
}

var _ store.Store = (*Store)(nil)
