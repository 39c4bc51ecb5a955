// Package liveview keeps materialized query snapshots continuously
// consistent with the remote document store by push, without polling.
package liveview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/docsight/docsight/internal/port"
)

// Descriptor names a live query: a collection, a set of equality filters and
// a descending sort key.
type Descriptor struct {
	Collection string
	Filters    []port.Filter
	OrderBy    string
	Limit      int
}

// queryTimeout bounds a single snapshot recomputation.
const queryTimeout = 10 * time.Second

// Cache materializes live query snapshots. Each subscription is independent:
// it holds its own last-known snapshot and its own remote registration.
type Cache struct {
	store port.DocumentStore
}

// New returns a cache over the given store.
func New(store port.DocumentStore) *Cache {
	return &Cache{store: store}
}

// Subscribe delivers the current snapshot for the descriptor immediately,
// then a full recomputed snapshot after every matching remote change.
// Snapshots are ordered, deduplicated by id, and must be treated as
// read-only by the subscriber. The returned unsubscribe is idempotent and
// guarantees onChange never fires after it returns; a delivery that raced
// the unsubscribe is dropped. Deliveries run under an internal lock, so
// onChange must not call the returned unsubscribe itself.
func (c *Cache) Subscribe(desc Descriptor, onChange func([]port.Document)) (port.UnsubscribeFunc, error) {
	sub := &subscription{
		store:    c.store,
		desc:     desc,
		onChange: onChange,
	}

	remoteUnsub, err := c.store.Subscribe(desc.Collection, func(port.ChangeEvent) {
		sub.refresh()
	})
	if err != nil {
		return nil, err
	}

	sub.refresh()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			remoteUnsub()
			sub.close()
		})
	}
	return unsubscribe, nil
}

type subscription struct {
	store    port.DocumentStore
	desc     Descriptor
	onChange func([]port.Document)

	mu     sync.Mutex // serializes deliveries and guards closed/last
	closed bool
	last   []port.Document
}

// refresh recomputes the snapshot and delivers it. On a remote error the
// last known snapshot is re-delivered instead: stale-but-present beats empty.
func (s *subscription) refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	docs, err := s.store.Query(ctx, s.desc.Collection, s.desc.Filters, s.desc.OrderBy, s.desc.Limit)
	cancel()

	if err != nil {
		slog.Error("live query refresh failed, keeping last snapshot",
			"collection", s.desc.Collection, "error", err)
		s.onChange(copySnapshot(s.last))
		return
	}

	s.last = dedupeByID(docs)
	s.onChange(copySnapshot(s.last))
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.last = nil
	s.mu.Unlock()
}

// dedupeByID drops later occurrences of a document id, preserving order.
func dedupeByID(docs []port.Document) []port.Document {
	seen := make(map[string]bool, len(docs))
	out := docs[:0]
	for _, doc := range docs {
		if seen[doc.ID] {
			continue
		}
		seen[doc.ID] = true
		out = append(out, doc)
	}
	return out
}

// copySnapshot hands each subscriber its own slice so callbacks can never
// mutate the cached state.
func copySnapshot(docs []port.Document) []port.Document {
	out := make([]port.Document, len(docs))
	for i, doc := range docs {
		out[i] = doc
		out[i].Data = make(map[string]any, len(doc.Data))
		for k, v := range doc.Data {
			out[i].Data[k] = v
		}
	}
	return out
}
