package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docsight/docsight/internal/port"
)

// MemoryStore is an in-process port.DocumentStore used when no database is
// configured (local development) and as the store double in tests. Change
// events are dispatched synchronously in write order.
type MemoryStore struct {
	mu     sync.Mutex
	docs   map[string]map[string]port.Document // collection -> id -> doc
	subs   map[string]map[int]func(port.ChangeEvent)
	nextID int
	clock  func() time.Time

	// FailWith, when set, makes every operation return this error. Tests
	// use it to simulate outages.
	FailWith error
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]map[string]port.Document),
		subs:  make(map[string]map[int]func(port.ChangeEvent)),
		clock: time.Now,
	}
}

// Query returns matching documents newest first.
func (m *MemoryStore) Query(ctx context.Context, collection string, filters []port.Filter, orderBy string, limit int) ([]port.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	var out []port.Document
	for _, doc := range m.docs[collection] {
		if matchesFilters(doc, filters) {
			out = append(out, copyDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := orderValue(out[i], orderBy), orderValue(out[j], orderBy)
		if a.Equal(b) {
			return out[i].ID > out[j].ID
		}
		return a.After(b)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns a document by id.
func (m *MemoryStore) Get(ctx context.Context, collection, id string) (port.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return port.Document{}, m.FailWith
	}

	doc, ok := m.docs[collection][id]
	if !ok {
		return port.Document{}, port.NewStoreError(port.StoreCodeNotFound, fmt.Errorf("document %s/%s", collection, id))
	}
	return copyDocument(doc), nil
}

// Create inserts a document with a fresh id.
func (m *MemoryStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.New().String()
	if err := m.write(collection, id, fields, false); err != nil {
		return "", err
	}
	m.dispatch(port.ChangeEvent{Collection: collection, DocID: id, Op: port.OpCreate})
	return id, nil
}

// Put writes the document under the given id, replacing any existing body.
func (m *MemoryStore) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := m.write(collection, id, fields, false); err != nil {
		return err
	}
	m.dispatch(port.ChangeEvent{Collection: collection, DocID: id, Op: port.OpUpdate})
	return nil
}

// Update merges partial fields into an existing document.
func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := m.write(collection, id, fields, true); err != nil {
		return err
	}
	m.dispatch(port.ChangeEvent{Collection: collection, DocID: id, Op: port.OpUpdate})
	return nil
}

func (m *MemoryStore) write(collection, id string, fields map[string]any, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	coll := m.docs[collection]
	if coll == nil {
		coll = make(map[string]port.Document)
		m.docs[collection] = coll
	}

	now := m.clock()
	existing, ok := coll[id]
	if merge {
		if !ok {
			return port.NewStoreError(port.StoreCodeNotFound, fmt.Errorf("document %s/%s", collection, id))
		}
		merged := copyDocument(existing)
		for k, v := range fields {
			merged.Data[k] = v
		}
		merged.UpdatedAt = now
		coll[id] = merged
		return nil
	}

	doc := port.Document{ID: id, Data: make(map[string]any, len(fields)), CreatedAt: now, UpdatedAt: now}
	if ok {
		doc.CreatedAt = existing.CreatedAt
	}
	for k, v := range fields {
		doc.Data[k] = v
	}
	coll[id] = doc
	return nil
}

// Subscribe registers fn for change events on a collection.
func (m *MemoryStore) Subscribe(collection string, fn func(port.ChangeEvent)) (port.UnsubscribeFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subs[collection]
	if subs == nil {
		subs = make(map[int]func(port.ChangeEvent))
		m.subs[collection] = subs
	}
	m.nextID++
	id := m.nextID
	subs[id] = fn

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[collection], id)
			m.mu.Unlock()
		})
	}
	return unsubscribe, nil
}

func (m *MemoryStore) dispatch(evt port.ChangeEvent) {
	m.mu.Lock()
	fns := make([]func(port.ChangeEvent), 0, len(m.subs[evt.Collection]))
	for _, fn := range m.subs[evt.Collection] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(evt)
	}
}

func matchesFilters(doc port.Document, filters []port.Filter) bool {
	for _, f := range filters {
		v, ok := doc.Data[f.Field]
		if !ok || fmt.Sprint(v) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

func orderValue(doc port.Document, orderBy string) time.Time {
	switch orderBy {
	case "", "createdAt":
		return doc.CreatedAt
	case "updatedAt":
		return doc.UpdatedAt
	default:
		if s, ok := doc.Data[orderBy].(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t
			}
		}
		return doc.CreatedAt
	}
}

func copyDocument(doc port.Document) port.Document {
	out := doc
	out.Data = make(map[string]any, len(doc.Data))
	for k, v := range doc.Data {
		out.Data[k] = v
	}
	return out
}
