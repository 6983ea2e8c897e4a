package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memDoc struct {
	fields Fields
	seq    int64
}

type memSubscriber struct {
	query Query
	sub   *Subscription
}

// MemoryStore is an in-process Store. Every operation is serialized behind a
// single lock, so commits and snapshot pushes share one total order.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]*memDoc
	seq         int64
	subs        map[int64]*memSubscriber
	nextSub     int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*memDoc),
		subs:        make(map[int64]*memSubscriber),
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return &Document{Collection: collection, ID: id, Fields: cloneFields(d.fields)}, nil
}

func (s *MemoryStore) Put(ctx context.Context, collection, id string, fields Fields, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(collection, id, fields, merge)
	s.notify(collection)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(s.collections[collection], id)
	s.notify(collection)
	return nil
}

func (s *MemoryStore) AtomicUpdate(ctx context.Context, collection, id string, fn UpdateFunc) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *Document
	if d, ok := s.collections[collection][id]; ok {
		current = &Document{Collection: collection, ID: id, Fields: cloneFields(d.fields)}
	}
	fields, err := fn(current)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return current, nil
	}
	written := s.write(collection, id, fields, true)
	s.notify(collection)
	return &Document{Collection: collection, ID: id, Fields: cloneFields(written)}, nil
}

func (s *MemoryStore) BatchAtomicUpdate(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]struct{})
	for _, w := range writes {
		if w.Delete {
			delete(s.collections[w.Collection], w.ID)
		} else {
			s.write(w.Collection, w.ID, w.Fields, w.Merge)
		}
		touched[w.Collection] = struct{}{}
	}
	for collection := range touched {
		s.notify(collection)
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, q Query) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluate(q), nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := newSubscription(16)

	s.mu.Lock()
	s.nextSub++
	key := s.nextSub
	s.subs[key] = &memSubscriber{query: q, sub: sub}
	sub.push(Snapshot{Documents: s.evaluate(q), At: time.Now()})
	s.mu.Unlock()

	closeOnDone(ctx, sub, func() {
		s.mu.Lock()
		delete(s.subs, key)
		s.mu.Unlock()
	})
	return sub, nil
}

// write must be called with s.mu held.
func (s *MemoryStore) write(collection, id string, fields Fields, merge bool) Fields {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]*memDoc)
		s.collections[collection] = docs
	}
	incoming := cloneFields(fields)
	if d, ok := docs[id]; ok {
		if merge {
			d.fields = mergeFields(d.fields, incoming)
		} else {
			d.fields = incoming
		}
		return d.fields
	}
	s.seq++
	docs[id] = &memDoc{fields: incoming, seq: s.seq}
	return incoming
}

// notify must be called with s.mu held.
func (s *MemoryStore) notify(collection string) {
	now := time.Now()
	keys := make([]int64, 0, len(s.subs))
	for k, sub := range s.subs {
		if sub.query.Collection == collection {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		sub := s.subs[k]
		sub.sub.push(Snapshot{Documents: s.evaluate(sub.query), At: now})
	}
}

// evaluate must be called with s.mu held.
func (s *MemoryStore) evaluate(q Query) []*Document {
	type hit struct {
		doc *Document
		seq int64
	}
	var hits []hit
	for id, d := range s.collections[q.Collection] {
		if !matches(id, d.fields, q.Filters) {
			continue
		}
		hits = append(hits, hit{
			doc: &Document{Collection: q.Collection, ID: id, Fields: cloneFields(d.fields)},
			seq: d.seq,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compareValues(hits[i].doc.Fields[q.OrderBy], hits[j].doc.Fields[q.OrderBy])
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		if q.Desc {
			return hits[i].seq > hits[j].seq
		}
		return hits[i].seq < hits[j].seq
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	out := make([]*Document, len(hits))
	for i, h := range hits {
		out[i] = h.doc
	}
	return out
}

func matches(id string, fields Fields, filters []Filter) bool {
	for _, f := range filters {
		if f.Field == FieldID {
			if v, ok := f.Value.(string); !ok || v != id {
				return false
			}
			continue
		}
		v, ok := fields[f.Field]
		if !ok || !equalValues(v, f.Value) {
			return false
		}
	}
	return true
}
