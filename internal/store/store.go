// Package store defines the document store the engagement core runs against
// and its backends (in-memory, MongoDB, Firestore).
package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a concurrent write won a race on the same document.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrBatchTooLarge is returned when a batch exceeds what the backend
	// commits in one transaction.
	ErrBatchTooLarge = errors.New("batch too large")
)

// FieldID addresses the document id in query filters.
const FieldID = "_id"

// Fields is the field set of a document.
type Fields map[string]interface{}

// Document is a single stored document.
type Document struct {
	Collection string
	ID         string
	Fields     Fields
}

// Decode decodes the document fields into v.
func (d *Document) Decode(v interface{}) error {
	return Decode(d.Fields, v)
}

// UpdateFunc computes the fields to merge into a document given its current
// state. current is nil when the document does not exist. Returning nil
// fields writes nothing; returning an error aborts the update. The function
// may be invoked more than once and must not call back into the store.
type UpdateFunc func(current *Document) (Fields, error)

// Write is one entry of a batch.
type Write struct {
	Collection string
	ID         string
	Fields     Fields
	Merge      bool
	Delete     bool
}

// Filter is an equality predicate on a field.
type Filter struct {
	Field string
	Value interface{}
}

// Query selects documents of one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// Where returns a copy of q with an equality filter appended.
func (q Query) Where(field string, value interface{}) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Value: value})
	return q
}

// Store is the document store consumed by the core.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Put(ctx context.Context, collection, id string, fields Fields, merge bool) error
	Delete(ctx context.Context, collection, id string) error
	// AtomicUpdate runs fn and merges its result indivisibly with respect to
	// other AtomicUpdate and Put calls on the same document. It returns the
	// document as written.
	AtomicUpdate(ctx context.Context, collection, id string, fn UpdateFunc) (*Document, error)
	// BatchAtomicUpdate applies every write or none of them.
	BatchAtomicUpdate(ctx context.Context, writes []Write) error
	Query(ctx context.Context, q Query) ([]*Document, error)
	// Subscribe pushes the current result set of q on every change, in
	// commit order, until the subscription is closed or ctx is done.
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
}

// Snapshot is one pushed result set.
type Snapshot struct {
	Documents []*Document
	At        time.Time
}

// Subscription is a live query. Snapshots that the reader has not consumed
// yet are coalesced: the oldest pending snapshot is dropped first.
type Subscription struct {
	mu     sync.Mutex
	ch     chan Snapshot
	closed bool
	stop   func()
}

func newSubscription(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	return &Subscription{ch: make(chan Snapshot, buffer)}
}

// Snapshots returns the delivery channel. It is closed after Close.
func (s *Subscription) Snapshots() <-chan Snapshot {
	return s.ch
}

func (s *Subscription) push(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- snap:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// Close tears the subscription down. It is safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	stop := s.stop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// closeOnDone closes sub when ctx is done or sub is closed, whichever comes first.
func closeOnDone(ctx context.Context, sub *Subscription, stop func()) {
	done := make(chan struct{})
	var once sync.Once
	sub.mu.Lock()
	sub.stop = func() {
		once.Do(func() { close(done) })
		if stop != nil {
			stop()
		}
	}
	sub.mu.Unlock()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-done:
		}
	}()
}
