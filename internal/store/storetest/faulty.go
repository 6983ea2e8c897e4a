// Package storetest provides store doubles for tests.
package storetest

import (
	"context"
	"sync"

	"github.com/anonto42/campus-feed/backend/internal/store"
)

// Faulty wraps a Store and fails selected operations a fixed number of times.
type Faulty struct {
	store.Store

	mu       sync.Mutex
	failures map[string]*failure
}

type failure struct {
	remaining int
	err       error
}

// NewFaulty wraps inner.
func NewFaulty(inner store.Store) *Faulty {
	return &Faulty{Store: inner, failures: make(map[string]*failure)}
}

// FailNext makes the next n calls of op ("Put", "AtomicUpdate",
// "BatchAtomicUpdate") on collection return err. An empty collection matches
// batches.
func (f *Faulty) FailNext(op, collection string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+":"+collection] = &failure{remaining: n, err: err}
}

func (f *Faulty) take(op, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.failures[op+":"+collection]
	if !ok || fl.remaining == 0 {
		return nil
	}
	fl.remaining--
	return fl.err
}

func (f *Faulty) Put(ctx context.Context, collection, id string, fields store.Fields, merge bool) error {
	if err := f.take("Put", collection); err != nil {
		return err
	}
	return f.Store.Put(ctx, collection, id, fields, merge)
}

func (f *Faulty) AtomicUpdate(ctx context.Context, collection, id string, fn store.UpdateFunc) (*store.Document, error) {
	if err := f.take("AtomicUpdate", collection); err != nil {
		return nil, err
	}
	return f.Store.AtomicUpdate(ctx, collection, id, fn)
}

func (f *Faulty) BatchAtomicUpdate(ctx context.Context, writes []store.Write) error {
	if err := f.take("BatchAtomicUpdate", ""); err != nil {
		return err
	}
	return f.Store.BatchAtomicUpdate(ctx, writes)
}
