package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// firestoreBatchLimit is the per-transaction write cap enforced by Firestore.
const firestoreBatchLimit = 500

// FirestoreStore implements Store on Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps a Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapFirestoreError(collection, id, err)
	}
	return fromSnapshot(collection, snap), nil
}

func (s *FirestoreStore) Put(ctx context.Context, collection, id string, fields Fields, merge bool) error {
	data, err := toFirestoreMap(fields)
	if err != nil {
		return err
	}
	ref := s.client.Collection(collection).Doc(id)
	if merge {
		_, err = ref.Set(ctx, data, firestore.MergeAll)
	} else {
		_, err = ref.Set(ctx, data)
	}
	return mapFirestoreError(collection, id, err)
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx, firestore.Exists)
	return mapFirestoreError(collection, id, err)
}

func (s *FirestoreStore) AtomicUpdate(ctx context.Context, collection, id string, fn UpdateFunc) (*Document, error) {
	ref := s.client.Collection(collection).Doc(id)
	var result *Document
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var current *Document
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			current = fromSnapshot(collection, snap)
		}

		fields, err := fn(current)
		if err != nil {
			return err
		}
		if fields == nil {
			result = current
			return nil
		}
		data, err := toFirestoreMap(fields)
		if err != nil {
			return err
		}
		if err := tx.Set(ref, data, firestore.MergeAll); err != nil {
			return err
		}
		if current == nil {
			result = &Document{Collection: collection, ID: id, Fields: cloneFields(fields)}
		} else {
			result = &Document{Collection: collection, ID: id, Fields: mergeFields(current.Fields, cloneFields(fields))}
		}
		return nil
	})
	if err != nil {
		return nil, mapFirestoreError(collection, id, err)
	}
	return result, nil
}

func (s *FirestoreStore) BatchAtomicUpdate(ctx context.Context, writes []Write) error {
	if len(writes) > firestoreBatchLimit {
		return fmt.Errorf("batch of %d writes exceeds limit %d: %w", len(writes), firestoreBatchLimit, ErrBatchTooLarge)
	}
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, w := range writes {
			ref := s.client.Collection(w.Collection).Doc(w.ID)
			if w.Delete {
				if err := tx.Delete(ref); err != nil {
					return err
				}
				continue
			}
			data, err := toFirestoreMap(w.Fields)
			if err != nil {
				return err
			}
			if w.Merge {
				err = tx.Set(ref, data, firestore.MergeAll)
			} else {
				err = tx.Set(ref, data)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return mapFirestoreError("batch", "", err)
}

func (s *FirestoreStore) Query(ctx context.Context, q Query) ([]*Document, error) {
	snaps, err := s.query(q).Documents(ctx).GetAll()
	if err != nil {
		return nil, mapFirestoreError(q.Collection, "", err)
	}
	return fromSnapshots(q.Collection, snaps), nil
}

func (s *FirestoreStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	it := s.query(q).Snapshots(watchCtx)

	sub := newSubscription(16)
	closeOnDone(watchCtx, sub, func() {
		cancel()
		it.Stop()
	})

	go func() {
		defer sub.Close()
		for {
			qs, err := it.Next()
			if err != nil {
				return
			}
			snaps, err := qs.Documents.GetAll()
			if err != nil {
				return
			}
			sub.push(Snapshot{Documents: fromSnapshots(q.Collection, snaps), At: qs.ReadTime})
		}
	}()
	return sub, nil
}

func (s *FirestoreStore) query(q Query) firestore.Query {
	coll := s.client.Collection(q.Collection)
	fq := coll.Query
	for _, f := range q.Filters {
		if f.Field == FieldID {
			fq = fq.Where(firestore.DocumentID, "==", coll.Doc(fmt.Sprint(f.Value)))
			continue
		}
		fq = fq.Where(f.Field, "==", toFirestoreValue(f.Value))
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

func fromSnapshots(collection string, snaps []*firestore.DocumentSnapshot) []*Document {
	docs := make([]*Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, fromSnapshot(collection, snap))
	}
	return docs
}

func fromSnapshot(collection string, snap *firestore.DocumentSnapshot) *Document {
	fields := Fields{}
	for k, v := range snap.Data() {
		fields[k] = fromFirestoreValue(v)
	}
	return &Document{Collection: collection, ID: snap.Ref.ID, Fields: fields}
}

// toFirestoreMap runs fields through the bson codec first, so structs nested
// in a field (comments, for one) are stored under their bson names, then
// converts bson types into the ones Firestore speaks.
func toFirestoreMap(fields Fields) (map[string]interface{}, error) {
	encoded, err := Encode(bson.M(fields))
	if err != nil {
		return nil, err
	}
	return firestoreMap(encoded), nil
}

func firestoreMap(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = toFirestoreValue(v)
	}
	return out
}

func toFirestoreValue(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case int32:
		return int64(t)
	case bson.M:
		return firestoreMap(t)
	case Fields:
		return firestoreMap(t)
	case bson.D:
		return firestoreMap(t.Map())
	case bson.A:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = toFirestoreValue(e)
		}
		return out
	default:
		return v
	}
}

func fromFirestoreValue(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return primitive.NewDateTimeFromTime(t)
	case map[string]interface{}:
		out := bson.M{}
		for k, e := range t {
			out[k] = fromFirestoreValue(e)
		}
		return out
	case []interface{}:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = fromFirestoreValue(e)
		}
		return out
	default:
		return v
	}
}

func mapFirestoreError(collection, id string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	case codes.Aborted, codes.AlreadyExists:
		return fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
	}
	return err
}
