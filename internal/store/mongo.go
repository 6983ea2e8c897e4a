package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// revField carries a per-write revision token used for compare-and-set.
const revField = "_rev"

// MongoStore implements Store on MongoDB. AtomicUpdate is an optimistic
// compare-and-set on the revision token; batches run in a session
// transaction and subscriptions ride on change streams, so the deployment
// must be a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore creates a MongoStore on the given database.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{client: client, db: client.Database(database)}
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	doc, _, err := s.find(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return doc, nil
}

func (s *MongoStore) Put(ctx context.Context, collection, id string, fields Fields, merge bool) error {
	coll := s.db.Collection(collection)
	if merge {
		set := withRev(fields)
		_, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set}, options.Update().SetUpsert(true))
		return mapMongoError(err)
	}
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, withRev(fields), options.Replace().SetUpsert(true))
	return mapMongoError(err)
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mapMongoError(err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) AtomicUpdate(ctx context.Context, collection, id string, fn UpdateFunc) (*Document, error) {
	current, rev, err := s.find(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	fields, err := fn(current)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return current, nil
	}

	coll := s.db.Collection(collection)
	if current == nil {
		doc := withRev(fields)
		doc["_id"] = id
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
			}
			return nil, mapMongoError(err)
		}
		return &Document{Collection: collection, ID: id, Fields: cloneFields(fields)}, nil
	}

	res, err := coll.UpdateOne(ctx, bson.M{"_id": id, revField: rev}, bson.M{"$set": withRev(fields)})
	if err != nil {
		return nil, mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
	}
	return &Document{Collection: collection, ID: id, Fields: mergeFields(current.Fields, cloneFields(fields))}, nil
}

func (s *MongoStore) BatchAtomicUpdate(ctx context.Context, writes []Write) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, w := range writes {
			coll := s.db.Collection(w.Collection)
			var err error
			switch {
			case w.Delete:
				_, err = coll.DeleteOne(sc, bson.M{"_id": w.ID})
			case w.Merge:
				_, err = coll.UpdateOne(sc, bson.M{"_id": w.ID}, bson.M{"$set": withRev(w.Fields)}, options.Update().SetUpsert(true))
			default:
				_, err = coll.ReplaceOne(sc, bson.M{"_id": w.ID}, withRev(w.Fields), options.Replace().SetUpsert(true))
			}
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return mapMongoError(err)
}

func (s *MongoStore) Query(ctx context.Context, q Query) ([]*Document, error) {
	filter := bson.M{}
	for _, f := range q.Filters {
		filter[f.Field] = f.Value
	}
	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.db.Collection(q.Collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, mapMongoError(err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, mapMongoError(err)
	}
	docs := make([]*Document, 0, len(raw))
	for _, m := range raw {
		doc, _ := toDocument(q.Collection, m)
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *MongoStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	stream, err := s.db.Collection(q.Collection).Watch(watchCtx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, mapMongoError(err)
	}

	sub := newSubscription(16)
	closeOnDone(watchCtx, sub, cancel)

	docs, err := s.Query(watchCtx, q)
	if err != nil {
		sub.Close()
		stream.Close(context.Background())
		return nil, err
	}
	sub.push(Snapshot{Documents: docs, At: time.Now()})

	go func() {
		defer stream.Close(context.Background())
		defer sub.Close()
		for stream.Next(watchCtx) {
			docs, err := s.Query(watchCtx, q)
			if err != nil {
				return
			}
			sub.push(Snapshot{Documents: docs, At: time.Now()})
		}
	}()
	return sub, nil
}

func (s *MongoStore) find(ctx context.Context, collection, id string) (*Document, interface{}, error) {
	var m bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, mapMongoError(err)
	}
	doc, rev := toDocument(collection, m)
	return doc, rev, nil
}

func toDocument(collection string, m bson.M) (*Document, interface{}) {
	id := fmt.Sprint(m["_id"])
	rev := m[revField]
	delete(m, "_id")
	delete(m, revField)
	return &Document{Collection: collection, ID: id, Fields: Fields(m)}, rev
}

func withRev(fields Fields) bson.M {
	out := bson.M{}
	for k, v := range fields {
		out[k] = v
	}
	out[revField] = uuid.NewString()
	return out
}

func mapMongoError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	var le mongo.LabeledError
	if errors.As(err, &le) && le.HasErrorLabel("TransientTransactionError") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
