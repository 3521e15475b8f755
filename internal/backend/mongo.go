package backend

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/store"
)

// Mongo is a Backend on top of a MongoDB collection.
//
// Document schema:
//
//	{
//	  _id:           string,  // "<path>/<id>"
//	  path:          string,
//	  rid:           string,
//	  body:          []byte,  // msgpack document
//	  claimed_until: int64,   // unix nanos, 0 when unclaimed
//	  seq:           int64,   // insertion order
//	}
type Mongo struct {
	coll *mongo.Collection
}

// NewMongo creates a Mongo-backed Backend.
// dbName defaults to "jobseal", collName to "records".
func NewMongo(client *mongo.Client, dbName, collName string) *Mongo {
	if dbName == "" {
		dbName = "jobseal"
	}
	if collName == "" {
		collName = "records"
	}
	return &Mongo{
		coll: client.Database(dbName).Collection(collName),
	}
}

var _ store.Backend = (*Mongo)(nil)

type mongoRecordDoc struct {
	ID           string `bson:"_id"`
	Path         string `bson:"path"`
	RID          string `bson:"rid"`
	Body         []byte `bson:"body"`
	ClaimedUntil int64  `bson:"claimed_until"`
	Seq          int64  `bson:"seq"`
}

func mongoID(path, id string) string { return path + "/" + id }

// EnsureIndexes creates the index used by Claim.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "path", Value: 1}, {Key: "claimed_until", Value: 1}, {Key: "seq", Value: 1}},
	})
	return err
}

func (m *Mongo) Insert(ctx context.Context, path string, doc api.Document) (string, error) {
	body, err := store.EncodeDocument(doc)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = m.coll.InsertOne(ctx, mongoRecordDoc{
		ID:   mongoID(path, id),
		Path: path,
		RID:  id,
		Body: body,
		Seq:  time.Now().UnixNano(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (m *Mongo) Get(ctx context.Context, path, id string) (api.Document, error) {
	var rec mongoRecordDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": mongoID(path, id)}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return store.DecodeDocument(rec.Body)
}

func (m *Mongo) Put(ctx context.Context, path, id string, doc api.Document) error {
	body, err := store.EncodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = m.coll.UpdateOne(ctx,
		bson.M{"_id": mongoID(path, id)},
		bson.M{
			"$set": bson.M{"body": body},
			"$setOnInsert": bson.M{
				"path":          path,
				"rid":           id,
				"claimed_until": int64(0),
				"seq":           time.Now().UnixNano(),
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *Mongo) Delete(ctx context.Context, path, id string) error {
	_, err := m.coll.DeleteOne(ctx, bson.M{"_id": mongoID(path, id)})
	return err
}

func (m *Mongo) Claim(ctx context.Context, path string, lease time.Duration) (string, api.Document, error) {
	now := time.Now()

	var rec mongoRecordDoc
	err := m.coll.FindOneAndUpdate(ctx,
		bson.M{
			"path":          path,
			"claimed_until": bson.M{"$lte": now.UnixNano()},
		},
		bson.M{"$set": bson.M{"claimed_until": now.Add(lease).UnixNano()}},
		options.FindOneAndUpdate().
			SetSort(bson.D{{Key: "seq", Value: 1}}).
			SetReturnDocument(options.After),
	).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil, store.ErrEmpty
	}
	if err != nil {
		return "", nil, err
	}

	doc, err := store.DecodeDocument(rec.Body)
	if err != nil {
		return "", nil, err
	}
	return rec.RID, doc, nil
}

func (m *Mongo) Release(ctx context.Context, path, id string, delay time.Duration) error {
	var until int64
	if delay > 0 {
		until = time.Now().Add(delay).UnixNano()
	}
	_, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": mongoID(path, id)},
		bson.M{"$set": bson.M{"claimed_until": until}},
	)
	return err
}

// Close is a no-op; the caller owns the client.
func (m *Mongo) Close() error { return nil }
