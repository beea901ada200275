package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"userposts/internal/model"
)

// NewMongoClient connects to MongoDB and verifies the deployment answers.
func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// Mongo is the default gateway. Documents keep their natural shape; the
// server-assigned _id is projected out of every read.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects and selects database.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if database == "" {
		return nil, fmt.Errorf("mongo database name is required")
	}
	client, err := NewMongoClient(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &Mongo{client: client, db: client.Database(database)}, nil
}

func (m *Mongo) Collection(name string) Collection {
	return &mongoCollection{coll: m.db.Collection(name)}
}

func (m *Mongo) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

type mongoCollection struct {
	coll *mongo.Collection
}

var hideID = bson.D{{Key: "_id", Value: 0}}

func (c *mongoCollection) Find(ctx context.Context, f Filter) ([]model.Document, error) {
	if f.matchesNone() {
		return []model.Document{}, nil
	}
	cur, err := c.coll.Find(ctx, mongoFilter(f), options.Find().SetProjection(hideID))
	if err != nil {
		return nil, fmt.Errorf("find %s %s: %w", c.coll.Name(), f, err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("read %s cursor: %w", c.coll.Name(), err)
	}
	docs := make([]model.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, fromBSONDocument(m))
	}
	return docs, nil
}

func (c *mongoCollection) FindOne(ctx context.Context, f Filter) (model.Document, error) {
	if f.matchesNone() {
		return nil, ErrNotFound
	}
	var m bson.M
	err := c.coll.FindOne(ctx, mongoFilter(f), options.FindOne().SetProjection(hideID)).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one %s %s: %w", c.coll.Name(), f, err)
	}
	return fromBSONDocument(m), nil
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc model.Document) error {
	if _, err := c.coll.InsertOne(ctx, map[string]any(doc.Clone())); err != nil {
		return fmt.Errorf("insert %s: %w", c.coll.Name(), err)
	}
	return nil
}

func (c *mongoCollection) InsertMany(ctx context.Context, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]any, 0, len(docs))
	for _, d := range docs {
		batch = append(batch, map[string]any(d.Clone()))
	}
	if _, err := c.coll.InsertMany(ctx, batch); err != nil {
		return fmt.Errorf("insert many %s: %w", c.coll.Name(), err)
	}
	return nil
}

func (c *mongoCollection) DeleteOne(ctx context.Context, f Filter) (int64, error) {
	if f.matchesNone() {
		return 0, nil
	}
	res, err := c.coll.DeleteOne(ctx, mongoFilter(f))
	if err != nil {
		return 0, fmt.Errorf("delete one %s %s: %w", c.coll.Name(), f, err)
	}
	return res.DeletedCount, nil
}

func (c *mongoCollection) DeleteMany(ctx context.Context, f Filter) (int64, error) {
	if f.matchesNone() {
		return 0, nil
	}
	res, err := c.coll.DeleteMany(ctx, mongoFilter(f))
	if err != nil {
		return 0, fmt.Errorf("delete many %s %s: %w", c.coll.Name(), f, err)
	}
	return res.DeletedCount, nil
}

// mongoFilter translates f into a query document.
func mongoFilter(f Filter) bson.D {
	switch {
	case f.matchesAll():
		return bson.D{}
	case len(f.Values) == 1:
		return bson.D{{Key: f.Field, Value: f.Values[0]}}
	}
	return bson.D{{Key: f.Field, Value: bson.D{{Key: "$in", Value: bson.A(f.Values)}}}}
}

func fromBSONDocument(m bson.M) model.Document {
	doc := make(model.Document, len(m))
	for k, v := range m {
		doc[k] = fromBSON(v)
	}
	return model.Normalize(doc)
}

// fromBSON replaces driver types with plain Go values so documents encode to
// JSON the same way regardless of backend.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = fromBSON(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case int32:
		return int64(t)
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	}
	return v
}
