package docstore

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
	"go.uber.org/zap"
)

// Metadata fields kept next to the document body in Mongo.
const (
	mongoVersionField    = "_v"
	mongoCreateTimeField = "_createTime"
	mongoUpdateTimeField = "_updateTime"
)

// MongoConfig holds the Mongo connection settings.
type MongoConfig struct {
	URI      string `mapstructure:"uri" default:"mongodb://localhost:27017"`
	Database string `mapstructure:"database" default:"stories"`
}

// MongoStore is a Store over MongoDB. Commits run inside a multi-document
// transaction, so the server must be a replica set. Watch uses change streams
// and therefore also sees writes made by other processes.
type MongoStore struct {
	*engine
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

// ConnectMongo dials the server, verifies it with a ping and returns a store.
func ConnectMongo(ctx context.Context, cfg MongoConfig, log *zap.Logger, opts ...Option) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return NewMongo(client, cfg.Database, log, opts...), nil
}

// NewMongo wraps an existing client.
func NewMongo(client *mongo.Client, database string, log *zap.Logger, opts ...Option) *MongoStore {
	if log == nil {
		log = zap.NewNop()
	}
	db := client.Database(database)
	return &MongoStore{
		engine: newEngine(&mongoBackend{client: client, db: db}, opts...),
		client: client,
		db:     db,
		log:    log,
	}
}

// Watch streams inserts, updates and replaces of a collection. Before is filled
// when the collection has pre-images enabled and is nil otherwise.
func (s *MongoStore) Watch(ctx context.Context, collection string) (<-chan Change, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace"}}}},
		}}},
	}
	streamOpts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)

	stream, err := s.db.Collection(collection).Watch(ctx, pipeline, streamOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream on %s: %w", collection, err)
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				s.log.Warn("Skipping undecodable change event", zap.String("collection", collection), zap.Error(err))
				continue
			}
			change, ok := ev.change(collection)
			if !ok {
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			s.log.Error("Change stream stopped", zap.String("collection", collection), zap.Error(err))
		}
	}()
	return out, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	s.hub.closeAll()
	return s.client.Disconnect(ctx)
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument             bson.M `bson:"fullDocument"`
	FullDocumentBeforeChange bson.M `bson:"fullDocumentBeforeChange"`
}

func (ev changeEvent) change(collection string) (Change, bool) {
	if ev.FullDocument == nil {
		return Change{}, false
	}
	ref := Doc(collection, ev.DocumentKey.ID)
	c := Change{Type: ChangeUpdated, Ref: ref, After: fromMongo(ev.FullDocument).snapshot(ref)}
	if ev.OperationType == "insert" {
		c.Type = ChangeCreated
	} else if ev.FullDocumentBeforeChange != nil {
		c.Before = fromMongo(ev.FullDocumentBeforeChange).snapshot(ref)
	}
	return c, true
}

type mongoBackend struct {
	client *mongo.Client
	db     *mongo.Database
}

func (b *mongoBackend) load(ctx context.Context, ref DocRef) (record, error) {
	var raw bson.M
	err := b.db.Collection(ref.Collection).FindOne(ctx, bson.M{"_id": ref.ID}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return record{}, nil
	}
	if err != nil {
		return record{}, fmt.Errorf("failed to load %s: %w", ref.Path(), err)
	}
	return fromMongo(raw), nil
}

func (b *mongoBackend) loadAll(ctx context.Context, collection string) ([]DocRef, []record, error) {
	cursor, err := b.db.Collection(collection).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}
	refs := make([]DocRef, 0, len(raws))
	recs := make([]record, 0, len(raws))
	for _, raw := range raws {
		id, _ := raw["_id"].(string)
		if id == "" {
			continue
		}
		refs = append(refs, Doc(collection, id))
		recs = append(recs, fromMongo(raw))
	}
	return refs, recs, nil
}

func (b *mongoBackend) commit(ctx context.Context, reads map[DocRef]int64, writes []write, now time.Time) ([]pending, error) {
	session, err := b.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	var results []pending
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for ref, version := range reads {
			cur, err := b.load(sc, ref)
			if err != nil {
				return nil, err
			}
			if cur.version != version {
				return nil, ConflictError(fmt.Errorf("document %s changed since read", ref.Path()))
			}
		}

		resolved, err := resolveWrites(writes, now, func(ref DocRef) (record, error) {
			return b.load(sc, ref)
		})
		if err != nil {
			return nil, err
		}

		for _, p := range resolved {
			coll := b.db.Collection(p.ref.Collection)
			doc := toMongo(p.ref.ID, p.after)
			if p.before.version == 0 {
				if _, err := coll.InsertOne(sc, doc); err != nil {
					if mongo.IsDuplicateKeyError(err) {
						return nil, ConflictError(err)
					}
					return nil, fmt.Errorf("failed to insert %s: %w", p.ref.Path(), err)
				}
				continue
			}
			res, err := coll.ReplaceOne(sc, versionFilter(p.ref.ID, p.before.version), doc)
			if err != nil {
				return nil, fmt.Errorf("failed to replace %s: %w", p.ref.Path(), err)
			}
			if res.MatchedCount == 0 {
				return nil, ConflictError(fmt.Errorf("document %s changed during commit", p.ref.Path()))
			}
		}
		results = resolved
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (b *mongoBackend) close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

// versionFilter matches id at version. Documents written outside the pipeline
// have no version field and are read as version 1.
func versionFilter(id string, version int64) bson.M {
	if version == 1 {
		return bson.M{"_id": id, "$or": bson.A{
			bson.M{mongoVersionField: int64(1)},
			bson.M{mongoVersionField: bson.M{"$exists": false}},
		}}
	}
	return bson.M{"_id": id, mongoVersionField: version}
}

func toMongo(id string, rec record) bson.M {
	doc := bson.M{}
	for k, v := range rec.data {
		doc[k] = v
	}
	doc["_id"] = id
	doc[mongoVersionField] = rec.version
	doc[mongoCreateTimeField] = rec.createTime
	doc[mongoUpdateTimeField] = rec.updateTime
	return doc
}

// fromMongo splits the metadata fields from the body and converts driver
// types into the plain Go values the rest of the pipeline expects.
func fromMongo(raw bson.M) record {
	rec := record{data: map[string]any{}}
	for k, v := range raw {
		switch k {
		case "_id":
		case mongoVersionField:
			switch n := v.(type) {
			case int64:
				rec.version = n
			case int32:
				rec.version = int64(n)
			}
		case mongoCreateTimeField:
			rec.createTime = mongoTime(v)
		case mongoUpdateTimeField:
			rec.updateTime = mongoTime(v)
		default:
			rec.data[k] = fromBSONValue(v)
		}
	}
	if rec.version == 0 {
		rec.version = 1
	}
	return rec
}

func mongoTime(v any) time.Time {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	}
	return time.Time{}
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case int32:
		return int64(t)
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = fromBSONValue(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSONValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSONValue(e)
		}
		return out
	}
	return v
}
