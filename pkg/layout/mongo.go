package layout

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kelpfield/riggen/pkg/errors"
)

// MongoConfig locates the collection a [MongoStore] keeps layouts in.
type MongoConfig struct {
	// URI is the MongoDB connection string. Defaults to
	// "mongodb://localhost:27017".
	URI string

	// Database and Collection name where layouts live. Default to
	// "riggen" and "layouts".
	Database   string
	Collection string
}

// MongoStore keeps layouts in a MongoDB collection, one document per
// layout keyed by name, so a team can share guide placements for the
// same character.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// layoutDoc is the stored document shape.
type layoutDoc struct {
	Name    string    `bson:"_id"`
	Modules Layout    `bson:"modules"`
	SavedAt time.Time `bson:"saved_at"`
}

// NewMongoStore connects to MongoDB and pings it before returning, so a
// bad URI fails at startup rather than on the first save.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "riggen"
	}
	if cfg.Collection == "" {
		cfg.Collection = "layouts"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStore, err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, errors.Wrap(errors.ErrCodeStore, err, "ping mongodb")
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func (s *MongoStore) Save(ctx context.Context, name string, l Layout) error {
	if err := validName(name); err != nil {
		return err
	}

	doc := layoutDoc{Name: name, Modules: l, SavedAt: time.Now().UTC()}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": name}, doc, opts); err != nil {
		return errors.Wrap(errors.ErrCodeStore, err, "store layout %s", name)
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, name string) (Layout, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	var doc layoutDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrCodeNotFound, "layout %q not found", name)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStore, err, "load layout %s", name)
	}
	return doc.Modules, nil
}

func (s *MongoStore) List(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStore, err, "list layouts")
	}
	defer cur.Close(ctx)

	var names []string
	for cur.Next(ctx) {
		var doc struct {
			Name string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStore, err, "decode layout name")
		}
		names = append(names, doc.Name)
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStore, err, "list layouts")
	}
	sort.Strings(names)
	return names, nil
}

func (s *MongoStore) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}

	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": name}); err != nil {
		return errors.Wrap(errors.ErrCodeStore, err, "remove layout %s", name)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
